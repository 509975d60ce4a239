package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Role string

const (
	RoleRequester Role = "requester"
	RoleSupporter Role = "supporter"
)

func (r Role) Valid() bool {
	return r == RoleRequester || r == RoleSupporter
}

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password_hash" json:"-"`
	Role         Role               `bson:"role" json:"role"`

	// Requester profile
	FullName   string `bson:"full_name,omitempty" json:"full_name,omitempty"`
	University string `bson:"university,omitempty" json:"university,omitempty"`
	Faculty    string `bson:"faculty,omitempty" json:"faculty,omitempty"`
	StudentID  string `bson:"student_id,omitempty" json:"student_id,omitempty"`
	Mobile     string `bson:"mobile,omitempty" json:"mobile,omitempty"`

	// Supporter profile
	Name string `bson:"name,omitempty" json:"name,omitempty"`

	Avatar             string    `bson:"avatar,omitempty" json:"avatar,omitempty"`
	TotalContributions int64     `bson:"total_contributions" json:"total_contributions"`
	TotalRequests      int64     `bson:"total_requests" json:"total_requests"`
	CreatedAt          time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time `bson:"updated_at" json:"updated_at"`
}

// DisplayName picks the profile name that matches the account role.
func (u *User) DisplayName() string {
	if u.Role == RoleRequester && u.FullName != "" {
		return u.FullName
	}
	if u.Name != "" {
		return u.Name
	}
	return u.FullName
}

// User counters kept on the user document.
const (
	CounterContributions = "total_contributions"
	CounterRequests      = "total_requests"
)
