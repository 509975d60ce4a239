package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Category string

const (
	CategoryLostItem      Category = "lost-item"
	CategoryMicroFunding  Category = "micro-funding"
	CategoryCommunityHelp Category = "community-help"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryLostItem, CategoryMicroFunding, CategoryCommunityHelp:
		return true
	}
	return false
}

type RequestStatus string

const (
	StatusDraft     RequestStatus = "draft"
	StatusActive    RequestStatus = "active"
	StatusCompleted RequestStatus = "completed"
	StatusCancelled RequestStatus = "cancelled"
	// StatusExpired is never stored. It is derived from the deadline on read.
	StatusExpired RequestStatus = "expired"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusCompleted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

type Request struct {
	ID                 primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	RequesterID        primitive.ObjectID   `bson:"requester_id" json:"requester_id"`
	Title              string               `bson:"title" json:"title"`
	Description        string               `bson:"description" json:"description"`
	Category           Category             `bson:"category" json:"category"`
	TargetAmount       decimal.Decimal      `bson:"target_amount" json:"target_amount"`
	CurrentAmount      decimal.Decimal      `bson:"current_amount" json:"current_amount"`
	Currency           string               `bson:"currency" json:"currency"`
	Deadline           *time.Time           `bson:"deadline,omitempty" json:"deadline,omitempty"`
	Status             RequestStatus        `bson:"status" json:"status"`
	Urgency            Urgency              `bson:"urgency" json:"urgency"`
	ItemLostLocation   string               `bson:"item_lost_location,omitempty" json:"item_lost_location,omitempty"`
	SupporterIDs       []primitive.ObjectID `bson:"supporter_ids" json:"supporter_ids"`
	ContributionsCount int                  `bson:"contributions_count" json:"contributions_count"`
	Views              int64                `bson:"views" json:"views"`
	Anonymous          bool                 `bson:"anonymous" json:"anonymous"`
	IsVerified         bool                 `bson:"is_verified" json:"is_verified"`
	Images             []string             `bson:"images" json:"images"`
	Version            int64                `bson:"version" json:"-"`
	CreatedAt          time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time            `bson:"updated_at" json:"updated_at"`
}

// IsFundable reports whether the request accepts money at all. Lost-item and
// community-help requests may be posted without a target.
func (r *Request) IsFundable() bool {
	return r.TargetAmount.IsPositive()
}

func (r *Request) IsExpired(now time.Time) bool {
	return r.Status == StatusActive && r.Deadline != nil && now.After(*r.Deadline)
}

// EffectiveStatus is the status as seen at now, accounting for a deadline that
// has passed while the stored status is still active.
func (r *Request) EffectiveStatus(now time.Time) RequestStatus {
	if r.IsExpired(now) {
		return StatusExpired
	}
	return r.Status
}

// Progress is the funded percentage, capped at 100.
func (r *Request) Progress() float64 {
	if !r.IsFundable() {
		return 0
	}
	pct := r.CurrentAmount.Div(r.TargetAmount).Mul(decimal.NewFromInt(100))
	if pct.GreaterThan(decimal.NewFromInt(100)) {
		return 100
	}
	f, _ := pct.Round(2).Float64()
	return f
}

func (r *Request) HasSupporter(id primitive.ObjectID) bool {
	for _, s := range r.SupporterIDs {
		if s == id {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices or pointers with r.
func (r *Request) Clone() *Request {
	cp := *r
	if r.Deadline != nil {
		d := *r.Deadline
		cp.Deadline = &d
	}
	cp.SupporterIDs = make([]primitive.ObjectID, len(r.SupporterIDs))
	copy(cp.SupporterIDs, r.SupporterIDs)
	cp.Images = make([]string, len(r.Images))
	copy(cp.Images, r.Images)
	return &cp
}
