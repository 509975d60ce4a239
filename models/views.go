package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Enriched read models. Never stored. ---

type PersonSummary struct {
	ID         *primitive.ObjectID `json:"id,omitempty"`
	Name       string              `json:"name"`
	Avatar     string              `json:"avatar"`
	University string              `json:"university,omitempty"`
	Faculty    string              `json:"faculty,omitempty"`
}

type RequestSummary struct {
	ID     primitive.ObjectID `json:"id"`
	Title  string             `json:"title"`
	Status RequestStatus      `json:"status"`
}

type RequestView struct {
	Request
	RequesterID     *primitive.ObjectID `json:"requester_id,omitempty"`
	Requester       *PersonSummary      `json:"requester,omitempty"`
	SupporterCount  int                 `json:"supporter_count"`
	EffectiveStatus RequestStatus       `json:"effective_status"`
	Progress        float64             `json:"progress"`
	IsExpired       bool                `json:"is_expired"`
}

type ContributionView struct {
	ID            primitive.ObjectID  `json:"id"`
	TransactionID string              `json:"transaction_id"`
	Amount        decimal.Decimal     `json:"amount"`
	Currency      string              `json:"currency"`
	Message       string              `json:"message,omitempty"`
	PaymentMethod PaymentMethod       `json:"payment_method"`
	PaymentStatus PaymentStatus       `json:"payment_status"`
	IsAnonymous   bool                `json:"is_anonymous"`
	SupporterID   *primitive.ObjectID `json:"supporter_id,omitempty"`
	Supporter     PersonSummary       `json:"supporter"`
	Request       *RequestSummary     `json:"request,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}
