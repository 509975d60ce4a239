package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PaymentMethod string

const (
	PaymentCard         PaymentMethod = "card"
	PaymentMobileMoney  PaymentMethod = "mobile-money"
	PaymentBankTransfer PaymentMethod = "bank-transfer"
	PaymentPaypal       PaymentMethod = "paypal"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCard, PaymentMobileMoney, PaymentBankTransfer, PaymentPaypal:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

const MaxContributionMessageLen = 500

type Contribution struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TransactionID string             `bson:"transaction_id" json:"transaction_id"`
	RequestID     primitive.ObjectID `bson:"request_id" json:"request_id"`
	SupporterID   primitive.ObjectID `bson:"supporter_id" json:"supporter_id"`
	Amount        decimal.Decimal    `bson:"amount" json:"amount"`
	Currency      string             `bson:"currency" json:"currency"`
	Message       string             `bson:"message,omitempty" json:"message,omitempty"`
	PaymentMethod PaymentMethod      `bson:"payment_method" json:"payment_method"`
	PaymentStatus PaymentStatus      `bson:"payment_status" json:"payment_status"`
	IsAnonymous   bool               `bson:"is_anonymous" json:"is_anonymous"`
	RefundedAt    *time.Time         `bson:"refunded_at,omitempty" json:"refunded_at,omitempty"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}

func (c *Contribution) Clone() *Contribution {
	cp := *c
	if c.RefundedAt != nil {
		t := *c.RefundedAt
		cp.RefundedAt = &t
	}
	return &cp
}
