package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const MaxMessageLen = 1000

type Message struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	SenderID    primitive.ObjectID  `bson:"sender_id" json:"sender_id"`
	RecipientID primitive.ObjectID  `bson:"recipient_id" json:"recipient_id"`
	RequestID   *primitive.ObjectID `bson:"request_id,omitempty" json:"request_id,omitempty"`
	Content     string              `bson:"content" json:"content"`
	IsRead      bool                `bson:"is_read" json:"is_read"`
	ReadAt      *time.Time          `bson:"read_at,omitempty" json:"read_at,omitempty"`
	CreatedAt   time.Time           `bson:"created_at" json:"created_at"`
}
