package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson/primitive"

	apperr "github.com/phillip/hela-fund-go/apperr"
	models "github.com/phillip/hela-fund-go/models"
	store "github.com/phillip/hela-fund-go/store"
)

type SendMessageInput struct {
	SenderID    primitive.ObjectID
	RecipientID primitive.ObjectID
	RequestID   *primitive.ObjectID
	Content     string
}

func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (*models.Message, error) {
	content := strings.TrimSpace(in.Content)
	switch {
	case content == "":
		return nil, apperr.Validation("content is required")
	case utf8.RuneCountInString(content) > models.MaxMessageLen:
		return nil, apperr.Validation("content cannot exceed %d characters", models.MaxMessageLen)
	case in.RecipientID.IsZero():
		return nil, apperr.Validation("recipient_id is required")
	case in.RecipientID == in.SenderID:
		return nil, apperr.Validation("cannot send a message to yourself")
	}

	if _, err := s.store.GetUser(ctx, in.RecipientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("recipient not found")
		}
		return nil, fmt.Errorf("load recipient: %w", err)
	}
	if in.RequestID != nil {
		if _, err := s.loadRequest(ctx, *in.RequestID); err != nil {
			return nil, err
		}
	}

	m := &models.Message{
		ID:          primitive.NewObjectID(),
		SenderID:    in.SenderID,
		RecipientID: in.RecipientID,
		RequestID:   in.RequestID,
		Content:     content,
		CreatedAt:   s.now(),
	}
	if err := s.store.CreateMessage(ctx, m); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return m, nil
}

// Inbox lists every message sent or received by userID, newest first.
func (s *Service) Inbox(ctx context.Context, userID primitive.ObjectID) ([]models.Message, error) {
	list, err := s.store.ListMessages(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return list, nil
}

func (s *Service) Conversation(ctx context.Context, userID, otherID primitive.ObjectID) ([]models.Message, error) {
	list, err := s.store.ListConversation(ctx, userID, otherID)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	return list, nil
}

// MarkRead flags a message as read. Only its recipient may do so; repeating
// the call keeps the first read time.
func (s *Service) MarkRead(ctx context.Context, messageID, userID primitive.ObjectID) (*models.Message, error) {
	m, err := s.store.GetMessage(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("message not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load message: %w", err)
	}
	if m.RecipientID != userID {
		return nil, apperr.Authorization("Access denied")
	}

	if err := s.store.MarkMessageRead(ctx, messageID, s.now()); err != nil {
		return nil, fmt.Errorf("mark message read: %w", err)
	}
	return s.store.GetMessage(ctx, messageID)
}

func (s *Service) UnreadCount(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	n, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}
