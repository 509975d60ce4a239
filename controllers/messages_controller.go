package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	config "github.com/phillip/hela-fund-go/config"
	services "github.com/phillip/hela-fund-go/services"
	utils "github.com/phillip/hela-fund-go/utils"
)

// ---------------- SEND ----------------
func SendMessage(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		senderID, err := currentUser(c)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}

		var input struct {
			RecipientID string `json:"recipient_id" binding:"required"`
			RequestID   string `json:"request_id"`
			Content     string `json:"content" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			utils.BadRequest(c, err.Error())
			return
		}
		recipientID, err := primitive.ObjectIDFromHex(input.RecipientID)
		if err != nil {
			utils.BadRequest(c, "invalid recipient_id")
			return
		}
		var requestID *primitive.ObjectID
		if input.RequestID != "" {
			rid, err := primitive.ObjectIDFromHex(input.RequestID)
			if err != nil {
				utils.BadRequest(c, "invalid request_id")
				return
			}
			requestID = &rid
		}

		ctx, cancel := storeContext(c)
		defer cancel()

		msg, err := cfg.Service.SendMessage(ctx, services.SendMessageInput{
			SenderID:    senderID,
			RecipientID: recipientID,
			RequestID:   requestID,
			Content:     input.Content,
		})
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}
		utils.RespondData(c, http.StatusCreated, msg)
	}
}

// ---------------- INBOX ----------------
func ListMessages(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := currentUser(c)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}

		ctx, cancel := storeContext(c)
		defer cancel()

		list, err := cfg.Service.Inbox(ctx, userID)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}
		utils.RespondData(c, http.StatusOK, list)
	}
}

// ---------------- CONVERSATION ----------------
func GetConversation(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := currentUser(c)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}
		otherID, err := objectIDParam(c, "userId")
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}

		ctx, cancel := storeContext(c)
		defer cancel()

		list, err := cfg.Service.Conversation(ctx, userID, otherID)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}
		utils.RespondData(c, http.StatusOK, list)
	}
}

// ---------------- UNREAD ----------------
func UnreadCount(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := currentUser(c)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}

		ctx, cancel := storeContext(c)
		defer cancel()

		n, err := cfg.Service.UnreadCount(ctx, userID)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}
		utils.RespondData(c, http.StatusOK, gin.H{"unread": n})
	}
}

// ---------------- MARK READ ----------------
func MarkMessageRead(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := currentUser(c)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}
		id, err := objectIDParam(c, "id")
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}

		ctx, cancel := storeContext(c)
		defer cancel()

		msg, err := cfg.Service.MarkRead(ctx, id, userID)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}
		utils.RespondData(c, http.StatusOK, msg)
	}
}
