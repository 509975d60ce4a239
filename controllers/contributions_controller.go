package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	config "github.com/phillip/hela-fund-go/config"
	models "github.com/phillip/hela-fund-go/models"
	services "github.com/phillip/hela-fund-go/services"
	utils "github.com/phillip/hela-fund-go/utils"
)

// ---------------- CREATE ----------------
func CreateContribution(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		supporterID, err := currentUser(c)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}

		var input struct {
			RequestID     string               `json:"request_id" binding:"required"`
			Amount        decimal.Decimal      `json:"amount"`
			Currency      string               `json:"currency"`
			PaymentMethod models.PaymentMethod `json:"payment_method"`
			IsAnonymous   bool                 `json:"is_anonymous"`
			Message       string               `json:"message"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			utils.BadRequest(c, err.Error())
			return
		}

		// validate request_id
		requestID, err := primitive.ObjectIDFromHex(input.RequestID)
		if err != nil {
			utils.BadRequest(c, "invalid request_id")
			return
		}
		if input.PaymentMethod == "" {
			input.PaymentMethod = models.PaymentCard
		}

		ctx, cancel := storeContext(c)
		defer cancel()

		contribution, request, err := cfg.Service.Contribute(ctx, services.ContributeInput{
			SupporterID:   supporterID,
			RequestID:     requestID,
			Amount:        input.Amount,
			Currency:      input.Currency,
			PaymentMethod: input.PaymentMethod,
			IsAnonymous:   input.IsAnonymous,
			Message:       input.Message,
		})
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}

		view, err := cfg.Service.RenderContributionFor(ctx, contribution, request, supporterID)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"success": true,
			"message": "contribution received",
			"data":    view,
			"request": gin.H{
				"id":                  request.ID,
				"status":              request.Status,
				"current_amount":      request.CurrentAmount,
				"target_amount":       request.TargetAmount,
				"contributions_count": request.ContributionsCount,
				"progress":            request.Progress(),
			},
		})
	}
}

// ---------------- LIST BY REQUEST ----------------
func ListRequestContributions(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID, err := objectIDParam(c, "requestId")
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}

		ctx, cancel := storeContext(c)
		defer cancel()

		viewerID := viewer(c)
		views, request, err := cfg.Service.ListRequestContributions(ctx, requestID, viewerID)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}

		// --- ETag follows the request aggregate, which moves with every contribution ---
		etag := utils.GenerateListETag(request.ID, request.UpdatedAt, len(views), audience(viewerID, request.RequesterID))
		c.Header("Vary", "Authorization")
		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)
		c.Header("Last-Modified", request.UpdatedAt.UTC().Format(http.TimeFormat))

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    views,
			"count":   len(views),
		})
	}
}

// ---------------- LIST MINE ----------------
func ListMyContributions(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		supporterID, err := currentUser(c)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}

		ctx, cancel := storeContext(c)
		defer cancel()

		views, err := cfg.Service.ListSupporterContributions(ctx, supporterID)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}

		total := decimal.Zero
		for _, v := range views {
			if v.PaymentStatus == models.PaymentCompleted {
				total = total.Add(v.Amount)
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"data":         views,
			"count":        len(views),
			"total_amount": total,
		})
	}
}

// ---------------- GET ----------------
func GetContribution(cfg *config.Config) gin.HandlerFunc {
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

		view, err := cfg.Service.GetContribution(ctx, id, userID)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}
		utils.RespondData(c, http.StatusOK, view)
	}
}

// ---------------- REFUND ----------------
func RefundContribution(cfg *config.Config) gin.HandlerFunc {
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

		contribution, request, err := cfg.Service.Refund(ctx, id, userID)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}
		view, err := cfg.Service.RenderContributionFor(ctx, contribution, request, userID)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "contribution refunded",
			"data":    view,
		})
	}
}
