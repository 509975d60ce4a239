package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	config "github.com/phillip/hela-fund-go/config"
	models "github.com/phillip/hela-fund-go/models"
	services "github.com/phillip/hela-fund-go/services"
	utils "github.com/phillip/hela-fund-go/utils"
)

// ---------------- CREATE ----------------
func CreateRequest(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		// --- Authenticated user ---
		userID, err := currentUser(c)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}

		var input struct {
			Title            string          `json:"title" binding:"required"`
			Description      string          `json:"description" binding:"required"`
			Category         models.Category `json:"category" binding:"required"`
			TargetAmount     decimal.Decimal `json:"target_amount"`
			Currency         string          `json:"currency"`
			Deadline         *string         `json:"deadline"`
			Urgency          models.Urgency  `json:"urgency"`
			ItemLostLocation string          `json:"item_lost_location"`
			Anonymous        bool            `json:"anonymous"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			utils.BadRequest(c, err.Error())
			return
		}

		deadline, err := parseDeadline(input.Deadline)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}

		ctx, cancel := storeContext(c)
		defer cancel()

		r, err := cfg.Service.CreateRequest(ctx, userID, services.CreateRequestInput{
			Title:            input.Title,
			Description:      input.Description,
			Category:         input.Category,
			TargetAmount:     input.TargetAmount,
			Currency:         input.Currency,
			Deadline:         deadline,
			Urgency:          input.Urgency,
			ItemLostLocation: input.ItemLostLocation,
			Anonymous:        input.Anonymous,
		})
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}

		view, err := cfg.Service.RenderRequestFor(ctx, r, userID)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}
		utils.RespondData(c, http.StatusCreated, view)
	}
}

// ---------------- LIST ----------------
func ListRequests(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(services.DefaultPageSize)))

		ctx, cancel := storeContext(c)
		defer cancel()

		result, err := cfg.Service.ListRequests(ctx, services.ListRequestsInput{
			Category: c.Query("category"),
			Status:   c.Query("status"),
			Urgency:  c.Query("urgency"),
			Search:   c.Query("search"),
			Page:     page,
			Limit:    limit,
		})
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}
		respondRequestPage(c, cfg, result)
	}
}

// ---------------- LIST MINE ----------------
func ListMyRequests(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := currentUser(c)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(services.DefaultPageSize)))

		ctx, cancel := storeContext(c)
		defer cancel()

		result, err := cfg.Service.ListRequests(ctx, services.ListRequestsInput{
			Status:      c.Query("status"),
			RequesterID: &userID,
			Page:        page,
			Limit:       limit,
		})
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}
		respondRequestPage(c, cfg, result)
	}
}

func respondRequestPage(c *gin.Context, cfg *config.Config, result *services.RequestPage) {
	ctx, cancel := storeContext(c)
	defer cancel()

	views, err := cfg.Service.RenderRequestsFor(ctx, result.Requests, viewer(c))
	if err != nil {
		utils.RespondError(c, cfg.Logger, err)
		return
	}
	utils.RespondPage(c, views, result.Page, result.Limit, result.Total, result.Pages())
}

// ---------------- GET ----------------
func GetRequest(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := objectIDParam(c, "id")
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}

		ctx, cancel := storeContext(c)
		defer cancel()

		r, err := cfg.Service.ViewRequest(ctx, id)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}
		viewerID := viewer(c)
		view, err := cfg.Service.RenderRequestFor(ctx, r, viewerID)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}

		// --- ETag covers the rendered status and who the body was shaped for ---
		etag := utils.GenerateETag(r.ID, r.UpdatedAt, string(view.EffectiveStatus), audience(viewerID, r.RequesterID))
		c.Header("Vary", "Authorization")
		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)
		c.Header("Last-Modified", r.UpdatedAt.UTC().Format(http.TimeFormat))

		utils.RespondData(c, http.StatusOK, view)
	}
}

// ---------------- UPDATE ----------------
func UpdateRequest(cfg *config.Config) gin.HandlerFunc {
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

		var input struct {
			Title            *string         `json:"title"`
			Description      *string         `json:"description"`
			Urgency          *models.Urgency `json:"urgency"`
			Deadline         *string         `json:"deadline"`
			ItemLostLocation *string         `json:"item_lost_location"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			utils.BadRequest(c, err.Error())
			return
		}
		deadline, err := parseDeadline(input.Deadline)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}

		ctx, cancel := storeContext(c)
		defer cancel()

		r, err := cfg.Service.UpdateRequest(ctx, id, userID, services.UpdateRequestInput{
			Title:            input.Title,
			Description:      input.Description,
			Urgency:          input.Urgency,
			Deadline:         deadline,
			ItemLostLocation: input.ItemLostLocation,
		})
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}

		view, err := cfg.Service.RenderRequestFor(ctx, r, userID)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}
		utils.RespondData(c, http.StatusOK, view)
	}
}

// ---------------- DELETE ----------------
func DeleteRequest(cfg *config.Config) gin.HandlerFunc {
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

		outcome, r, err := cfg.Service.RemoveRequest(ctx, id, userID)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}

		// Images of a deleted request are orphaned; cancelled requests keep theirs.
		if outcome == services.RequestDeleted && cfg.Uploader != nil {
			for _, img := range r.Images {
				if err := cfg.Uploader.Delete(c.Request.Context(), img); err != nil {
					cfg.Logger.Warn("failed to delete request image", zap.String("url", img), zap.Error(err))
				}
			}
		}

		message := "request deleted successfully"
		if outcome == services.RequestCancelled {
			message = "request has contributions and was cancelled"
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": message,
			"outcome": outcome,
			"id":      id.Hex(),
		})
	}
}

// ---------------- RESOLVE ----------------
func ResolveRequest(cfg *config.Config) gin.HandlerFunc {
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

		r, err := cfg.Service.ResolveRequest(ctx, id, userID)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}
		view, err := cfg.Service.RenderRequestFor(ctx, r, userID)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}
		utils.RespondData(c, http.StatusOK, view)
	}
}

// ---------------- IMAGES ----------------
func UploadRequestImages(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Uploader == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"message": "image uploads are not configured",
				"kind":    "unavailable",
			})
			return
		}
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

		// --- Check ownership before touching the image store ---
		checkCtx, cancelCheck := storeContext(c)
		_, err = cfg.Service.EditableRequest(checkCtx, id, userID)
		cancelCheck()
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}

		// --- Handle file uploads ---
		form, err := c.MultipartForm()
		if err != nil {
			utils.BadRequest(c, "invalid form data")
			return
		}
		files := form.File["images"] // key must be "images"
		if len(files) == 0 {
			utils.BadRequest(c, "no images provided")
			return
		}

		var imageURLs []string
		for _, fileHeader := range files {
			file, err := fileHeader.Open()
			if err != nil {
				utils.BadRequest(c, "failed to open file")
				return
			}
			url, err := cfg.Uploader.Upload(c.Request.Context(), file, utils.RequestImagesFolder)
			file.Close()
			if err != nil {
				cfg.Logger.Error("image upload failed", zap.String("request_id", id.Hex()), zap.Error(err))
				discardImages(c, cfg, imageURLs)
				c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
					"success": false,
					"message": "failed to upload image",
					"kind":    "upstream_error",
				})
				return
			}
			imageURLs = append(imageURLs, url)
		}

		ctx, cancel := storeContext(c)
		defer cancel()

		r, err := cfg.Service.AddImages(ctx, id, userID, imageURLs)
		if err != nil {
			discardImages(c, cfg, imageURLs)
			utils.RespondError(c, cfg.Logger, err)
			return
		}
		utils.RespondData(c, http.StatusOK, gin.H{"id": r.ID, "images": r.Images})
	}
}

func discardImages(c *gin.Context, cfg *config.Config, urls []string) {
	for _, u := range urls {
		if err := cfg.Uploader.Delete(c.Request.Context(), u); err != nil {
			cfg.Logger.Warn("failed to clean up uploaded image", zap.String("url", u), zap.Error(err))
		}
	}
}
