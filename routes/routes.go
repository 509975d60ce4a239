package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	config "github.com/phillip/hela-fund-go/config"
	controllers "github.com/phillip/hela-fund-go/controllers"
	middleware "github.com/phillip/hela-fund-go/middleware"
	models "github.com/phillip/hela-fund-go/models"
)

func SetupRoutes(r *gin.Engine, cfg *config.Config) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "If-None-Match"},
		ExposeHeaders:    []string{"ETag", "Last-Modified"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// public
	r.POST("/auth/register", controllers.Register(cfg))
	r.POST("/auth/login", controllers.Login(cfg))

	// protected
	auth := middleware.AuthMiddleware(cfg)
	optional := middleware.OptionalAuth(cfg)

	r.GET("/auth/me", auth, controllers.Me(cfg))

	requests := r.Group("/requests")
	{
		requests.GET("", optional, controllers.ListRequests(cfg))
		requests.GET("/my", auth, controllers.ListMyRequests(cfg))
		requests.GET("/:id", optional, controllers.GetRequest(cfg))
		requests.POST("", auth, middleware.RequireRole(cfg, models.RoleRequester), controllers.CreateRequest(cfg))
		requests.PUT("/:id", auth, controllers.UpdateRequest(cfg))
		requests.DELETE("/:id", auth, controllers.DeleteRequest(cfg))
		requests.POST("/:id/resolve", auth, controllers.ResolveRequest(cfg))
		requests.POST("/:id/images", auth, controllers.UploadRequestImages(cfg))
	}

	contributions := r.Group("/contributions")
	{
		contributions.GET("/request/:requestId", optional, controllers.ListRequestContributions(cfg))
		contributions.POST("", auth, middleware.RequireRole(cfg, models.RoleSupporter), controllers.CreateContribution(cfg))
		contributions.GET("/my", auth, controllers.ListMyContributions(cfg))
		contributions.GET("/:id", auth, controllers.GetContribution(cfg))
		contributions.POST("/:id/refund", auth, controllers.RefundContribution(cfg))
	}

	messages := r.Group("/messages")
	messages.Use(auth)
	{
		messages.POST("", controllers.SendMessage(cfg))
		messages.GET("", controllers.ListMessages(cfg))
		messages.GET("/unread-count", controllers.UnreadCount(cfg))
		messages.GET("/conversation/:userId", controllers.GetConversation(cfg))
		messages.PATCH("/:id/read", controllers.MarkMessageRead(cfg))
	}

	users := r.Group("/users")
	users.Use(auth)
	{
		users.GET("/:id", controllers.GetUser(cfg))
	}
}
