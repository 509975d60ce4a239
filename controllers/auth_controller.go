package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	config "github.com/phillip/hela-fund-go/config"
	models "github.com/phillip/hela-fund-go/models"
	services "github.com/phillip/hela-fund-go/services"
	utils "github.com/phillip/hela-fund-go/utils"
)

// ---------------- REGISTER ----------------
func Register(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Email      string      `json:"email" binding:"required"`
			Password   string      `json:"password" binding:"required"`
			Role       models.Role `json:"role" binding:"required"`
			FullName   string      `json:"full_name"`
			University string      `json:"university"`
			Faculty    string      `json:"faculty"`
			StudentID  string      `json:"student_id"`
			Mobile     string      `json:"mobile"`
			Name       string      `json:"name"`
			Avatar     string      `json:"avatar"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			utils.BadRequest(c, err.Error())
			return
		}

		ctx, cancel := storeContext(c)
		defer cancel()

		user, token, err := cfg.Auth.Register(ctx, services.RegisterInput{
			Email:      input.Email,
			Password:   input.Password,
			Role:       input.Role,
			FullName:   input.FullName,
			University: input.University,
			Faculty:    input.Faculty,
			StudentID:  input.StudentID,
			Mobile:     input.Mobile,
			Name:       input.Name,
			Avatar:     input.Avatar,
		})
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"success": true,
			"message": "registration successful",
			"token":   token,
			"user":    user,
		})
	}
}

// ---------------- LOGIN ----------------
func Login(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Email    string      `json:"email" binding:"required"`
			Password string      `json:"password" binding:"required"`
			Role     models.Role `json:"role" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			utils.BadRequest(c, "email, password and role are required")
			return
		}

		ctx, cancel := storeContext(c)
		defer cancel()

		user, token, err := cfg.Auth.Login(ctx, input.Email, input.Password, input.Role)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"token":   token,
			"role":    input.Role,
			"user":    user,
		})
	}
}

// ---------------- ME ----------------
func Me(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := currentUser(c)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}

		ctx, cancel := storeContext(c)
		defer cancel()

		user, err := cfg.Auth.Me(ctx, userID)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    user,
			"role":    c.GetString("role"),
		})
	}
}
