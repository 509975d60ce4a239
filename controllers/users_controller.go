package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	config "github.com/phillip/hela-fund-go/config"
	utils "github.com/phillip/hela-fund-go/utils"
)

// ---------------- GET ----------------
func GetUser(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := objectIDParam(c, "id")
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}

		ctx, cancel := storeContext(c)
		defer cancel()

		user, err := cfg.Auth.PublicProfile(ctx, id, viewer(c))
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}
		utils.RespondData(c, http.StatusOK, user)
	}
}
