package controllers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	apperr "github.com/phillip/hela-fund-go/apperr"
)

const requestTimeout = 5 * time.Second

// storeContext bounds the store work of one handler.
func storeContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

// currentUser returns the authenticated caller set by the auth middleware.
func currentUser(c *gin.Context) (primitive.ObjectID, error) {
	userID, err := primitive.ObjectIDFromHex(c.GetString("user_id"))
	if err != nil {
		return primitive.NilObjectID, apperr.Authentication("invalid user id")
	}
	return userID, nil
}

// viewer is currentUser for routes that also serve anonymous callers; it
// returns the nil id when nobody is signed in.
func viewer(c *gin.Context) primitive.ObjectID {
	userID, err := primitive.ObjectIDFromHex(c.GetString("user_id"))
	if err != nil {
		return primitive.NilObjectID
	}
	return userID
}

// audience names who a response was shaped for. Owners, other signed-in
// users and anonymous callers can see different bodies for the same document.
func audience(viewerID, ownerID primitive.ObjectID) string {
	switch {
	case viewerID.IsZero():
		return "public"
	case viewerID == ownerID:
		return "owner"
	}
	return "user:" + viewerID.Hex()
}

func objectIDParam(c *gin.Context, name string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		return primitive.NilObjectID, apperr.Validation("invalid %s", name)
	}
	return id, nil
}

// parseDeadline accepts RFC3339 and a few common date layouts.
func parseDeadline(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		layouts := []string{"2006-01-02", "2006-01-02 15:04", "2006-01-02 15:04:05"}
		for _, layout := range layouts {
			if t, e := time.Parse(layout, *raw); e == nil {
				parsed = t
				err = nil
				break
			}
		}
		if err != nil {
			return nil, apperr.Validation("invalid deadline format, use RFC3339 or YYYY-MM-DD")
		}
	}
	return &parsed, nil
}
