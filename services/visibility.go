package services

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/hela-fund-go/models"
)

const anonymousName = "Anonymous"

func anonymousPerson() models.PersonSummary {
	return models.PersonSummary{Name: anonymousName, Avatar: ""}
}

func personOf(u *models.User) models.PersonSummary {
	if u == nil {
		return models.PersonSummary{}
	}
	id := u.ID
	return models.PersonSummary{
		ID:         &id,
		Name:       u.DisplayName(),
		Avatar:     u.Avatar,
		University: u.University,
		Faculty:    u.Faculty,
	}
}

// RenderContribution shapes c for viewerID. An anonymous contribution keeps its
// supporter hidden from everyone except the supporter and the owner of request.
// A zero viewerID is an unauthenticated caller. request and supporter may be nil
// when they could not be loaded.
func RenderContribution(c *models.Contribution, supporter *models.User, request *models.Request, viewerID primitive.ObjectID) models.ContributionView {
	v := models.ContributionView{
		ID:            c.ID,
		TransactionID: c.TransactionID,
		Amount:        c.Amount,
		Currency:      c.Currency,
		Message:       c.Message,
		PaymentMethod: c.PaymentMethod,
		PaymentStatus: c.PaymentStatus,
		IsAnonymous:   c.IsAnonymous,
		CreatedAt:     c.CreatedAt,
	}
	if request != nil {
		v.Request = &models.RequestSummary{ID: request.ID, Title: request.Title, Status: request.Status}
	}

	owner := request != nil && !viewerID.IsZero() && viewerID == request.RequesterID
	self := !viewerID.IsZero() && viewerID == c.SupporterID
	if c.IsAnonymous && !owner && !self {
		v.Supporter = anonymousPerson()
		return v
	}

	sid := c.SupporterID
	v.SupporterID = &sid
	v.Supporter = personOf(supporter)
	v.Supporter.ID = &sid
	return v
}

// RenderRequest shapes r for viewerID at now. Anonymous requests hide the
// requester from everyone but the requester, and the supporter list is only
// shown to the owner.
func RenderRequest(r *models.Request, requester *models.User, viewerID primitive.ObjectID, now time.Time) models.RequestView {
	v := models.RequestView{
		Request:         *r.Clone(),
		SupporterCount:  len(r.SupporterIDs),
		EffectiveStatus: r.EffectiveStatus(now),
		Progress:        r.Progress(),
		IsExpired:       r.IsExpired(now),
	}

	owner := !viewerID.IsZero() && viewerID == r.RequesterID
	if !owner {
		v.Request.SupporterIDs = []primitive.ObjectID{}
	}
	if r.Anonymous && !owner {
		p := anonymousPerson()
		v.Requester = &p
		return v
	}

	rid := r.RequesterID
	v.RequesterID = &rid
	p := personOf(requester)
	p.ID = &rid
	v.Requester = &p
	return v
}
