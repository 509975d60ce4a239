package services

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/hela-fund-go/models"
)

func TestRenderContribution(t *testing.T) {
	owner := primitive.NewObjectID()
	supporter := &models.User{ID: primitive.NewObjectID(), Role: models.RoleSupporter, Name: "Kasun", Avatar: "k.png"}
	request := &models.Request{ID: primitive.NewObjectID(), RequesterID: owner, Title: "Books", Status: models.StatusActive}
	c := &models.Contribution{
		ID:          primitive.NewObjectID(),
		SupporterID: supporter.ID,
		RequestID:   request.ID,
		Amount:      decimal.NewFromInt(50),
		IsAnonymous: true,
	}

	tests := []struct {
		name   string
		viewer primitive.ObjectID
		masked bool
	}{
		{"stranger", primitive.NewObjectID(), true},
		{"unauthenticated", primitive.NilObjectID, true},
		{"supporter", supporter.ID, false},
		{"request owner", owner, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := RenderContribution(c, supporter, request, tt.viewer)
			if tt.masked {
				assert.Equal(t, "Anonymous", v.Supporter.Name)
				assert.Empty(t, v.Supporter.Avatar)
				assert.Nil(t, v.Supporter.ID)
				assert.Nil(t, v.SupporterID)

				raw, err := json.Marshal(v)
				require.NoError(t, err)
				assert.NotContains(t, string(raw), "Kasun")
				assert.NotContains(t, string(raw), supporter.ID.Hex())
				return
			}
			assert.Equal(t, "Kasun", v.Supporter.Name)
			assert.Equal(t, "k.png", v.Supporter.Avatar)
			require.NotNil(t, v.SupporterID)
			assert.Equal(t, supporter.ID, *v.SupporterID)
		})
	}

	c.IsAnonymous = false
	v := RenderContribution(c, supporter, request, primitive.NewObjectID())
	assert.Equal(t, "Kasun", v.Supporter.Name)
	assert.Equal(t, "Books", v.Request.Title)
}

func TestRenderRequest(t *testing.T) {
	requester := &models.User{ID: primitive.NewObjectID(), Role: models.RoleRequester, FullName: "Amani Perera", University: "UoC"}
	supporter := primitive.NewObjectID()
	r := &models.Request{
		ID:            primitive.NewObjectID(),
		RequesterID:   requester.ID,
		Title:         "Exam fees",
		TargetAmount:  decimal.NewFromInt(200),
		CurrentAmount: decimal.NewFromInt(50),
		Status:        models.StatusActive,
		SupporterIDs:  []primitive.ObjectID{supporter},
		Anonymous:     true,
	}

	public := RenderRequest(r, requester, primitive.NewObjectID(), testNow)
	assert.Nil(t, public.RequesterID)
	require.NotNil(t, public.Requester)
	assert.Equal(t, "Anonymous", public.Requester.Name)
	assert.Empty(t, public.Requester.University)
	assert.Empty(t, public.Request.SupporterIDs)
	assert.Equal(t, 1, public.SupporterCount)
	assert.Equal(t, 25.0, public.Progress)
	assert.Equal(t, models.StatusActive, public.EffectiveStatus)

	raw, err := json.Marshal(public)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), requester.ID.Hex())
	assert.NotContains(t, string(raw), "Amani")
	assert.NotContains(t, string(raw), supporter.Hex())

	own := RenderRequest(r, requester, requester.ID, testNow)
	require.NotNil(t, own.RequesterID)
	assert.Equal(t, "Amani Perera", own.Requester.Name)
	assert.Equal(t, []primitive.ObjectID{supporter}, own.Request.SupporterIDs)

	r.Anonymous = false
	named := RenderRequest(r, requester, primitive.NilObjectID, testNow)
	assert.Equal(t, "UoC", named.Requester.University)
	require.NotNil(t, named.RequesterID)
	assert.Equal(t, requester.ID, *named.RequesterID)
}
