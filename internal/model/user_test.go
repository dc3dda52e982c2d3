package model_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/scholara/account-service/internal/model"
)

func TestCodeExpired(t *testing.T) {
	now := time.Now()
	u := model.User{}
	assert.True(t, u.CodeExpired(now), "missing expiry counts as expired")

	future := now.Add(time.Minute)
	u.PendingCodeExpiry = &future
	assert.False(t, u.CodeExpired(now))

	// The code is invalid at exactly the expiry instant.
	assert.True(t, u.CodeExpired(future))
	assert.True(t, u.CodeExpired(future.Add(time.Second)))
}

func TestPublic(t *testing.T) {
	u := model.User{
		ID:            uuid.New(),
		Email:         "a@x.com",
		Username:      "alice",
		Status:        model.StatusVerified,
		Role:          model.RoleStandard,
		CoinBalance:   150,
		ReferralCount: 3,
	}
	pub := u.Public()
	assert.Equal(t, u.ID.String(), pub.ID)
	assert.Equal(t, []string{"standard"}, pub.Roles)
	assert.True(t, pub.Verified)
	assert.Equal(t, int64(150), pub.CoinBalance)
	assert.Equal(t, int64(3), pub.ReferralCount)
}
