package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/dnothi/dnothi/internal/auth"
	"github.com/dnothi/dnothi/internal/db"
	"github.com/dnothi/dnothi/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newDB(t *testing.T, name string) (*gorm.DB, *model.User) {
	t.Helper()
	gormDB, err := db.OpenSQLite("file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	u := &model.User{Username: name, Email: name + "@example.com", Role: model.RoleAgent, IsActive: true}
	require.NoError(t, gormDB.Create(u).Error)
	return gormDB, u
}

func TestRefreshStore_RotateRevokesOldToken(t *testing.T) {
	ctx := context.Background()
	gormDB, u := newDB(t, "auth_refresh_rotate")
	store := auth.NewRefreshStore(gormDB, time.Hour)

	first, err := store.Issue(ctx, u.ID)
	require.NoError(t, err)

	second, userID, err := store.Rotate(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, u.ID, userID)
	assert.NotEqual(t, first, second)

	_, _, err = store.Rotate(ctx, first)
	require.ErrorIs(t, err, auth.ErrInvalidRefreshToken)

	require.NoError(t, store.Revoke(ctx, second))
	_, _, err = store.Rotate(ctx, second)
	require.ErrorIs(t, err, auth.ErrInvalidRefreshToken)
}

func TestRefreshStore_Expired(t *testing.T) {
	ctx := context.Background()
	gormDB, u := newDB(t, "auth_refresh_expired")
	store := auth.NewRefreshStore(gormDB, -time.Minute)

	tok, err := store.Issue(ctx, u.ID)
	require.NoError(t, err)
	_, _, err = store.Rotate(ctx, tok)
	require.ErrorIs(t, err, auth.ErrInvalidRefreshToken)
}

func TestResetStore_SingleUse(t *testing.T) {
	ctx := context.Background()
	gormDB, u := newDB(t, "auth_reset_single_use")
	store := auth.NewResetStore(gormDB, "reset-secret", time.Hour)

	tok, err := store.Issue(ctx, u.ID)
	require.NoError(t, err)

	userID, err := store.Consume(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, u.ID, userID)

	_, err = store.Consume(ctx, tok)
	require.ErrorIs(t, err, auth.ErrInvalidResetToken)
}

func TestResetStore_WrongSecret(t *testing.T) {
	ctx := context.Background()
	gormDB, u := newDB(t, "auth_reset_wrong_secret")

	tok, err := auth.NewResetStore(gormDB, "reset-secret", time.Hour).Issue(ctx, u.ID)
	require.NoError(t, err)

	_, err = auth.NewResetStore(gormDB, "other-secret", time.Hour).Consume(ctx, tok)
	require.ErrorIs(t, err, auth.ErrInvalidResetToken)
}
