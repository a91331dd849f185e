package seed_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/dnothi/dnothi/internal/db"
	"github.com/dnothi/dnothi/internal/model"
	"github.com/dnothi/dnothi/internal/seed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNullLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestEnsureAdmin_CreatesSystemAdmin(t *testing.T) {
	gdb, err := db.OpenSQLite("file:seed_create?mode=memory&cache=shared")
	require.NoError(t, err)

	pw, err := seed.EnsureAdmin(context.Background(), gdb, seed.AdminOptions{
		Username: "sysadmin",
		Email:    "admin@example.com",
		Password: "supplied-secret",
	}, newNullLogger())
	require.NoError(t, err)
	assert.Empty(t, pw, "supplied passwords are not echoed back")

	var u model.User
	require.NoError(t, gdb.First(&u, "username = ?", "sysadmin").Error)
	assert.Equal(t, model.RoleSystemAdmin, u.Role)
	assert.True(t, u.IsActive)
	assert.True(t, u.ValidatePassword("supplied-secret"))
}

func TestEnsureAdmin_Idempotent(t *testing.T) {
	gdb, err := db.OpenSQLite("file:seed_idempotent?mode=memory&cache=shared")
	require.NoError(t, err)
	opts := seed.AdminOptions{Username: "sysadmin", Email: "admin@example.com"}

	first, err := seed.EnsureAdmin(context.Background(), gdb, opts, newNullLogger())
	require.NoError(t, err)
	assert.Len(t, first, 24)

	second, err := seed.EnsureAdmin(context.Background(), gdb, opts, newNullLogger())
	require.NoError(t, err)
	assert.Empty(t, second)

	var n int64
	require.NoError(t, gdb.Model(&model.User{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)

	var u model.User
	require.NoError(t, gdb.First(&u, "username = ?", "sysadmin").Error)
	assert.True(t, u.ValidatePassword(first))
}
