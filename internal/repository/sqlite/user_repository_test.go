package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driveguard/internal/domain"
	"driveguard/internal/repository"
)

func newTestUserRepo(t *testing.T) repository.UserRepository {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewUserRepository(db)
	require.NoError(t, repo.Init(context.Background()))
	return repo
}

func TestUserRepositoryCreateAndFind(t *testing.T) {
	repo := newTestUserRepo(t)
	ctx := context.Background()

	user := &domain.User{
		ID:           "u-1",
		Username:     "alice",
		Email:        "a@x.com",
		PasswordHash: "hash",
	}
	require.NoError(t, repo.Create(ctx, user))

	byEmail, err := repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, "u-1", byEmail.ID)
	assert.Equal(t, "alice", byEmail.Username)
	assert.Equal(t, "hash", byEmail.PasswordHash)
	assert.False(t, byEmail.CreatedAt.IsZero())

	byID, err := repo.FindByID(ctx, "u-1")
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "a@x.com", byID.Email)
}

func TestUserRepositoryFindByEmailAbsent(t *testing.T) {
	repo := newTestUserRepo(t)

	user, err := repo.FindByEmail(context.Background(), "nobody@x.com")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestUserRepositoryDuplicateEmail(t *testing.T) {
	repo := newTestUserRepo(t)
	ctx := context.Background()

	first := &domain.User{ID: "u-1", Username: "alice", Email: "a@x.com", PasswordHash: "h1"}
	require.NoError(t, repo.Create(ctx, first))

	second := &domain.User{ID: "u-2", Username: "bob", Email: "a@x.com", PasswordHash: "h2"}
	err := repo.Create(ctx, second)
	assert.ErrorIs(t, err, repository.ErrDuplicateEmail)
}
