package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/visitwise/visitwise/internal/domain/entity"
	"github.com/visitwise/visitwise/internal/domain/repository"
)

func sessionRepositories(t *testing.T) map[string]repository.SessionRepository {
	t.Helper()
	sqliteRepo, err := NewSQLiteSessionRepository(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteRepo.(*sqliteSessionRepository).Close() })

	return map[string]repository.SessionRepository{
		"memory": NewMemorySessionRepository(),
		"sqlite": sqliteRepo,
	}
}

func newSession(id string) entity.Session {
	now := time.Now().UTC().Truncate(time.Second)
	return entity.Session{ID: id, CreatedAt: now, LastUsed: now}
}

func message(sessionID, id string, role entity.Role, content string) entity.Message {
	return entity.Message{ID: id, SessionID: sessionID, Role: role, Content: content, Timestamp: time.Now().UTC()}
}

func TestSessionRepositoryAppendKeepsOrder(t *testing.T) {
	for name, repo := range sessionRepositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.Create(ctx, newSession("s1")))

			require.NoError(t, repo.AppendMessage(ctx, message("s1", "m1", entity.RoleUser, "headache")))
			require.NoError(t, repo.AppendMessage(ctx, message("s1", "m2", entity.RoleAssistant, "rest")))
			require.NoError(t, repo.AppendMessage(ctx, message("s1", "m3", entity.RoleUser, "still bad")))

			session, err := repo.Get(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, session.Messages, 3)
			assert.Equal(t, "headache", session.Messages[0].Content)
			assert.Equal(t, "rest", session.Messages[1].Content)
			assert.Equal(t, "still bad", session.Messages[2].Content)
			assert.Equal(t, "rest", session.LastReply())
			assert.Equal(t, entity.StateIdle, session.State)
		})
	}
}

func TestSessionRepositoryUnknownSession(t *testing.T) {
	for name, repo := range sessionRepositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := repo.Get(ctx, "nope")
			assert.ErrorIs(t, err, repository.ErrSessionNotFound)

			err = repo.AppendMessage(ctx, message("nope", "m1", entity.RoleUser, "x"))
			assert.ErrorIs(t, err, repository.ErrSessionNotFound)

			_, err = repo.SetState(ctx, "nope", entity.StateIdle, entity.StateThinking)
			assert.ErrorIs(t, err, repository.ErrSessionNotFound)

			assert.ErrorIs(t, repo.Clear(ctx, "nope"), repository.ErrSessionNotFound)
			assert.ErrorIs(t, repo.Delete(ctx, "nope"), repository.ErrSessionNotFound)
		})
	}
}

func TestSessionRepositorySetStateCompareAndSet(t *testing.T) {
	for name, repo := range sessionRepositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.Create(ctx, newSession("s1")))

			ok, err := repo.SetState(ctx, "s1", entity.StateIdle, entity.StateThinking)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = repo.SetState(ctx, "s1", entity.StateIdle, entity.StateThinking)
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = repo.SetState(ctx, "s1", "", entity.StateIdle)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestSessionRepositoryClear(t *testing.T) {
	for name, repo := range sessionRepositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.Create(ctx, newSession("s1")))
			require.NoError(t, repo.UpdateProfile(ctx, "s1", entity.Profile{Age: 52, Gender: entity.GenderFemale, MedicalHistory: "hypertension"}))
			require.NoError(t, repo.AppendMessage(ctx, message("s1", "m1", entity.RoleUser, "dizzy")))

			session, err := repo.Get(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, 52, session.Profile.Age)
			assert.Equal(t, entity.GenderFemale, session.Profile.Gender)

			require.NoError(t, repo.Clear(ctx, "s1"))

			session, err = repo.Get(ctx, "s1")
			require.NoError(t, err)
			assert.Empty(t, session.Messages)
			assert.Equal(t, entity.Profile{}, session.Profile)
		})
	}
}

func TestSessionRepositoryClearAndDeleteWhileThinking(t *testing.T) {
	for name, repo := range sessionRepositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.Create(ctx, newSession("s1")))
			require.NoError(t, repo.AppendMessage(ctx, message("s1", "m1", entity.RoleUser, "fever")))

			ok, err := repo.SetState(ctx, "s1", entity.StateIdle, entity.StateThinking)
			require.NoError(t, err)
			require.True(t, ok)

			assert.ErrorIs(t, repo.Clear(ctx, "s1"), repository.ErrSessionBusy)
			assert.ErrorIs(t, repo.Delete(ctx, "s1"), repository.ErrSessionBusy)

			session, err := repo.Get(ctx, "s1")
			require.NoError(t, err)
			assert.Len(t, session.Messages, 1)
			assert.Equal(t, entity.StateThinking, session.State)

			_, err = repo.SetState(ctx, "s1", entity.StateThinking, entity.StateIdle)
			require.NoError(t, err)
			require.NoError(t, repo.Clear(ctx, "s1"))
			require.NoError(t, repo.Delete(ctx, "s1"))
		})
	}
}

func TestSessionRepositoryListAndDelete(t *testing.T) {
	for name, repo := range sessionRepositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.Create(ctx, newSession("a")))
			require.NoError(t, repo.Create(ctx, newSession("b")))

			all, err := repo.List(ctx, 0)
			require.NoError(t, err)
			assert.Len(t, all, 2)

			limited, err := repo.List(ctx, 1)
			require.NoError(t, err)
			assert.Len(t, limited, 1)

			require.NoError(t, repo.Delete(ctx, "a"))
			_, err = repo.Get(ctx, "a")
			assert.ErrorIs(t, err, repository.ErrSessionNotFound)
		})
	}
}

func TestMemorySessionGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySessionRepository()
	require.NoError(t, repo.Create(ctx, newSession("s1")))
	require.NoError(t, repo.AppendMessage(ctx, message("s1", "m1", entity.RoleUser, "a")))

	session, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	session.Messages[0].Content = "changed"

	again, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "a", again.Messages[0].Content)
}
