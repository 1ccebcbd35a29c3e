package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/visitwise/visitwise/internal/domain/entity"
	"github.com/visitwise/visitwise/internal/domain/repository"
	"github.com/visitwise/visitwise/internal/infrastructure/storage"
)

type fakeAI struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []entity.Prompt
	started chan struct{}
	unblock chan struct{}
}

func (f *fakeAI) GenerateReply(ctx context.Context, prompt entity.Prompt) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.unblock != nil {
		<-f.unblock
	}
	return f.reply, f.err
}

func (f *fakeAI) Close() error { return nil }

func (f *fakeAI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func newTriage(t *testing.T, ai *fakeAI) (TriageUseCase, repository.MedicineRepository) {
	t.Helper()
	medicines := storage.NewMemoryMedicineRepository()
	require.NoError(t, medicines.Set(context.Background(), entity.MedicineCatalog{
		Columns: []string{"name"},
		Records: []entity.MedicineRecord{{Fields: map[string]string{"name": "Paracetamol"}}},
	}))
	return NewTriageUseCase(ai, storage.NewMemorySessionRepository(), medicines, 0), medicines
}

func TestProcessMessageEmptyNeverCallsModel(t *testing.T) {
	ai := &fakeAI{reply: "unused"}
	uc, _ := newTriage(t, ai)
	ctx := context.Background()

	session, err := uc.StartSession(ctx)
	require.NoError(t, err)

	for _, text := range []string{"", "   ", "\n\t "} {
		_, err := uc.ProcessMessage(ctx, session.ID, text, entity.Profile{})
		assert.ErrorIs(t, err, ErrEmptyMessage)
	}
	assert.Equal(t, 0, ai.calls())

	got, err := uc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
}

func TestProcessMessageCallsModelWithPrompt(t *testing.T) {
	ai := &fakeAI{reply: "Rest and hydrate."}
	uc, _ := newTriage(t, ai)
	ctx := context.Background()

	profile := entity.Profile{Age: 40, Gender: entity.GenderMale, MedicalHistory: "diabetes"}
	res, err := uc.ProcessMessage(ctx, "", "Headache and nausea", profile)
	require.NoError(t, err)
	assert.Equal(t, "Rest and hydrate.", res.Reply)
	assert.False(t, res.Emergency)
	assert.NotEmpty(t, res.SessionID)

	require.Equal(t, 1, ai.calls())
	p := ai.prompts[0]
	assert.Equal(t, SystemPrompt, p.System)
	assert.Contains(t, p.User, "User message: Headache and nausea")
	assert.Contains(t, p.User, "Age: 40")
	assert.Contains(t, p.User, "Gender: Male")
	assert.Contains(t, p.User, "Medical history: diabetes")
	assert.Contains(t, p.User, "name: Paracetamol")

	session, err := uc.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	require.Len(t, session.Messages, 2)
	assert.Equal(t, entity.RoleUser, session.Messages[0].Role)
	assert.Equal(t, entity.RoleAssistant, session.Messages[1].Role)
	assert.Equal(t, "Rest and hydrate.", session.LastReply())
	assert.Equal(t, profile, session.Profile)
	assert.Equal(t, entity.StateIdle, session.State)
}

func TestProcessMessageEmergencyBypassesModel(t *testing.T) {
	ai := &fakeAI{reply: "unused"}
	uc, _ := newTriage(t, ai)

	res, err := uc.ProcessMessage(context.Background(), "", "Sudden CHEST PAIN and sweating", entity.Profile{})
	require.NoError(t, err)
	assert.True(t, res.Emergency)
	assert.Equal(t, EmergencyReply, res.Reply)
	assert.Equal(t, 0, ai.calls())
}

func TestProcessMessageModelErrorReturnsToIdle(t *testing.T) {
	ai := &fakeAI{err: errors.New("upstream down")}
	uc, _ := newTriage(t, ai)
	ctx := context.Background()

	session, err := uc.StartSession(ctx)
	require.NoError(t, err)

	_, err = uc.ProcessMessage(ctx, session.ID, "sore throat", entity.Profile{})
	require.Error(t, err)

	got, err := uc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StateIdle, got.State)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, entity.RoleUser, got.Messages[0].Role)
	assert.Equal(t, "", got.LastReply())
}

func TestProcessMessageRejectsInvalidProfile(t *testing.T) {
	ai := &fakeAI{reply: "ok"}
	uc, _ := newTriage(t, ai)

	_, err := uc.ProcessMessage(context.Background(), "", "cough", entity.Profile{Age: -1})
	assert.ErrorIs(t, err, entity.ErrInvalidAge)

	_, err = uc.ProcessMessage(context.Background(), "", "cough", entity.Profile{Gender: "Robot"})
	assert.ErrorIs(t, err, entity.ErrInvalidGender)
	assert.Equal(t, 0, ai.calls())
}

func TestProcessMessageUnknownSession(t *testing.T) {
	uc, _ := newTriage(t, &fakeAI{reply: "ok"})

	_, err := uc.ProcessMessage(context.Background(), "missing", "cough", entity.Profile{})
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
}

func TestProcessMessageBusySession(t *testing.T) {
	ai := &fakeAI{reply: "ok", started: make(chan struct{}), unblock: make(chan struct{})}
	uc, _ := newTriage(t, ai)
	ctx := context.Background()

	session, err := uc.StartSession(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := uc.ProcessMessage(ctx, session.ID, "first", entity.Profile{})
		done <- err
	}()
	<-ai.started

	_, err = uc.ProcessMessage(ctx, session.ID, "second", entity.Profile{})
	assert.ErrorIs(t, err, ErrSessionBusy)

	close(ai.unblock)
	require.NoError(t, <-done)
}

func TestClearResetsProfileAndMessages(t *testing.T) {
	uc, _ := newTriage(t, &fakeAI{reply: "ok"})
	ctx := context.Background()

	res, err := uc.ProcessMessage(ctx, "", "cough", entity.Profile{Age: 30, Gender: entity.GenderOther, MedicalHistory: "none"})
	require.NoError(t, err)

	require.NoError(t, uc.Clear(ctx, res.SessionID))

	session, err := uc.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Empty(t, session.Messages)
	assert.Equal(t, entity.Profile{}, session.Profile)
	assert.Equal(t, entity.StateIdle, session.State)
}

func TestEnsureSessionCreatesOnce(t *testing.T) {
	uc, _ := newTriage(t, &fakeAI{reply: "ok"})
	ctx := context.Background()

	first, err := uc.EnsureSession(ctx, "tg-42")
	require.NoError(t, err)
	second, err := uc.EnsureSession(ctx, "tg-42")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestClearWhileThinkingIsRejected(t *testing.T) {
	ai := &fakeAI{reply: "ok", started: make(chan struct{}), unblock: make(chan struct{})}
	uc, _ := newTriage(t, ai)
	ctx := context.Background()

	session, err := uc.StartSession(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := uc.ProcessMessage(ctx, session.ID, "first", entity.Profile{})
		done <- err
	}()
	<-ai.started

	assert.ErrorIs(t, uc.Clear(ctx, session.ID), ErrSessionBusy)
	assert.ErrorIs(t, uc.DeleteSession(ctx, session.ID), ErrSessionBusy)

	_, err = uc.ProcessMessage(ctx, session.ID, "second", entity.Profile{})
	assert.ErrorIs(t, err, ErrSessionBusy)

	close(ai.unblock)
	require.NoError(t, <-done)
	assert.Equal(t, 1, ai.calls())

	got, err := uc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "first", got.Messages[0].Content)

	require.NoError(t, uc.Clear(ctx, session.ID))
	got, err = uc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
}

func TestProcessMessageWithStoredProfile(t *testing.T) {
	ai := &fakeAI{reply: "ok"}
	uc, _ := newTriage(t, ai)
	ctx := context.Background()

	session, err := uc.EnsureSession(ctx, "tg-7")
	require.NoError(t, err)
	stored := entity.Profile{Age: 71, Gender: entity.GenderFemale, MedicalHistory: "COPD"}
	require.NoError(t, uc.UpdateProfile(ctx, session.ID, stored))

	_, err = uc.ProcessMessageWithStoredProfile(ctx, session.ID, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	res, err := uc.ProcessMessageWithStoredProfile(ctx, session.ID, "persistent cough")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Reply)

	require.Equal(t, 1, ai.calls())
	assert.Contains(t, ai.prompts[0].User, "Age: 71")
	assert.Contains(t, ai.prompts[0].User, "Medical history: COPD")

	got, err := uc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, stored, got.Profile)
}

func TestListAndDeleteSessions(t *testing.T) {
	uc, _ := newTriage(t, &fakeAI{reply: "ok"})
	ctx := context.Background()

	a, err := uc.StartSession(ctx)
	require.NoError(t, err)
	_, err = uc.StartSession(ctx)
	require.NoError(t, err)

	all, err := uc.ListSessions(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, uc.DeleteSession(ctx, a.ID))
	_, err = uc.GetSession(ctx, a.ID)
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
	assert.ErrorIs(t, uc.DeleteSession(ctx, a.ID), repository.ErrSessionNotFound)
}

func TestPruneIdleRemovesOnlyStaleIdleSessions(t *testing.T) {
	ai := &fakeAI{reply: "ok", started: make(chan struct{}), unblock: make(chan struct{})}
	uc, _ := newTriage(t, ai)
	ctx := context.Background()

	stale, err := uc.StartSession(ctx)
	require.NoError(t, err)
	busy, err := uc.StartSession(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := uc.ProcessMessage(ctx, busy.ID, "first", entity.Profile{})
		done <- err
	}()
	<-ai.started

	uc.(*triageUseCase).now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	fresh, err := uc.StartSession(ctx)
	require.NoError(t, err)

	removed, err := uc.PruneIdle(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = uc.GetSession(ctx, stale.ID)
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
	_, err = uc.GetSession(ctx, busy.ID)
	assert.NoError(t, err)
	_, err = uc.GetSession(ctx, fresh.ID)
	assert.NoError(t, err)

	close(ai.unblock)
	require.NoError(t, <-done)
}
