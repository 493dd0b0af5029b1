package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pingflow/internal/domain"
	"pingflow/internal/store"
)

var created = time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)

func newService() (*Service, *store.Memory) {
	st := store.NewMemory()
	return NewService(st, func() time.Time { return created }), st
}

func mustCreate(t *testing.T, svc *Service, owner, url string, interval int) domain.Task {
	t.Helper()
	task, err := svc.Create(context.Background(), owner, NewTask{URL: url, IntervalMinutes: interval})
	require.NoError(t, err)
	return task
}

func TestCreate(t *testing.T) {
	svc, _ := newService()
	task, err := svc.Create(context.Background(), "alice", NewTask{
		URL:             " https://example.com/ping ",
		IntervalMinutes: 5,
		Description:     "keep warm",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "https://example.com/ping", task.Target.Encode())
	assert.Equal(t, domain.StatusActive, task.Status)
	assert.Equal(t, created, task.CreatedAt)
	assert.Equal(t, created, task.UpdatedAt)
	assert.Nil(t, task.LastRun)
	require.NotNil(t, task.NextRun)
	assert.Equal(t, created.Add(5*time.Minute), *task.NextRun)
}

func TestCreateValidation(t *testing.T) {
	svc, st := newService()
	for name, req := range map[string]NewTask{
		"zero interval":   {URL: "https://a.com", IntervalMinutes: 0},
		"too long":        {URL: "https://a.com", IntervalMinutes: 1441},
		"empty url":       {URL: "", IntervalMinutes: 5},
		"not http":        {URL: "mailto:a@b.c", IntervalMinutes: 5},
		"reserved scheme": {URL: `batch://["https://a.com"]`, IntervalMinutes: 5},
	} {
		_, err := svc.Create(context.Background(), "alice", req)
		var verr *domain.ValidationError
		assert.True(t, errors.As(err, &verr), name)
	}
	page, err := st.List(context.Background(), "alice", 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.TotalTasks)
}

func TestCreateBatchUsesMinimumInterval(t *testing.T) {
	svc, _ := newService()
	u1 := mustCreate(t, svc, "alice", "https://u1.example.com", 5)
	u2 := mustCreate(t, svc, "alice", "https://u2.example.com", 10)

	batch, err := svc.CreateBatch(context.Background(), "alice", BatchRequest{Name: "pair", TaskIDs: []string{u1.ID, u2.ID}})
	require.NoError(t, err)
	assert.True(t, batch.Target.IsBatch())
	assert.Equal(t, 5, batch.IntervalMinutes)
	assert.Equal(t, "merged task: pair", batch.Description)
	assert.Equal(t, domain.StatusActive, batch.Status)
	assert.Equal(t, created.Add(5*time.Minute), *batch.NextRun)

	urls, err := domain.DecodeTarget(batch.Target.Encode())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://u1.example.com", "https://u2.example.com"}, urls.URLs())
}

func TestCreateBatchIntervalIsFrozen(t *testing.T) {
	svc, _ := newService()
	u1 := mustCreate(t, svc, "alice", "https://u1.example.com", 5)
	u2 := mustCreate(t, svc, "alice", "https://u2.example.com", 10)
	batch, err := svc.CreateBatch(context.Background(), "alice", BatchRequest{Name: "pair", TaskIDs: []string{u2.ID, u1.ID}})
	require.NoError(t, err)

	one := 1
	_, err = svc.Edit(context.Background(), "alice", u1.ID, Edit{IntervalMinutes: &one})
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), "alice", batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.IntervalMinutes)
	assert.Equal(t, []string{"https://u2.example.com", "https://u1.example.com"}, got.Target.URLs())
}

func TestCreateBatchSkipsInactiveForeignAndMissing(t *testing.T) {
	svc, _ := newService()
	active := mustCreate(t, svc, "alice", "https://active.com", 30)
	paused := mustCreate(t, svc, "alice", "https://paused.com", 1)
	_, err := svc.Toggle(context.Background(), "alice", paused.ID)
	require.NoError(t, err)
	foreign := mustCreate(t, svc, "bob", "https://bob.com", 1)

	batch, err := svc.CreateBatch(context.Background(), "alice", BatchRequest{
		Name:        "mixed",
		Description: "custom",
		TaskIDs:     []string{paused.ID, foreign.ID, "missing", active.ID, active.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://active.com"}, batch.Target.URLs())
	assert.Equal(t, 30, batch.IntervalMinutes)
	assert.Equal(t, "custom", batch.Description)
}

func TestCreateBatchFlattensNestedBatches(t *testing.T) {
	svc, _ := newService()
	a := mustCreate(t, svc, "alice", "https://a.com", 5)
	b := mustCreate(t, svc, "alice", "https://b.com", 5)
	inner, err := svc.CreateBatch(context.Background(), "alice", BatchRequest{Name: "inner", TaskIDs: []string{a.ID, b.ID}})
	require.NoError(t, err)
	c := mustCreate(t, svc, "alice", "https://c.com", 2)

	outer, err := svc.CreateBatch(context.Background(), "alice", BatchRequest{Name: "outer", TaskIDs: []string{inner.ID, c.ID}})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.com", "https://b.com", "https://c.com"}, outer.Target.URLs())
	assert.Equal(t, 2, outer.IntervalMinutes)
}

func TestCreateBatchErrors(t *testing.T) {
	svc, _ := newService()
	paused := mustCreate(t, svc, "alice", "https://paused.com", 1)
	_, err := svc.Toggle(context.Background(), "alice", paused.ID)
	require.NoError(t, err)

	_, err = svc.CreateBatch(context.Background(), "alice", BatchRequest{Name: "x", TaskIDs: []string{paused.ID}})
	assert.ErrorIs(t, err, ErrNoActiveMembers)

	var verr *domain.ValidationError
	_, err = svc.CreateBatch(context.Background(), "alice", BatchRequest{Name: "", TaskIDs: []string{paused.ID}})
	assert.True(t, errors.As(err, &verr))
	_, err = svc.CreateBatch(context.Background(), "alice", BatchRequest{Name: "x"})
	assert.True(t, errors.As(err, &verr))
}

func TestToggleTwiceIsIdentity(t *testing.T) {
	svc, _ := newService()
	task := mustCreate(t, svc, "alice", "https://a.com", 5)

	once, err := svc.Toggle(context.Background(), "alice", task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, once.Status)
	assert.Equal(t, *task.NextRun, *once.NextRun)

	twice, err := svc.Toggle(context.Background(), "alice", task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.Status, twice.Status)
	assert.Equal(t, *task.NextRun, *twice.NextRun)
}

func TestToggleResumesErrorTask(t *testing.T) {
	svc, _ := newService()
	task := mustCreate(t, svc, "alice", "https://a.com", 5)
	status := domain.StatusError
	_, err := svc.Edit(context.Background(), "alice", task.ID, Edit{Status: &status})
	require.NoError(t, err)

	got, err := svc.Toggle(context.Background(), "alice", task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, got.Status)
}

func TestToggleNotFound(t *testing.T) {
	svc, _ := newService()
	task := mustCreate(t, svc, "alice", "https://a.com", 5)
	_, err := svc.Toggle(context.Background(), "bob", task.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEdit(t *testing.T) {
	svc, _ := newService()
	task := mustCreate(t, svc, "alice", "https://a.com", 5)

	url := "https://b.com"
	interval := 60
	desc := "hourly"
	got, err := svc.Edit(context.Background(), "alice", task.ID, Edit{URL: &url, IntervalMinutes: &interval, Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "https://b.com", got.Target.Encode())
	assert.Equal(t, 60, got.IntervalMinutes)
	assert.Equal(t, "hourly", got.Description)
	assert.Equal(t, *task.NextRun, *got.NextRun, "edits do not reschedule")

	bad := 0
	_, err = svc.Edit(context.Background(), "alice", task.ID, Edit{IntervalMinutes: &bad})
	var verr *domain.ValidationError
	assert.True(t, errors.As(err, &verr))

	status := domain.Status("running")
	_, err = svc.Edit(context.Background(), "alice", task.ID, Edit{Status: &status})
	assert.True(t, errors.As(err, &verr))

	same, err := svc.Edit(context.Background(), "alice", task.ID, Edit{})
	require.NoError(t, err)
	assert.Equal(t, 60, same.IntervalMinutes)
}

func TestDelete(t *testing.T) {
	svc, _ := newService()
	task := mustCreate(t, svc, "alice", "https://a.com", 5)

	ok, err := svc.Delete(context.Background(), "bob", task.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.Delete(context.Background(), "alice", task.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.Get(context.Background(), "alice", task.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
