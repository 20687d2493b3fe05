package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/LENAX/stageflow/pkg/core/directory"
	"github.com/LENAX/stageflow/pkg/core/linking"
	"github.com/LENAX/stageflow/pkg/core/task"
	"github.com/LENAX/stageflow/pkg/storage"
	"github.com/LENAX/stageflow/pkg/storage/sqlstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore 使用临时文件数据库创建存储
func setupTestStore(t *testing.T) *sqlstore.Store {
	dbFile := filepath.Join(t.TempDir(), "stageflow_test.db")
	store, err := NewStoreFromDSN(dbFile)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleTask(id string, created time.Time) *task.Task {
	due := created.Add(24 * time.Hour)
	return &task.Task{
		ID:               id,
		Title:            "采集门店数据",
		Status:           task.StatusPending,
		Priority:         task.PriorityHigh,
		CategoryID:       "C1",
		AssignedTo:       "U1",
		CheckerID:        "K1",
		WorkflowID:       "W1",
		UserDependencyID: "D1",
		CurrentStage:     1,
		Logs: []task.LogEntry{
			{Action: task.ActionCreated, Timestamp: created, PerformedBy: "admin"},
		},
		CreatedBy: "admin",
		DueDate:   &due,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestTaskRepo_CreateGetUpdate(t *testing.T) {
	repo := setupTestStore(t).Tasks()
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	tk := sampleTask("t1", created)
	require.NoError(t, repo.Create(ctx, tk))
	assert.Equal(t, 1, tk.Version)

	got, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "采集门店数据", got.Title)
	assert.Equal(t, task.PriorityHigh, got.Priority)
	assert.Equal(t, "W1", got.WorkflowID)
	assert.Nil(t, got.Review)
	assert.Empty(t, got.StageHistory)
	require.Len(t, got.Logs, 1)
	require.NotNil(t, got.DueDate)
	assert.True(t, got.DueDate.Equal(*tk.DueDate))
	assert.True(t, got.CreatedAt.Equal(created))

	// 追加阶段记录和审核信息后更新
	submitted := created.Add(time.Hour)
	got.Status = task.StatusSubmitted
	got.Review = &task.Review{SubmissionData: map[string]any{"a": "5"}, SubmittedAt: &submitted, SubmittedBy: "U1"}
	got.StageHistory = append(got.StageHistory, task.StageRecord{
		StageOrder: 1,
		UserID:     "U1",
		OutputData: map[string]any{"a": "5"},
		ApprovedAt: submitted,
	})
	require.NoError(t, repo.Update(ctx, got))
	assert.Equal(t, 2, got.Version)

	reloaded, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Version)
	assert.Equal(t, task.StatusSubmitted, reloaded.Status)
	require.NotNil(t, reloaded.Review)
	assert.Equal(t, "5", reloaded.Review.SubmissionData["a"])
	require.Len(t, reloaded.StageHistory, 1)
	assert.Equal(t, "5", reloaded.StageHistory[0].OutputData["a"])
}

func TestTaskRepo_VersionConflict(t *testing.T) {
	repo := setupTestStore(t).Tasks()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sampleTask("t1", time.Now())))

	a, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	b, err := repo.Get(ctx, "t1")
	require.NoError(t, err)

	a.Title = "A"
	require.NoError(t, repo.Update(ctx, a))

	// b基于旧版本，写入被拒绝
	b.Title = "B"
	err = repo.Update(ctx, b)
	assert.True(t, errors.Is(err, storage.ErrVersionConflict))

	got, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "A", got.Title)
}

func TestTaskRepo_NotFound(t *testing.T) {
	repo := setupTestStore(t).Tasks()
	ctx := context.Background()

	_, err := repo.Get(ctx, "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	err = repo.Update(ctx, sampleTask("missing", time.Now()))
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	assert.True(t, errors.Is(repo.Delete(ctx, "missing"), storage.ErrNotFound))
}

func TestTaskRepo_ListAndDelete(t *testing.T) {
	repo := setupTestStore(t).Tasks()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	t1 := sampleTask("t1", base)
	t2 := sampleTask("t2", base.Add(time.Minute))
	t2.AssignedTo = "U2"
	t2.DueDate = nil
	t3 := sampleTask("t3", base.Add(2*time.Minute))
	t3.Status = task.StatusCompleted
	t3.WorkflowID = ""
	t3.UserDependencyID = ""
	for _, tk := range []*task.Task{t1, t2, t3} {
		require.NoError(t, repo.Create(ctx, tk))
	}

	all, err := repo.List(ctx, task.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "t1", all[0].ID)
	assert.Equal(t, "t3", all[2].ID)
	assert.Empty(t, all[2].WorkflowID)

	byUser, err := repo.List(ctx, task.Filter{AssignedTo: "U2"})
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, "t2", byUser[0].ID)

	byWF, err := repo.List(ctx, task.Filter{WorkflowID: "W1", Status: task.StatusPending})
	require.NoError(t, err)
	assert.Len(t, byWF, 2)

	open, err := repo.ListOpenWithDueDate(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "t1", open[0].ID)

	require.NoError(t, repo.Delete(ctx, "t1"))
	all, err = repo.List(ctx, task.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestTaskRepo_CorruptRecord(t *testing.T) {
	store := setupTestStore(t)
	repo := store.Tasks()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sampleTask("t1", time.Now())))
	_, err := store.DB().Exec(`UPDATE tasks SET stage_history = '{broken' WHERE id = 't1'`)
	require.NoError(t, err)

	_, err = repo.Get(ctx, "t1")
	assert.True(t, errors.Is(err, storage.ErrCorruptRecord))
}

func TestLinkingConfigRepo_SaveListDelete(t *testing.T) {
	repo := setupTestStore(t).Linkings()
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	cfg := &linking.Config{
		ID:         "cfg1",
		WorkflowID: "W1",
		Name:       "采集到复核",
		StageMappings: []linking.StageMapping{{
			FromStageOrder: 1,
			ToStageOrder:   2,
			FieldMappings:  []linking.FieldMapping{{FromFieldID: "a", ToFieldID: "x"}},
		}},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.Save(ctx, cfg))

	// 再次保存为更新
	cfg.Name = "改名"
	cfg.IsActive = false
	cfg.UpdatedAt = now.Add(time.Hour)
	require.NoError(t, repo.Save(ctx, cfg))

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "改名", all[0].Name)
	assert.False(t, all[0].IsActive)
	assert.True(t, all[0].CreatedAt.Equal(now))
	require.Len(t, all[0].StageMappings, 1)
	assert.Equal(t, "x", all[0].StageMappings[0].FieldMappings[0].ToFieldID)

	require.NoError(t, repo.Delete(ctx, "cfg1"))
	all, err = repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestDirectoryRepo_DependencyAndCounters(t *testing.T) {
	repo := setupTestStore(t).Directory()
	ctx := context.Background()

	require.NoError(t, repo.SaveWorkflow(ctx, &directory.WorkflowDefinition{ID: "W1", Name: "门店巡检", CreatedAt: time.Now()}))
	dep := &directory.UserDependency{
		ID:         "D1",
		WorkflowID: "W1",
		Stages: []directory.StageAssignment{
			{StageOrder: 1, UserID: "U1", CheckerID: "K1"},
			{StageOrder: 2, UserID: "U2", CheckerID: "K2"},
		},
		CreatedAt: time.Now(),
	}
	require.NoError(t, repo.SaveDependency(ctx, dep))

	got, err := repo.GetDependency(ctx, "D1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.Stages, 2)
	assert.Equal(t, "U2", got.Stages[1].UserID)

	require.NoError(t, repo.IncrementDependencyTaskCount(ctx, "D1"))
	require.NoError(t, repo.IncrementWorkflowTaskCount(ctx, "W1"))

	// 重新保存不会覆盖使用计数
	require.NoError(t, repo.SaveDependency(ctx, dep))
	got, err = repo.GetDependency(ctx, "D1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.TaskCount)

	wf, err := repo.GetWorkflow(ctx, "W1")
	require.NoError(t, err)
	assert.Equal(t, 1, wf.TaskCount)

	missing, err := repo.GetDependency(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.True(t, errors.Is(repo.IncrementDependencyTaskCount(ctx, "nope"), storage.ErrNotFound))

	deps, err := repo.ListDependencies(ctx, "W1")
	require.NoError(t, err)
	assert.Len(t, deps, 1)
	deps, err = repo.ListDependencies(ctx, "W2")
	require.NoError(t, err)
	assert.Empty(t, deps)

	require.NoError(t, repo.DeleteDependency(ctx, "D1"))
	assert.True(t, errors.Is(repo.DeleteDependency(ctx, "D1"), storage.ErrNotFound))
}

func TestNewStoreFromDSN_Memory(t *testing.T) {
	store, err := NewStoreFromDSN(":memory:")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Tasks().Create(context.Background(), sampleTask("t1", time.Now())))
	_, err = store.Tasks().Get(context.Background(), "t1")
	assert.NoError(t, err)

	_, err = NewStoreFromDSN("")
	assert.Error(t, err)
}
