package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LENAX/stageflow/pkg/core/directory"
	"github.com/LENAX/stageflow/pkg/core/task"
	"github.com/LENAX/stageflow/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskRepo_CopiesAndVersions(t *testing.T) {
	repo := NewTaskRepo()
	ctx := context.Background()

	tk := &task.Task{ID: "t1", Title: "a", Status: task.StatusPending, CreatedAt: time.Now()}
	require.NoError(t, repo.Create(ctx, tk))
	assert.Equal(t, 1, tk.Version)

	// 修改调用方持有的对象不影响存储
	tk.Title = "changed"
	got, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Title)

	stale, _ := repo.Get(ctx, "t1")
	got.Title = "b"
	require.NoError(t, repo.Update(ctx, got))
	assert.Equal(t, 2, got.Version)

	stale.Title = "c"
	assert.True(t, errors.Is(repo.Update(ctx, stale), storage.ErrVersionConflict))
}

func TestTaskRepo_FailureInjection(t *testing.T) {
	repo := NewTaskRepo()
	ctx := context.Background()

	repo.SetShouldFailSave(true)
	err := repo.Create(ctx, &task.Task{ID: "t1"})
	assert.True(t, errors.Is(err, ErrInjected))
	repo.SetShouldFailSave(false)

	repo.SetFailCount(1)
	assert.Error(t, repo.Create(ctx, &task.Task{ID: "t1"}))
	assert.NoError(t, repo.Create(ctx, &task.Task{ID: "t1"}))
}

func TestTaskRepo_ListOpenWithDueDate(t *testing.T) {
	repo := NewTaskRepo()
	ctx := context.Background()
	due := time.Now().Add(time.Hour)

	require.NoError(t, repo.Create(ctx, &task.Task{ID: "t1", Status: task.StatusPending, DueDate: &due}))
	require.NoError(t, repo.Create(ctx, &task.Task{ID: "t2", Status: task.StatusCompleted, DueDate: &due}))
	require.NoError(t, repo.Create(ctx, &task.Task{ID: "t3", Status: task.StatusPending}))

	open, err := repo.ListOpenWithDueDate(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "t1", open[0].ID)
}

func TestDirectoryRepo_KeepsCounters(t *testing.T) {
	repo := NewDirectoryRepo()
	ctx := context.Background()

	dep := &directory.UserDependency{ID: "D1", WorkflowID: "W1", Stages: []directory.StageAssignment{{StageOrder: 1}}}
	require.NoError(t, repo.SaveDependency(ctx, dep))
	require.NoError(t, repo.IncrementDependencyTaskCount(ctx, "D1"))
	require.NoError(t, repo.SaveDependency(ctx, dep))

	got, err := repo.GetDependency(ctx, "D1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.TaskCount)

	// 返回值是拷贝
	got.Stages[0].UserID = "hacked"
	again, _ := repo.GetDependency(ctx, "D1")
	assert.Empty(t, again.Stages[0].UserID)

	assert.True(t, errors.Is(repo.IncrementWorkflowTaskCount(ctx, "W1"), storage.ErrNotFound))
}
