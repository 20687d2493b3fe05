package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/LENAX/stageflow/pkg/core/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatabaseFactory(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		f, err := NewDatabaseFactory("memory", "")
		require.NoError(t, err)
		defer f.Close()

		repos := f.Repositories()
		require.NotNil(t, repos.Tasks)
		require.NotNil(t, repos.Linkings)
		require.NotNil(t, repos.Directory)
		assert.NoError(t, f.Ping(context.Background()))
	})

	t.Run("sqlite", func(t *testing.T) {
		f, err := NewDatabaseFactory("sqlite", filepath.Join(t.TempDir(), "factory.db"))
		require.NoError(t, err)
		defer f.Close()

		f.ConfigurePool(PoolConfig{MaxOpenConns: 4, MaxIdleConns: 2, ConnMaxLifetime: time.Hour})
		ctx := context.Background()
		require.NoError(t, f.Ping(ctx))
		require.NoError(t, f.Repositories().Tasks.Create(ctx, &task.Task{ID: "t1", Title: "a", Status: task.StatusPending, Priority: task.PriorityLow}))
		got, err := f.Repositories().Tasks.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "a", got.Title)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := NewDatabaseFactory("oracle", "")
		assert.Error(t, err)
	})
}
