package directory_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/LENAX/stageflow/pkg/core/directory"
	"github.com/LENAX/stageflow/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
workflows:
  - id: wf1
    name: 资料审核
dependencies:
  - id: dep1
    workflow_id: wf1
    name: 两阶段
    stages:
      - {stage_order: 2, user_id: U2, checker_id: C2, category_id: cat2}
      - {stage_order: 1, user_id: U1, checker_id: C1, category_id: cat1, user_name: 张三}
`

func TestParseSeed(t *testing.T) {
	seed, err := directory.ParseSeed([]byte(seedYAML))
	require.NoError(t, err)
	require.Len(t, seed.Workflows, 1)
	require.Len(t, seed.Dependencies, 1)
	assert.Equal(t, "张三", seed.Dependencies[0].Stages[1].UserName)

	_, err = directory.ParseSeed([]byte("workflows: [{id: wf1}]"))
	assert.Error(t, err)
	_, err = directory.ParseSeed([]byte(`
workflows: [{id: wf1, name: a}]
dependencies: [{id: d, workflow_id: other, stages: [{stage_order: 1, user_id: U, checker_id: C}]}]`))
	assert.Error(t, err)
	_, err = directory.ParseSeed([]byte("workflows: ["))
	assert.Error(t, err)
}

func TestService_ApplySeedKeepsCounters(t *testing.T) {
	ctx := context.Background()
	svc := directory.NewService(memory.NewDirectoryRepo())
	seed, err := directory.ParseSeed([]byte(seedYAML))
	require.NoError(t, err)

	ids, err := svc.ApplySeed(ctx, seed)
	require.NoError(t, err)
	assert.Equal(t, []string{"dep1"}, ids)
	require.NoError(t, svc.IncrementTaskCount(ctx, "dep1"))

	_, err = svc.ApplySeed(ctx, seed)
	require.NoError(t, err)
	dep, err := svc.Repository().GetDependency(ctx, "dep1")
	require.NoError(t, err)
	assert.Equal(t, 1, dep.TaskCount)
	assert.Equal(t, 1, dep.Stages[0].StageOrder)
	// 种子本身不被排序修改
	assert.Equal(t, 2, seed.Dependencies[0].Stages[0].StageOrder)
}

func TestWatchSeedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "directory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o644))

	var mu sync.Mutex
	var applied []*directory.Seed
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- directory.WatchSeedFile(ctx, path, func(s *directory.Seed) error {
			mu.Lock()
			defer mu.Unlock()
			applied = append(applied, s)
			return nil
		})
	}()

	// 监听建立前的写入可能丢失，持续改写直到回调被触发
	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(seedYAML), 0o644)
		mu.Lock()
		defer mu.Unlock()
		return len(applied) > 0
	}, 5*time.Second, 300*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WatchSeedFile未在ctx取消后返回")
	}
}
