package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/LENAX/stageflow/pkg/config"
	"github.com/LENAX/stageflow/pkg/core/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
workflows:
  - id: wf1
    name: 报表流程
dependencies:
  - id: dep1
    workflow_id: wf1
    name: 默认
    stages:
      - stage_order: 1
        user_id: U1
        checker_id: C1
      - stage_order: 2
        user_id: U2
        checker_id: C2
`

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func testConfig(t *testing.T) *config.EngineConfig {
	t.Helper()
	seed := filepath.Join(t.TempDir(), "directory.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(seedYAML), 0o644))

	cfg := &config.EngineConfig{}
	sf := &cfg.Stageflow
	sf.Storage.Database.Type = "memory"
	sf.Storage.Cache.Enabled = true
	sf.Directory.SeedFile = seed
	sf.Monitor.Enabled = true
	sf.Server.Host = "127.0.0.1"
	sf.Server.Port = freePort(t)
	sf.Server.Mode = "test"
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestApp_NewAppliesSeed(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, "test")
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	dep, err := a.Directory().Repository().GetDependency(ctx, "dep1")
	require.NoError(t, err)
	assert.Len(t, dep.Stages, 2)

	created, err := a.Engine().CreateTask(ctx, task.CreateSpec{
		Title:            "月度报表",
		WorkflowID:       "wf1",
		UserDependencyID: "dep1",
	})
	require.NoError(t, err)
	assert.Equal(t, "U1", created.AssignedTo)
	assert.Equal(t, "C1", created.CheckerID)
}

func TestApp_NewRejectsBadSeed(t *testing.T) {
	cfg := testConfig(t)
	cfg.Stageflow.Directory.SeedFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := New(context.Background(), cfg, "test")
	assert.Error(t, err)
}

func TestApp_RunServesUntilCancelled(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, "test")
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	url := fmt.Sprintf("http://%s/health", cfg.Stageflow.Server.Addr())
	assert.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run未在ctx取消后返回")
	}
}

func TestEnsureSQLiteDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	require.NoError(t, ensureSQLiteDir("sqlite", filepath.Join(dir, "stageflow.db")))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	assert.NoError(t, ensureSQLiteDir("sqlite", ":memory:"))
	assert.NoError(t, ensureSQLiteDir("mysql", "/nonexistent/x"))
}
