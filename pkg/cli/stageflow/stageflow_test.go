package stageflow

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/LENAX/stageflow/pkg/api"
	"github.com/LENAX/stageflow/pkg/api/dto"
	"github.com/LENAX/stageflow/pkg/core/directory"
	"github.com/LENAX/stageflow/pkg/core/engine"
	"github.com/LENAX/stageflow/pkg/core/linking"
	"github.com/LENAX/stageflow/pkg/core/task"
	"github.com/LENAX/stageflow/pkg/storage/memory"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *Stageflow {
	t.Helper()
	svc := directory.NewService(memory.NewDirectoryRepo())
	linker := linking.NewEngine(memory.NewLinkingConfigRepo())
	eng, err := engine.NewEngine(memory.NewTaskRepo(),
		engine.WithStageDirectory(svc),
		engine.WithWorkflowRegistry(svc.Workflows()),
		engine.WithFieldLinker(linker),
	)
	require.NoError(t, err)

	router := api.SetupRouter(api.Dependencies{
		Engine:    eng,
		Linking:   linker,
		Directory: svc,
		Mode:      gin.TestMode,
	}, "test")
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return New(srv.URL + "/")
}

func TestClient_WorkflowRoundTrip(t *testing.T) {
	c := newServer(t)

	health, err := c.Health()
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)

	_, err = c.RegisterWorkflow(dto.RegisterWorkflowRequest{ID: "wf1", Name: "资料审核"})
	require.NoError(t, err)
	_, err = c.SaveDependency("dep1", dto.DependencyRequest{
		WorkflowID: "wf1",
		Stages: []directory.StageAssignment{
			{StageOrder: 1, UserID: "U1", CheckerID: "C1"},
			{StageOrder: 2, UserID: "U2", CheckerID: "C2"},
		},
	})
	require.NoError(t, err)

	cfg, err := c.CreateLinking(linking.CreateSpec{
		WorkflowID: "wf1",
		Name:       "联动",
		StageMappings: []linking.StageMapping{{
			FromStageOrder: 1, ToStageOrder: 2,
			FieldMappings: []linking.FieldMapping{{FromFieldID: "f1", ToFieldID: "fA"}},
		}},
	})
	require.NoError(t, err)
	mappings, err := c.FieldMappings("wf1", 1, 2)
	require.NoError(t, err)
	assert.Len(t, mappings, 1)

	created, err := c.CreateTask(dto.CreateTaskRequest{Title: "报表", WorkflowID: "wf1", UserDependencyID: "dep1"})
	require.NoError(t, err)
	assert.Equal(t, "U1", created.AssignedTo)

	_, err = c.SubmitTask(created.ID, "U1", map[string]interface{}{"f1": "x"})
	require.NoError(t, err)
	outcome, err := c.ApproveTask(created.ID, dto.ApproveRequest{CheckerID: "C1"})
	require.NoError(t, err)
	require.NotNil(t, outcome.Handoff)
	assert.Equal(t, "x", outcome.Handoff.Prefill["fA"])

	prefill, err := c.GetPrefill(created.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, prefill.Stage)

	list, err := c.ListTasks(dto.TaskListQuery{AssignedTo: "U2"})
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, task.StatusPending, list.Items[0].Status)

	linkings, err := c.ListLinkings("wf1")
	require.NoError(t, err)
	require.Len(t, linkings, 1)
	assert.Equal(t, cfg.ID, linkings[0].ID)

	deps, err := c.ListDependencies("wf1")
	require.NoError(t, err)
	assert.Len(t, deps, 1)
}

func TestClient_Errors(t *testing.T) {
	c := newServer(t)

	_, err := c.GetTask("missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "NOT_FOUND", apiErr.Kind)

	_, err = c.CreateTask(dto.CreateTaskRequest{Title: "t", WorkflowID: "wf1", UserDependencyID: "nope"})
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "ASSIGNMENT_GAP", apiErr.Kind)

	_, err = c.GetDependency("nope")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)

	unreachable := New("http://127.0.0.1:1")
	_, err = unreachable.Health()
	assert.Error(t, err)
	assert.False(t, errors.As(err, &apiErr))
}
