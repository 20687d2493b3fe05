package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LENAX/stageflow/pkg/api"
	"github.com/LENAX/stageflow/pkg/core/directory"
	"github.com/LENAX/stageflow/pkg/core/engine"
	"github.com/LENAX/stageflow/pkg/core/events"
	"github.com/LENAX/stageflow/pkg/core/linking"
	"github.com/LENAX/stageflow/pkg/core/task"
	"github.com/LENAX/stageflow/pkg/storage/memory"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type invalidations struct {
	mu  sync.Mutex
	ids []string
}

func (i *invalidations) Invalidate(id string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.ids = append(i.ids, id)
}

type testServer struct {
	router *gin.Engine
	bus    *events.Bus
	cache  *invalidations
}

func newTestServer(t *testing.T, ready func(context.Context) error) *testServer {
	t.Helper()
	ctx := context.Background()

	svc := directory.NewService(memory.NewDirectoryRepo())
	require.NoError(t, svc.RegisterWorkflow(ctx, &directory.WorkflowDefinition{ID: "wf1", Name: "资料审核"}))
	require.NoError(t, svc.RegisterDependency(ctx, &directory.UserDependency{
		ID:         "dep1",
		WorkflowID: "wf1",
		Stages: []directory.StageAssignment{
			{StageOrder: 1, CategoryID: "cat1", UserID: "U1", CheckerID: "C1"},
			{StageOrder: 2, CategoryID: "cat2", UserID: "U2", CheckerID: "C2"},
		},
	}))

	bus := events.NewBus(16, nil)
	t.Cleanup(func() { _ = bus.Close() })

	linker := linking.NewEngine(memory.NewLinkingConfigRepo(), linking.WithPublisher(bus))
	eng, err := engine.NewEngine(memory.NewTaskRepo(),
		engine.WithStageDirectory(svc),
		engine.WithWorkflowRegistry(svc.Workflows()),
		engine.WithFieldLinker(linker),
		engine.WithPublisher(bus),
	)
	require.NoError(t, err)

	cache := &invalidations{}
	router := api.SetupRouter(api.Dependencies{
		Engine:    eng,
		Linking:   linker,
		Directory: svc,
		Cache:     cache,
		Events:    bus,
		Ready:     ready,
		Mode:      gin.TestMode,
	}, "test")
	return &testServer{router: router, bus: bus, cache: cache}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func errorKind(t *testing.T, env envelope) string {
	return decode[struct {
		Kind string `json:"kind"`
	}](t, env.Data).Kind
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, nil)
	w, env := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, env.Data)["status"])

	w, _ = s.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	down := newTestServer(t, func(context.Context) error { return errors.New("db down") })
	w, env = down.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, env.Message, "db down")
}

func TestTaskWorkflowOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)

	w, _ := s.do(t, http.MethodPost, "/api/v1/linkings", map[string]interface{}{
		"workflowId": "wf1",
		"name":       "采集到复核",
		"stageMappings": []map[string]interface{}{{
			"fromStageOrder": 1,
			"toStageOrder":   2,
			"fieldMappings":  []map[string]string{{"fromFieldId": "field1", "toFieldId": "fieldA"}},
		}},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w, env := s.do(t, http.MethodPost, "/api/v1/tasks", map[string]interface{}{
		"title":            "季度报表",
		"workflowId":       "wf1",
		"userDependencyId": "dep1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[task.Task](t, env.Data)
	assert.Equal(t, 1, created.CurrentStage)
	assert.Equal(t, "U1", created.AssignedTo)
	assert.Equal(t, task.StatusPending, created.Status)

	base := "/api/v1/tasks/" + created.ID
	w, _ = s.do(t, http.MethodPost, base+"/start", map[string]string{"userId": "U1"})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodPost, base+"/submit", map[string]interface{}{
		"userId":         "U1",
		"submissionData": map[string]interface{}{"field1": "v1", "other": 3},
	})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodPost, base+"/review/start", map[string]string{"userId": "C1"})
	require.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(t, http.MethodPost, base+"/approve", map[string]string{"checkerId": "C1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	outcome := decode[engine.ApprovalOutcome](t, env.Data)
	require.NotNil(t, outcome.Handoff)
	assert.Equal(t, 2, outcome.Handoff.NextStage)
	assert.Equal(t, map[string]interface{}{"fieldA": "v1"}, outcome.Handoff.Prefill)
	assert.Equal(t, "U2", outcome.Task.AssignedTo)

	w, env = s.do(t, http.MethodGet, base+"/prefill", nil)
	require.Equal(t, http.StatusOK, w.Code)
	prefill := decode[struct {
		Stage   int                    `json:"stage"`
		Prefill map[string]interface{} `json:"prefill"`
	}](t, env.Data)
	assert.Equal(t, 2, prefill.Stage)
	assert.Equal(t, "v1", prefill.Prefill["fieldA"])

	w, _ = s.do(t, http.MethodPost, base+"/approve", map[string]string{"checkerId": "C2"})
	require.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	done := decode[task.Task](t, env.Data)
	assert.Equal(t, task.StatusCompleted, done.Status)
	assert.True(t, done.IsWorkflowComplete)
	assert.Len(t, done.StageHistory, 2)

	// 快照接口返回裸结构 {"tasks": [...]}
	w, _ = s.do(t, http.MethodGet, "/api/v1/snapshot/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap struct {
		Tasks []task.Task `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.Len(t, snap.Tasks, 1)
	assert.Equal(t, created.ID, snap.Tasks[0].ID)

	w, env = s.do(t, http.MethodGet, "/api/v1/tasks?status=completed&workflowId=wf1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Total int `json:"total"`
	}](t, env.Data)
	assert.Equal(t, 1, list.Total)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t, nil)

	w, env := s.do(t, http.MethodGet, "/api/v1/tasks/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorKind(t, env))

	w, _ = s.do(t, http.MethodPost, "/api/v1/tasks", map[string]string{"description": "没有标题"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = s.do(t, http.MethodPost, "/api/v1/tasks", map[string]string{"title": "t", "workflowId": "wf1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION", errorKind(t, env))

	w, env = s.do(t, http.MethodPost, "/api/v1/tasks", map[string]string{
		"title": "t", "workflowId": "wf1", "userDependencyId": "unknown",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ASSIGNMENT_GAP", errorKind(t, env))

	w, env = s.do(t, http.MethodPost, "/api/v1/tasks", map[string]string{"title": "普通任务"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[task.Task](t, env.Data).ID

	w, _ = s.do(t, http.MethodPost, "/api/v1/tasks/"+id+"/cancel", map[string]string{"actor": "admin", "reason": "重复"})
	require.Equal(t, http.StatusOK, w.Code)
	w, env = s.do(t, http.MethodPost, "/api/v1/tasks/"+id+"/approve", map[string]string{"checkerId": "C1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION", errorKind(t, env))

	w, _ = s.do(t, http.MethodPut, "/api/v1/tasks/"+id+"/status", map[string]string{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodDelete, "/api/v1/tasks/"+id+"?actor=admin", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodDelete, "/api/v1/tasks/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLinkingEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	// 没有任何配置时返回空数组和空对象，而不是省略data
	w, env := s.do(t, http.MethodGet, "/api/v1/linkings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, string(env.Data))
	w, env = s.do(t, http.MethodGet, "/api/v1/field-mappings?workflowId=none&from=1&to=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, string(env.Data))
	w, env = s.do(t, http.MethodPost, "/api/v1/field-mappings/apply", map[string]interface{}{
		"workflowId": "none", "fromStage": 1, "toStage": 2,
		"sourceData": map[string]interface{}{"a": "x"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, string(env.Data))

	body := map[string]interface{}{
		"workflowId": "wf1",
		"name":       "联动",
		"stageMappings": []map[string]interface{}{{
			"fromStageOrder": 1,
			"toStageOrder":   2,
			"fieldMappings":  []map[string]string{{"fromFieldId": "a", "toFieldId": "b"}},
		}},
	}
	w, env = s.do(t, http.MethodPost, "/api/v1/linkings", body)
	require.Equal(t, http.StatusCreated, w.Code)
	cfg := decode[linking.Config](t, env.Data)

	w, env = s.do(t, http.MethodPost, "/api/v1/linkings", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION", errorKind(t, env))

	w, env = s.do(t, http.MethodGet, "/api/v1/field-mappings?workflowId=wf1&from=1&to=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]linking.FieldMapping](t, env.Data), 1)

	w, env = s.do(t, http.MethodPost, "/api/v1/field-mappings/apply", map[string]interface{}{
		"workflowId": "wf1", "fromStage": 1, "toStage": 2,
		"sourceData": map[string]interface{}{"a": "x", "c": "ignored"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]interface{}{"b": "x"}, decode[map[string]interface{}](t, env.Data))

	w, env = s.do(t, http.MethodPut, "/api/v1/linkings/"+cfg.ID, map[string]interface{}{"isActive": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[linking.Config](t, env.Data).IsActive)

	w, env = s.do(t, http.MethodGet, "/api/v1/field-mappings?workflowId=wf1&from=1&to=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, string(env.Data))

	w, _ = s.do(t, http.MethodGet, "/api/v1/snapshot/linkings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap []linking.Config
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Len(t, snap, 1)

	w, _ = s.do(t, http.MethodDelete, "/api/v1/linkings/"+cfg.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, env = s.do(t, http.MethodGet, "/api/v1/linkings/"+cfg.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorKind(t, env))
}

func TestDirectoryEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	w, _ := s.do(t, http.MethodPost, "/api/v1/workflows", map[string]string{"id": "wf2", "name": "新工作流"})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodPost, "/api/v1/workflows", map[string]string{"id": "wf3"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	stages := []map[string]interface{}{
		{"stageOrder": 2, "userId": "U2", "checkerId": "C2"},
		{"stageOrder": 1, "userId": "U1", "checkerId": "C1"},
	}
	w, _ = s.do(t, http.MethodPut, "/api/v1/dependencies/dep2", map[string]interface{}{"workflowId": "missing", "stages": stages})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = s.do(t, http.MethodPut, "/api/v1/dependencies/dep2", map[string]interface{}{
		"workflowId": "wf2",
		"stages":     []map[string]interface{}{{"stageOrder": 1, "userId": "U1"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env := s.do(t, http.MethodPut, "/api/v1/dependencies/dep2", map[string]interface{}{"workflowId": "wf2", "stages": stages})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	dep := decode[directory.UserDependency](t, env.Data)
	assert.Equal(t, 1, dep.Stages[0].StageOrder)
	assert.Equal(t, []string{"dep2"}, s.cache.ids)

	w, env = s.do(t, http.MethodGet, "/api/v1/dependencies/dep2/stages/2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "U2", decode[directory.StageAssignment](t, env.Data).UserID)
	w, _ = s.do(t, http.MethodGet, "/api/v1/dependencies/dep2/stages/9", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = s.do(t, http.MethodGet, "/api/v1/dependencies/dep2/stages/x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = s.do(t, http.MethodGet, "/api/v1/dependencies?workflowId=wf2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]directory.UserDependency](t, env.Data), 1)

	w, _ = s.do(t, http.MethodDelete, "/api/v1/dependencies/dep2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodDelete, "/api/v1/dependencies/dep2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, []string{"dep2", "dep2"}, s.cache.ids)

	w, _ = s.do(t, http.MethodGet, "/api/v1/workflows/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEventStream(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events/ws?types=stage.handoff"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// 订阅在升级之后建立，持续发布直到客户端收到
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = s.bus.Publish(events.EventTaskOverdue, "t0", events.TaskOverduePayload{TaskID: "t0"})
				_ = s.bus.Publish(events.EventStageHandoff, "t1", events.StageHandoffPayload{TaskID: "t1", NextStage: 2})
			}
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.EventStageHandoff, ev.Type)
	assert.Equal(t, "t1", ev.SubjectID)

	resp, err := http.Get(srv.URL + "/api/v1/events/ws?types=bogus")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
