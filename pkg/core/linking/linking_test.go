package linking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LENAX/stageflow/pkg/core/events"
	"github.com/LENAX/stageflow/pkg/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo 内存仓库，支持注入保存/删除失败
type fakeRepo struct {
	mu         sync.Mutex
	items      map[string]*Config
	failSave   bool
	failDelete bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{items: make(map[string]*Config)}
}

func (r *fakeRepo) ListAll(ctx context.Context) ([]*Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Config, 0, len(r.items))
	for _, c := range r.items {
		out = append(out, c.Clone())
	}
	return out, nil
}

func (r *fakeRepo) Save(ctx context.Context, cfg *Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSave {
		return errors.New("disk full")
	}
	r.items[cfg.ID] = cfg.Clone()
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failDelete {
		return errors.New("disk full")
	}
	delete(r.items, id)
	return nil
}

// recordingPublisher 记录发布的事件
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.EventType
}

func (p *recordingPublisher) Publish(eventType events.EventType, subjectID string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

func sampleSpec(workflowID string) CreateSpec {
	return CreateSpec{
		WorkflowID: workflowID,
		Name:       "采集到复核",
		StageMappings: []StageMapping{
			{
				FromStageOrder: 1,
				ToStageOrder:   2,
				FieldMappings: []FieldMapping{
					{FromFieldID: "a", ToFieldID: "x"},
					{FromFieldID: "b", ToFieldID: "y"},
				},
			},
		},
		CreatedBy: "admin",
	}
}

func TestEngine_CreateAndApply(t *testing.T) {
	repo := newFakeRepo()
	pub := &recordingPublisher{}
	e := NewEngine(repo, WithPublisher(pub))

	cfg, err := e.CreateWorksheetLinking(context.Background(), sampleSpec("W1"))
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.ID)
	assert.True(t, cfg.IsActive)
	assert.False(t, cfg.CreatedAt.IsZero())
	assert.Len(t, repo.items, 1)
	assert.Equal(t, []events.EventType{events.EventLinkingConfigChanged}, pub.events)

	// 只复制源数据中存在的字段
	out := e.ApplyFieldLinking("W1", 1, 2, map[string]any{"a": 5, "c": 7})
	assert.Equal(t, map[string]any{"x": 5}, out)

	// 值为nil的字段同样被复制
	out = e.ApplyFieldLinking("W1", 1, 2, map[string]any{"b": nil})
	assert.Equal(t, map[string]any{"y": nil}, out)

	assert.Empty(t, e.ApplyFieldLinking("W1", 1, 2, nil))
	assert.Empty(t, e.ApplyFieldLinking("W1", 2, 3, map[string]any{"a": 1}))
	assert.Empty(t, e.ApplyFieldLinking("W9", 1, 2, map[string]any{"a": 1}))
}

func TestEngine_ApplyDeepCopiesValues(t *testing.T) {
	e := NewEngine(newFakeRepo())
	_, err := e.CreateWorksheetLinking(context.Background(), sampleSpec("W1"))
	require.NoError(t, err)

	src := map[string]any{"a": map[string]any{"k": "v"}}
	out := e.ApplyFieldLinking("W1", 1, 2, src)
	out["x"].(map[string]any)["k"] = "changed"
	assert.Equal(t, "v", src["a"].(map[string]any)["k"])
}

func TestEngine_DuplicateWorkflowRejected(t *testing.T) {
	repo := newFakeRepo()
	e := NewEngine(repo)

	_, err := e.CreateWorksheetLinking(context.Background(), sampleSpec("W1"))
	require.NoError(t, err)

	_, err = e.CreateWorksheetLinking(context.Background(), sampleSpec("W1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))
	assert.Len(t, e.ListWorksheetLinkings(), 1)
	assert.Len(t, repo.items, 1)
}

func TestEngine_CreateValidation(t *testing.T) {
	e := NewEngine(newFakeRepo())
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(s *CreateSpec)
	}{
		{"missing name", func(s *CreateSpec) { s.Name = " " }},
		{"missing workflow", func(s *CreateSpec) { s.WorkflowID = "" }},
		{"no stage mappings", func(s *CreateSpec) { s.StageMappings = nil }},
		{"zero stage order", func(s *CreateSpec) { s.StageMappings[0].ToStageOrder = 0 }},
		{"no field mappings", func(s *CreateSpec) { s.StageMappings[0].FieldMappings = nil }},
		{"empty field id", func(s *CreateSpec) { s.StageMappings[0].FieldMappings[0].ToFieldID = "" }},
		{"duplicate stage pair", func(s *CreateSpec) {
			s.StageMappings = append(s.StageMappings, s.StageMappings[0])
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := sampleSpec("W1")
			tc.mutate(&spec)
			_, err := e.CreateWorksheetLinking(ctx, spec)
			require.Error(t, err)
			assert.Equal(t, types.KindValidation, types.KindOf(err))
		})
	}
	assert.Empty(t, e.ListWorksheetLinkings())
}

func TestEngine_CreateRollbackOnSaveFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.failSave = true
	e := NewEngine(repo)

	_, err := e.CreateWorksheetLinking(context.Background(), sampleSpec("W1"))
	require.Error(t, err)
	assert.Equal(t, types.KindPersistence, types.KindOf(err))
	assert.Empty(t, e.ListWorksheetLinkings())

	_, ok := e.GetWorksheetLinkingByWorkflow("W1")
	assert.False(t, ok)
}

func TestEngine_Update(t *testing.T) {
	repo := newFakeRepo()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewEngine(repo, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	cfg, err := e.CreateWorksheetLinking(ctx, sampleSpec("W1"))
	require.NoError(t, err)

	clock = clock.Add(time.Hour)
	name := "新名称"
	inactive := false
	updated, err := e.UpdateWorksheetLinking(ctx, cfg.ID, Patch{Name: &name, IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, updated.ID)
	assert.Equal(t, cfg.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(cfg.UpdatedAt))
	assert.Equal(t, "新名称", updated.Name)

	// 未启用的配置不产生映射
	assert.Empty(t, e.GetFieldMappingForStageTransition("W1", 1, 2))

	_, err = e.UpdateWorksheetLinking(ctx, "missing", Patch{Name: &name})
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestEngine_UpdateWorkflowChange(t *testing.T) {
	e := NewEngine(newFakeRepo())
	ctx := context.Background()

	c1, err := e.CreateWorksheetLinking(ctx, sampleSpec("W1"))
	require.NoError(t, err)
	_, err = e.CreateWorksheetLinking(ctx, sampleSpec("W2"))
	require.NoError(t, err)

	// 改到已被占用的workflow被拒绝
	w2 := "W2"
	_, err = e.UpdateWorksheetLinking(ctx, c1.ID, Patch{WorkflowID: &w2})
	assert.Equal(t, types.KindValidation, types.KindOf(err))

	w3 := "W3"
	_, err = e.UpdateWorksheetLinking(ctx, c1.ID, Patch{WorkflowID: &w3})
	require.NoError(t, err)

	_, ok := e.GetWorksheetLinkingByWorkflow("W1")
	assert.False(t, ok)
	got, ok := e.GetWorksheetLinkingByWorkflow("W3")
	require.True(t, ok)
	assert.Equal(t, c1.ID, got.ID)
}

func TestEngine_UpdateRollbackOnSaveFailure(t *testing.T) {
	repo := newFakeRepo()
	e := NewEngine(repo)
	ctx := context.Background()

	cfg, err := e.CreateWorksheetLinking(ctx, sampleSpec("W1"))
	require.NoError(t, err)

	repo.failSave = true
	w2 := "W2"
	name := "改名"
	_, err = e.UpdateWorksheetLinking(ctx, cfg.ID, Patch{WorkflowID: &w2, Name: &name})
	assert.Equal(t, types.KindPersistence, types.KindOf(err))

	got, err := e.GetWorksheetLinking(cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
	_, ok := e.GetWorksheetLinkingByWorkflow("W1")
	assert.True(t, ok)
	_, ok = e.GetWorksheetLinkingByWorkflow("W2")
	assert.False(t, ok)
}

func TestEngine_Delete(t *testing.T) {
	repo := newFakeRepo()
	e := NewEngine(repo)
	ctx := context.Background()

	cfg, err := e.CreateWorksheetLinking(ctx, sampleSpec("W1"))
	require.NoError(t, err)

	repo.failDelete = true
	err = e.DeleteWorksheetLinking(ctx, cfg.ID)
	assert.Equal(t, types.KindPersistence, types.KindOf(err))
	_, err = e.GetWorksheetLinking(cfg.ID)
	require.NoError(t, err)

	repo.failDelete = false
	require.NoError(t, e.DeleteWorksheetLinking(ctx, cfg.ID))
	_, err = e.GetWorksheetLinking(cfg.ID)
	assert.True(t, errors.Is(err, types.ErrNotFound))

	// 删除后同一workflow可以重新创建
	_, err = e.CreateWorksheetLinking(ctx, sampleSpec("W1"))
	assert.NoError(t, err)

	assert.True(t, errors.Is(e.DeleteWorksheetLinking(ctx, "missing"), types.ErrNotFound))
}

func TestEngine_ReturnsCopies(t *testing.T) {
	e := NewEngine(newFakeRepo())
	spec := sampleSpec("W1")
	cfg, err := e.CreateWorksheetLinking(context.Background(), spec)
	require.NoError(t, err)

	// 修改入参和返回值都不影响常驻配置
	spec.StageMappings[0].FieldMappings[0].ToFieldID = "hacked"
	cfg.StageMappings[0].FieldMappings[0].ToFieldID = "hacked"
	mappings := e.GetFieldMappingForStageTransition("W1", 1, 2)
	mappings[0].ToFieldID = "hacked"

	got := e.GetFieldMappingForStageTransition("W1", 1, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "x", got[0].ToFieldID)
}

func TestEngine_Load(t *testing.T) {
	repo := newFakeRepo()
	e := NewEngine(repo)
	_, err := e.CreateWorksheetLinking(context.Background(), sampleSpec("W1"))
	require.NoError(t, err)

	reloaded := NewEngine(repo)
	require.NoError(t, reloaded.Load(context.Background()))
	assert.Len(t, reloaded.ListWorksheetLinkings(), 1)
	assert.Equal(t, map[string]any{"x": 1}, reloaded.ApplyFieldLinking("W1", 1, 2, map[string]any{"a": 1}))
}
