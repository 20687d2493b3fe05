package plugin

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LENAX/stageflow/pkg/core/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	addr string
	to   []string
	msg  string
}

type mailRecorder struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (r *mailRecorder) send(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sentMail{addr: addr, to: append([]string(nil), to...), msg: string(msg)})
	return nil
}

func (r *mailRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

var emailParams = map[string]string{
	"smtp_host":       "smtp.example.com",
	"smtp_port":       "2525",
	"from":            "noreply@example.com",
	"to":              "ops@example.com, lead@example.com",
	"notify_assignee": "true",
}

func TestEmailPlugin_Init(t *testing.T) {
	p := NewEmailPluginWithSender((&mailRecorder{}).send)
	assert.Error(t, p.Init(map[string]string{}))
	assert.Error(t, p.Init(map[string]string{"smtp_host": "h"}))
	assert.Error(t, p.Init(map[string]string{"smtp_host": "h", "from": "a@b", "smtp_port": "abc"}))
	assert.Error(t, p.Init(map[string]string{"smtp_host": "h", "from": "a@b"}))
	require.NoError(t, p.Init(emailParams))

	assert.Error(t, NewEmailPluginWithSender(nil).Execute(PluginData{}))
}

func TestEmailPlugin_ExecuteHandoff(t *testing.T) {
	rec := &mailRecorder{}
	p := NewEmailPluginWithSender(rec.send)
	require.NoError(t, p.Init(emailParams))

	ev, err := events.NewEvent(events.EventStageHandoff, "t1", events.StageHandoffPayload{
		TaskID: "t1", WorkflowID: "wf1", PreviousStage: 1, NextStage: 2, AssignedTo: "u2@example.com",
	})
	require.NoError(t, err)
	data, err := FromEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, 2, data.Stage)
	assert.Equal(t, "wf1", data.WorkflowID)

	require.NoError(t, p.Execute(data))
	require.Len(t, rec.sent, 1)
	mail := rec.sent[0]
	assert.Equal(t, "smtp.example.com:2525", mail.addr)
	assert.Equal(t, []string{"ops@example.com", "lead@example.com", "u2@example.com"}, mail.to)
	assert.Contains(t, mail.msg, "Subject: [阶段交接] Task t1 进入第2阶段")
	assert.Contains(t, mail.msg, "Workflow ID: wf1")

	assert.Error(t, p.Execute("not plugin data"))

	rec.err = errors.New("connection refused")
	assert.Error(t, p.Execute(data))
}

func TestBuildSubject(t *testing.T) {
	overdue := PluginData{Event: events.EventTaskOverdue, TaskID: "t1", Data: map[string]interface{}{"title": "季度报表"}}
	assert.Equal(t, "[任务逾期] 季度报表", buildSubject(overdue))
	assert.True(t, strings.HasPrefix(buildSubject(PluginData{Event: events.EventWorkflowCompleted}), "[工作流完成]"))
	assert.Equal(t, "[系统通知] linking.config_changed", buildSubject(PluginData{Event: events.EventLinkingConfigChanged}))
}

// countingPlugin 统计执行次数
type countingPlugin struct {
	name  string
	mu    sync.Mutex
	calls []PluginData
	err   error
}

func (p *countingPlugin) Name() string                        { return p.name }
func (p *countingPlugin) Init(params map[string]string) error { return nil }
func (p *countingPlugin) Execute(data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, data.(PluginData))
	return p.err
}

func (p *countingPlugin) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func TestPluginManager_RegisterBindTrigger(t *testing.T) {
	pm := NewPluginManager()
	a := &countingPlugin{name: "a"}
	b := &countingPlugin{name: "b", err: errors.New("boom")}

	require.NoError(t, pm.Register(a))
	require.NoError(t, pm.RegisterWithInit(b, nil))
	assert.Error(t, pm.Register(a))
	assert.Error(t, pm.Register(nil))
	assert.Equal(t, []string{"a", "b"}, pm.ListPlugins())

	assert.Error(t, pm.Bind(PluginBinding{PluginName: "missing", Event: events.EventStageHandoff}))
	assert.Error(t, pm.Bind(PluginBinding{PluginName: "a", Event: "bogus"}))
	require.NoError(t, pm.Bind(PluginBinding{PluginName: "a", Event: events.EventStageHandoff}))
	require.NoError(t, pm.Bind(PluginBinding{
		PluginName: "b",
		Event:      events.EventStageHandoff,
		Condition:  func(data any) bool { return data.(PluginData).Stage > 1 },
	}))

	ctx := context.Background()
	require.NoError(t, pm.Trigger(ctx, PluginData{Event: events.EventStageHandoff, Stage: 1}))
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 0, b.count())

	err := pm.Trigger(ctx, PluginData{Event: events.EventStageHandoff, Stage: 2})
	assert.Error(t, err)
	assert.Equal(t, 2, a.count())
	assert.Equal(t, 1, b.count())

	require.NoError(t, pm.Unregister("b"))
	require.NoError(t, pm.Trigger(ctx, PluginData{Event: events.EventStageHandoff, Stage: 3}))
	assert.Equal(t, 1, b.count())
	assert.Error(t, pm.Unregister("b"))
}

func TestPluginManager_RunDispatchesBusEvents(t *testing.T) {
	bus := events.NewBus(16, nil)
	defer bus.Close()

	pm := NewPluginManager()
	p := &countingPlugin{name: "counter"}
	require.NoError(t, pm.Register(p))
	require.NoError(t, pm.Bind(PluginBinding{PluginName: "counter", Event: events.EventTaskOverdue}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pm.Run(ctx, bus)
	}()

	// 等待订阅建立后发布
	assert.Eventually(t, func() bool {
		_ = bus.Publish(events.EventTaskOverdue, "t1", events.TaskOverduePayload{TaskID: "t1", AssignedTo: "U1"})
		return p.count() > 0
	}, 2*time.Second, 20*time.Millisecond)

	p.mu.Lock()
	first := p.calls[0]
	p.mu.Unlock()
	assert.Equal(t, "t1", first.TaskID)
	assert.Equal(t, "U1", first.AssignedTo)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run未在ctx取消后返回")
	}
}
