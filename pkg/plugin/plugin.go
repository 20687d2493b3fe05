// Package plugin 提供绑定到变更事件的通知插件（邮件等）
package plugin

import (
	"fmt"

	"github.com/LENAX/stageflow/pkg/core/events"
)

// Plugin 插件基础接口（对外导出）
type Plugin interface {
	// Name 插件名称（对外导出）
	Name() string
	// Init 初始化插件（对外导出）
	Init(params map[string]string) error
	// Execute 执行插件逻辑（对外导出）
	Execute(data interface{}) error
}

// PluginData 传递给插件的数据（对外导出）
type PluginData struct {
	Event      events.EventType       // 触发事件
	EventID    string                 // 事件ID
	TaskID     string                 // Task ID
	WorkflowID string                 // Workflow ID（如果有）
	AssignedTo string                 // 当前执行人（如果有）
	Status     string                 // 状态
	Stage      int                    // 阶段交接后的阶段序号
	Data       map[string]interface{} // 事件负载的全部字段
}

// FromEvent 将总线事件转换为插件数据
func FromEvent(ev *events.Event) (PluginData, error) {
	data := PluginData{
		Event:   ev.Type,
		EventID: ev.ID,
		TaskID:  ev.SubjectID,
		Data:    map[string]interface{}{},
	}
	if err := ev.DecodePayload(&data.Data); err != nil {
		return data, fmt.Errorf("解析事件负载失败: %w", err)
	}
	if data.Data == nil {
		data.Data = map[string]interface{}{}
	}
	data.WorkflowID = stringField(data.Data, "workflowId")
	data.AssignedTo = stringField(data.Data, "assignedTo")
	data.Status = stringField(data.Data, "status")
	if v, ok := data.Data["nextStage"].(float64); ok {
		data.Stage = int(v)
	}
	if id := stringField(data.Data, "taskId"); id != "" {
		data.TaskID = id
	}
	return data, nil
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
