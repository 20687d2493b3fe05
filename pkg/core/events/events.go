// Package events 提供任务与联动配置变更通知的发布/订阅总线
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType 事件类型
type EventType string

const (
	// 集合变更事件
	EventTaskCollectionChanged EventType = "task.collection_changed" // 任务集合保存成功
	EventLinkingConfigChanged  EventType = "linking.config_changed"  // 联动配置保存成功
	EventStageHandoff          EventType = "stage.handoff"           // 阶段交接完成
	EventWorkflowCompleted     EventType = "workflow.completed"      // 最后阶段审批通过
	EventTaskRevisionRequired  EventType = "task.revision_required"  // 审核人要求返工
	EventTaskOverdue           EventType = "task.overdue"            // 超过截止时间仍未完成
)

// AllEventTypes 返回所有事件类型
func AllEventTypes() []EventType {
	return []EventType{
		EventTaskCollectionChanged,
		EventLinkingConfigChanged,
		EventStageHandoff,
		EventWorkflowCompleted,
		EventTaskRevisionRequired,
		EventTaskOverdue,
	}
}

// ParseEventType 解析事件类型字符串
func ParseEventType(s string) (EventType, error) {
	for _, t := range AllEventTypes() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("未知事件类型: %s", s)
}

// Event 事件基础结构
type Event struct {
	ID        string          `json:"id"`        // 事件ID（UUID）
	Type      EventType       `json:"type"`      // 事件类型
	SubjectID string          `json:"subjectId"` // 关联的Task ID或联动配置ID
	Timestamp time.Time       `json:"timestamp"` // 事件时间
	Payload   json.RawMessage `json:"payload"`   // 事件负载
}

// NewEvent 创建事件，payload 序列化为JSON
func NewEvent(eventType EventType, subjectID string, payload interface{}) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化事件负载失败: %w", err)
	}
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SubjectID: subjectID,
		Timestamp: time.Now(),
		Payload:   raw,
	}, nil
}

// DecodePayload 反序列化事件负载
func (e *Event) DecodePayload(v interface{}) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// StageHandoffPayload 阶段交接事件负载
type StageHandoffPayload struct {
	TaskID         string `json:"taskId"`
	WorkflowID     string `json:"workflowId"`
	PreviousStage  int    `json:"previousStage"`
	NextStage      int    `json:"nextStage"`
	AssignedTo     string `json:"assignedTo"`
	AssignedToName string `json:"assignedToName,omitempty"`
	CheckerID      string `json:"checkerId,omitempty"`
}

// WorkflowCompletedPayload 工作流完成事件负载
type WorkflowCompletedPayload struct {
	TaskID     string `json:"taskId"`
	WorkflowID string `json:"workflowId"`
	FinalStage int    `json:"finalStage"`
	ApprovedBy string `json:"approvedBy"`
}

// TaskChangePayload 任务变更事件负载
type TaskChangePayload struct {
	TaskID     string `json:"taskId"`
	Action     string `json:"action"`
	Status     string `json:"status"`
	Actor      string `json:"actor,omitempty"`
	AssignedTo string `json:"assignedTo,omitempty"`
}

// LinkingChangePayload 联动配置变更事件负载
type LinkingChangePayload struct {
	ConfigID   string `json:"configId"`
	WorkflowID string `json:"workflowId"`
	Action     string `json:"action"` // created / updated / deleted
}

// TaskOverduePayload 逾期事件负载
type TaskOverduePayload struct {
	TaskID     string    `json:"taskId"`
	Title      string    `json:"title"`
	AssignedTo string    `json:"assignedTo"`
	DueDate    time.Time `json:"dueDate"`
	Status     string    `json:"status"`
}

// Publisher 事件发布接口（对外导出）
// 发布是 fire-and-forget 的，失败不影响已提交的业务写入
type Publisher interface {
	Publish(eventType EventType, subjectID string, payload interface{}) error
}
