package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/LENAX/stageflow/pkg/core/directory"
	"github.com/LENAX/stageflow/pkg/core/events"
	"github.com/LENAX/stageflow/pkg/core/task"
	"github.com/LENAX/stageflow/pkg/core/types"
)

// StageHandoff 一次阶段交接的结果（对外导出）
// Prefill 是下一阶段工作表的建议预填数据，只作为提示，不写入Task
type StageHandoff struct {
	TaskID         string         `json:"taskId"`
	WorkflowID     string         `json:"workflowId"`
	PreviousStage  int            `json:"previousStage"`
	NextStage      int            `json:"nextStage"`
	AssignedTo     string         `json:"assignedTo"`
	AssignedToName string         `json:"assignedToName,omitempty"`
	CheckerID      string         `json:"checkerId,omitempty"`
	CheckerName    string         `json:"checkerName,omitempty"`
	Prefill        map[string]any `json:"prefill"`
}

// ApprovalOutcome 审批结果，Handoff 只在发生阶段交接时非空
type ApprovalOutcome struct {
	Task    *task.Task    `json:"task"`
	Handoff *StageHandoff `json:"handoff,omitempty"`
}

// ApproveTask 审批通过
// 非工作流任务直接进入approved；工作流任务记录阶段审批记录后完成工作流或交接到下一阶段
// 下一阶段缺少分配时返回 ASSIGNMENT_GAP，Task保持不变
func (e *Engine) ApproveTask(ctx context.Context, id, checkerID, feedback string, outputData map[string]any) (result *ApprovalOutcome, err error) {
	const op = "engine.ApproveTask"
	defer recoverOp(op, &err)

	var (
		handoff   *StageHandoff
		completed bool
	)
	t, err := e.mutate(ctx, op, id, func(t *task.Task, now time.Time) error {
		if t.Status.IsTerminal() {
			return types.Errorf(types.KindValidation, op, "状态为 %s 的任务不能审批", t.Status)
		}
		if !t.IsWorkflowBound() {
			e.approveSimple(t, checkerID, feedback, now)
			return nil
		}
		var err error
		handoff, completed, err = e.advanceStage(ctx, op, t, checkerID, feedback, outputData, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	switch {
	case completed:
		log.Printf("✅ [Engine] 工作流已完成: TaskID=%s, WorkflowID=%s, FinalStage=%d", t.ID, t.WorkflowID, t.CurrentStage)
		e.publishTaskChange(t, task.ActionWorkflowCompleted, checkerID)
		e.publish(events.EventWorkflowCompleted, t.ID, events.WorkflowCompletedPayload{
			TaskID:     t.ID,
			WorkflowID: t.WorkflowID,
			FinalStage: t.CurrentStage,
			ApprovedBy: checkerID,
		})
	case handoff != nil:
		log.Printf("✅ [Engine] 阶段交接完成: TaskID=%s, Stage=%d -> %d, AssignedTo=%s", t.ID, handoff.PreviousStage, handoff.NextStage, handoff.AssignedTo)
		e.publishTaskChange(t, task.ActionStageHandoff, checkerID)
		e.publish(events.EventStageHandoff, t.ID, events.StageHandoffPayload{
			TaskID:         t.ID,
			WorkflowID:     t.WorkflowID,
			PreviousStage:  handoff.PreviousStage,
			NextStage:      handoff.NextStage,
			AssignedTo:     handoff.AssignedTo,
			AssignedToName: handoff.AssignedToName,
			CheckerID:      handoff.CheckerID,
		})
	default:
		e.publishTaskChange(t, task.ActionApproved, checkerID)
	}
	return &ApprovalOutcome{Task: t, Handoff: handoff}, nil
}

func (e *Engine) approveSimple(t *task.Task, checkerID, feedback string, now time.Time) {
	t.Status = task.StatusApproved
	t.ApprovedBy = checkerID
	t.ApprovedAt = timePtr(now)
	e.markReviewed(t, checkerID, feedback, now)
	t.AppendLog(task.ActionApproved, checkerID, task.PlainText(feedback), now)
}

func (e *Engine) markReviewed(t *task.Task, checkerID, feedback string, now time.Time) {
	if t.Review == nil {
		t.Review = &task.Review{}
	}
	t.Review.Approved = true
	t.Review.RequiresRevision = false
	t.Review.ReviewedAt = timePtr(now)
	t.Review.ReviewedBy = checkerID
	t.Review.AdminFeedback = feedback
}

// advanceStage 工作流任务的阶段推进，只修改传入的副本
func (e *Engine) advanceStage(ctx context.Context, op string, t *task.Task, checkerID, feedback string, outputData map[string]any, now time.Time) (*StageHandoff, bool, error) {
	if e.directory == nil {
		return nil, false, types.Errorf(types.KindValidation, op, "未配置阶段目录，无法推进工作流任务")
	}

	current, err := e.directory.GetStageAssignment(ctx, t.UserDependencyID, t.CurrentStage)
	if err != nil {
		return nil, false, types.NewError(types.KindPersistence, op, "查询当前阶段分配失败", err)
	}

	record := buildStageRecord(t, current, checkerID, outputData, now)
	t.StageHistory = append(t.StageHistory, record)

	last, err := e.directory.IsLastStage(ctx, t.UserDependencyID, t.CurrentStage)
	if err != nil {
		return nil, false, types.NewError(types.KindPersistence, op, "查询最后阶段失败", err)
	}
	if last {
		t.Status = task.StatusCompleted
		t.IsWorkflowComplete = true
		t.CompletedDate = timePtr(now)
		t.ApprovedBy = checkerID
		t.ApprovedAt = timePtr(now)
		e.markReviewed(t, checkerID, feedback, now)
		t.AppendLog(task.ActionWorkflowCompleted, checkerID, fmt.Sprintf("第%d阶段审批通过，工作流完成", t.CurrentStage), now)
		return nil, true, nil
	}

	next, err := e.directory.GetNextStage(ctx, t.UserDependencyID, t.CurrentStage)
	if err != nil {
		return nil, false, types.NewError(types.KindPersistence, op, "查询下一阶段分配失败", err)
	}
	if next == nil {
		return nil, false, types.Errorf(types.KindAssignmentGap, op, "依赖链 %s 在第%d阶段之后缺少分配", t.UserDependencyID, t.CurrentStage)
	}
	if next.StageOrder <= t.CurrentStage {
		return nil, false, types.Errorf(types.KindInternal, op, "阶段目录返回的下一阶段 %d 不大于当前阶段 %d", next.StageOrder, t.CurrentStage)
	}

	prefill := map[string]any{}
	if e.linker != nil {
		prefill = e.linker.ApplyFieldLinking(t.WorkflowID, t.CurrentStage, next.StageOrder, record.OutputData)
	}

	prev := t.CurrentStage
	t.CategoryID = next.CategoryID
	t.CategoryPath = next.CategoryName
	t.AssignedTo = next.UserID
	t.AssignedToName = next.UserName
	t.CheckerID = next.CheckerID
	t.CheckerName = next.CheckerName
	t.CurrentStage = next.StageOrder
	t.Status = task.StatusPending
	t.Review = nil
	t.RevisedCount = 0
	t.AppendLog(task.ActionStageHandoff, checkerID,
		fmt.Sprintf("第%d阶段 -> 第%d阶段，执行人 %s，预填 %d 个字段", prev, next.StageOrder, next.UserID, len(prefill)), now)

	e.debugf("阶段交接: TaskID=%s, %d -> %d, Prefill=%v", t.ID, prev, next.StageOrder, prefill)
	return &StageHandoff{
		TaskID:         t.ID,
		WorkflowID:     t.WorkflowID,
		PreviousStage:  prev,
		NextStage:      next.StageOrder,
		AssignedTo:     next.UserID,
		AssignedToName: next.UserName,
		CheckerID:      next.CheckerID,
		CheckerName:    next.CheckerName,
		Prefill:        prefill,
	}, false, nil
}

// buildStageRecord 当前阶段的审批记录
// inputData 为上一条记录的输出；outputData 依次取调用方输出、提交数据，都没有时为nil
func buildStageRecord(t *task.Task, current *directory.StageAssignment, checkerID string, outputData map[string]any, now time.Time) task.StageRecord {
	record := task.StageRecord{
		StageOrder:   t.CurrentStage,
		CategoryID:   t.CategoryID,
		CategoryName: t.CategoryPath,
		UserID:       t.AssignedTo,
		UserName:     t.AssignedToName,
		CheckerID:    checkerID,
		CheckerName:  t.CheckerName,
		Status:       task.StatusApproved,
		ApprovedAt:   now,
		ApprovedBy:   checkerID,
	}
	if current != nil {
		record.CheckerName = current.CheckerName
		if record.CategoryName == "" {
			record.CategoryName = current.CategoryName
		}
	}
	if prev := t.LastStageRecord(); prev != nil {
		record.InputData = task.CloneData(prev.OutputData)
	}
	switch {
	case outputData != nil:
		record.OutputData = task.CloneData(outputData)
	case t.Review != nil && t.Review.SubmissionData != nil:
		record.OutputData = task.CloneData(t.Review.SubmissionData)
	}
	return record
}

// StagePrefill 按最近一条阶段记录的输出重新计算当前阶段的预填数据
// 第1阶段或非工作流任务返回空map
func (e *Engine) StagePrefill(ctx context.Context, id string) (result map[string]any, err error) {
	const op = "engine.StagePrefill"
	defer recoverOp(op, &err)

	t, err := e.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	prev := t.LastStageRecord()
	if !t.IsWorkflowBound() || prev == nil || e.linker == nil {
		return map[string]any{}, nil
	}
	return e.linker.ApplyFieldLinking(t.WorkflowID, prev.StageOrder, t.CurrentStage, prev.OutputData), nil
}
