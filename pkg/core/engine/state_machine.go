package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/LENAX/stageflow/pkg/core/events"
	"github.com/LENAX/stageflow/pkg/core/task"
	"github.com/LENAX/stageflow/pkg/core/types"
)

// CreateTask 创建Task
// 绑定工作流且未指定currentStage时，从阶段目录解析第1阶段并填充分类、执行人与审核人
func (e *Engine) CreateTask(ctx context.Context, spec task.CreateSpec) (result *task.Task, err error) {
	const op = "engine.CreateTask"
	defer recoverOp(op, &err)

	if strings.TrimSpace(spec.Title) == "" {
		return nil, types.Errorf(types.KindValidation, op, "Task标题不能为空")
	}
	if spec.Priority == "" {
		spec.Priority = task.PriorityMedium
	}
	if !spec.Priority.Valid() {
		return nil, types.Errorf(types.KindValidation, op, "未知优先级: %s", spec.Priority)
	}
	if (spec.WorkflowID == "") != (spec.UserDependencyID == "") {
		return nil, types.Errorf(types.KindValidation, op, "workflowId与userDependencyId必须同时指定")
	}
	bound := spec.WorkflowID != ""
	if !bound && spec.CurrentStage != 0 {
		return nil, types.Errorf(types.KindValidation, op, "非工作流任务不能指定currentStage")
	}
	if spec.CurrentStage < 0 {
		return nil, types.Errorf(types.KindValidation, op, "currentStage不能为负数: %d", spec.CurrentStage)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	t := &task.Task{
		ID:               e.newID(),
		Title:            strings.TrimSpace(spec.Title),
		Description:      spec.Description,
		Status:           task.StatusPending,
		Priority:         spec.Priority,
		CategoryID:       spec.CategoryID,
		CategoryPath:     spec.CategoryPath,
		AssignedTo:       spec.AssignedTo,
		AssignedToName:   spec.AssignedToName,
		CheckerID:        spec.CheckerID,
		CheckerName:      spec.CheckerName,
		WorkflowID:       spec.WorkflowID,
		UserDependencyID: spec.UserDependencyID,
		CurrentStage:     spec.CurrentStage,
		StageHistory:     []task.StageRecord{},
		Logs:             []task.LogEntry{},
		CreatedBy:        spec.CreatedBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if spec.DueDate != nil {
		due := *spec.DueDate
		t.DueDate = &due
	}

	if bound && t.CurrentStage == 0 {
		if e.directory == nil {
			return nil, types.Errorf(types.KindValidation, op, "未配置阶段目录，无法创建工作流任务")
		}
		first, err := e.directory.GetStageAssignment(ctx, t.UserDependencyID, 1)
		if err != nil {
			return nil, types.NewError(types.KindPersistence, op, "查询第1阶段分配失败", err)
		}
		if first == nil {
			return nil, types.Errorf(types.KindAssignmentGap, op, "依赖链 %s 缺少第1阶段分配", t.UserDependencyID)
		}
		t.CategoryID = first.CategoryID
		t.CategoryPath = first.CategoryName
		t.AssignedTo = first.UserID
		t.AssignedToName = first.UserName
		t.CheckerID = first.CheckerID
		t.CheckerName = first.CheckerName
		t.CurrentStage = 1
	}

	t.AppendLog(task.ActionCreated, spec.CreatedBy, fmt.Sprintf("创建任务，执行人 %s", t.AssignedTo), now)

	if err := e.tasks.Create(ctx, t); err != nil {
		log.Printf("❌ [Engine] 保存新Task失败: Title=%s, Error=%v", t.Title, err)
		return nil, storageErr(op, err)
	}

	if bound {
		e.incrementCounters(ctx, t)
	}
	log.Printf("✅ [Engine] Task已创建: ID=%s, WorkflowID=%s, Stage=%d, AssignedTo=%s", t.ID, t.WorkflowID, t.CurrentStage, t.AssignedTo)
	e.publishTaskChange(t, task.ActionCreated, spec.CreatedBy)
	return t, nil
}

// incrementCounters 依赖链与工作流的使用计数，失败只记录日志
func (e *Engine) incrementCounters(ctx context.Context, t *task.Task) {
	if e.directory != nil {
		if err := e.directory.IncrementTaskCount(ctx, t.UserDependencyID); err != nil {
			log.Printf("⚠️ [Engine] 依赖链使用计数更新失败: DependencyID=%s, Error=%v", t.UserDependencyID, err)
		}
	}
	if e.registry != nil {
		if err := e.registry.IncrementTaskCount(ctx, t.WorkflowID); err != nil {
			log.Printf("⚠️ [Engine] 工作流使用计数更新失败: WorkflowID=%s, Error=%v", t.WorkflowID, err)
		}
	}
}

// UpdateTaskStatus 直接设置状态，不做状态转移校验
// 首次进入in-progress时记录startDate，进入completed时记录completedDate
func (e *Engine) UpdateTaskStatus(ctx context.Context, id string, status task.Status, actor string) (result *task.Task, err error) {
	const op = "engine.UpdateTaskStatus"
	defer recoverOp(op, &err)

	if !status.Valid() {
		return nil, types.Errorf(types.KindValidation, op, "未知状态: %s", status)
	}
	t, err := e.mutate(ctx, op, id, func(t *task.Task, now time.Time) error {
		prev := t.Status
		t.Status = status
		if status == task.StatusInProgress && t.StartDate == nil {
			t.StartDate = timePtr(now)
		}
		if status == task.StatusCompleted {
			t.CompletedDate = timePtr(now)
		}
		t.AppendLog(task.ActionStatusChanged, actor, fmt.Sprintf("%s -> %s", prev, status), now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publishTaskChange(t, task.ActionStatusChanged, actor)
	return t, nil
}

// StartTask 执行人开始处理：pending / revision-required -> in-progress
func (e *Engine) StartTask(ctx context.Context, id, userID string) (result *task.Task, err error) {
	const op = "engine.StartTask"
	defer recoverOp(op, &err)

	t, err := e.mutate(ctx, op, id, func(t *task.Task, now time.Time) error {
		if t.Status != task.StatusPending && t.Status != task.StatusRevisionRequired {
			return types.Errorf(types.KindValidation, op, "状态为 %s 的任务不能开始处理", t.Status)
		}
		t.Status = task.StatusInProgress
		if t.StartDate == nil {
			t.StartDate = timePtr(now)
		}
		t.AppendLog(task.ActionStarted, userID, "", now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publishTaskChange(t, task.ActionStarted, userID)
	return t, nil
}

// SubmitTaskForReview 提交审核，重复提交覆盖之前的review
func (e *Engine) SubmitTaskForReview(ctx context.Context, id string, submissionData map[string]any, userID string) (result *task.Task, err error) {
	const op = "engine.SubmitTaskForReview"
	defer recoverOp(op, &err)

	t, err := e.mutate(ctx, op, id, func(t *task.Task, now time.Time) error {
		if !t.Status.CanSubmit() {
			return types.Errorf(types.KindValidation, op, "状态为 %s 的任务不能提交审核", t.Status)
		}
		t.Status = task.StatusSubmitted
		t.Review = &task.Review{
			SubmissionData: task.CloneData(submissionData),
			SubmittedAt:    timePtr(now),
			SubmittedBy:    userID,
		}
		t.AppendLog(task.ActionSubmitted, userID, fmt.Sprintf("提交 %d 个字段", len(submissionData)), now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.debugf("Task已提交审核: ID=%s, Stage=%d", t.ID, t.CurrentStage)
	e.publishTaskChange(t, task.ActionSubmitted, userID)
	return t, nil
}

// StartReview 审核人开始审核：submitted -> under-review
func (e *Engine) StartReview(ctx context.Context, id, checkerID string) (result *task.Task, err error) {
	const op = "engine.StartReview"
	defer recoverOp(op, &err)

	t, err := e.mutate(ctx, op, id, func(t *task.Task, now time.Time) error {
		if t.Status != task.StatusSubmitted {
			return types.Errorf(types.KindValidation, op, "状态为 %s 的任务不能开始审核", t.Status)
		}
		t.Status = task.StatusUnderReview
		t.AppendLog(task.ActionReviewStarted, checkerID, "", now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publishTaskChange(t, task.ActionReviewStarted, checkerID)
	return t, nil
}

// RequireRevision 要求返工：阶段与分配不变，当前阶段返工次数加一
// approvedChecklistItems 只保存，不参与后续逻辑
func (e *Engine) RequireRevision(ctx context.Context, id, checkerID, feedback string, approvedChecklistItems []string) (result *task.Task, err error) {
	const op = "engine.RequireRevision"
	defer recoverOp(op, &err)

	t, err := e.mutate(ctx, op, id, func(t *task.Task, now time.Time) error {
		if t.Status.IsTerminal() {
			return types.Errorf(types.KindValidation, op, "状态为 %s 的任务不能要求返工", t.Status)
		}
		t.Status = task.StatusRevisionRequired
		t.RevisedCount++
		if t.Review == nil {
			t.Review = &task.Review{}
		}
		t.Review.RequiresRevision = true
		t.Review.Approved = false
		t.Review.ReviewedAt = timePtr(now)
		t.Review.ReviewedBy = checkerID
		t.Review.AdminFeedback = feedback
		t.Review.ApprovedChecklistItems = append([]string(nil), approvedChecklistItems...)
		t.AppendLog(task.ActionRevisionRequired, checkerID, task.PlainText(feedback), now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("✅ [Engine] Task需要返工: ID=%s, Stage=%d, RevisedCount=%d", t.ID, t.CurrentStage, t.RevisedCount)
	e.publishTaskChange(t, task.ActionRevisionRequired, checkerID)
	e.publish(events.EventTaskRevisionRequired, t.ID, events.TaskChangePayload{
		TaskID:     t.ID,
		Action:     task.ActionRevisionRequired,
		Status:     string(t.Status),
		Actor:      checkerID,
		AssignedTo: t.AssignedTo,
	})
	return t, nil
}

// CancelTask 取消任务，终态任务不能取消
func (e *Engine) CancelTask(ctx context.Context, id, actor, reason string) (result *task.Task, err error) {
	const op = "engine.CancelTask"
	defer recoverOp(op, &err)

	t, err := e.mutate(ctx, op, id, func(t *task.Task, now time.Time) error {
		if t.Status.IsTerminal() {
			return types.Errorf(types.KindValidation, op, "状态为 %s 的任务不能取消", t.Status)
		}
		t.Status = task.StatusCancelled
		t.AppendLog(task.ActionCancelled, actor, reason, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publishTaskChange(t, task.ActionCancelled, actor)
	return t, nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
