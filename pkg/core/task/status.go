package task

// Status Task状态
type Status string

const (
	StatusPending          Status = "pending"
	StatusInProgress       Status = "in-progress"
	StatusSubmitted        Status = "submitted"
	StatusUnderReview      Status = "under-review"
	StatusApproved         Status = "approved"
	StatusRevisionRequired Status = "revision-required"
	StatusCompleted        Status = "completed"
	StatusCancelled        Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusInProgress,
	StatusSubmitted,
	StatusUnderReview,
	StatusApproved,
	StatusRevisionRequired,
	StatusCompleted,
	StatusCancelled,
}

// Statuses 返回所有合法状态
func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// Valid 是否为合法状态
func (s Status) Valid() bool {
	for _, v := range allStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal 终态：completed 和 cancelled 之后不再流转
// approved 只对非工作流任务是终态，状态机允许显式改写，因此不计入
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanSubmit 是否允许（重新）提交审核
// revision-required 必须由原执行人重新提交，submitted 再次提交覆盖原审核信息
func (s Status) CanSubmit() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusRevisionRequired, StatusSubmitted:
		return true
	}
	return false
}

// Priority Task优先级
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid 是否为合法优先级
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}
