package task

import "time"

// Clone 深拷贝Task，调用方修改副本不会影响原对象
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.ApprovedAt = cloneTime(t.ApprovedAt)
	c.DueDate = cloneTime(t.DueDate)
	c.StartDate = cloneTime(t.StartDate)
	c.CompletedDate = cloneTime(t.CompletedDate)

	if t.StageHistory != nil {
		c.StageHistory = make([]StageRecord, len(t.StageHistory))
		for i, r := range t.StageHistory {
			r.InputData = CloneData(r.InputData)
			r.OutputData = CloneData(r.OutputData)
			c.StageHistory[i] = r
		}
	}
	if t.Logs != nil {
		c.Logs = make([]LogEntry, len(t.Logs))
		copy(c.Logs, t.Logs)
	}
	c.Review = t.Review.Clone()
	return &c
}

// Clone 深拷贝审核信息
func (r *Review) Clone() *Review {
	if r == nil {
		return nil
	}
	c := *r
	c.SubmissionData = CloneData(r.SubmissionData)
	c.SubmittedAt = cloneTime(r.SubmittedAt)
	c.ReviewedAt = cloneTime(r.ReviewedAt)
	if r.ApprovedChecklistItems != nil {
		c.ApprovedChecklistItems = append([]string(nil), r.ApprovedChecklistItems...)
	}
	return &c
}

// CloneData 深拷贝工作表数据（JSON形态的嵌套map/slice）
func CloneData(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneData(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return val
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
