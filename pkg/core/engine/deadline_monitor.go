package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/LENAX/stageflow/pkg/core/events"
	"github.com/LENAX/stageflow/pkg/storage"
	"github.com/robfig/cron/v3"
)

// DeadlineMonitor 逾期任务巡检（对外导出）
// 按cron表达式定期扫描未完成且已过截止时间的Task，每个Task的每个截止时间只通知一次
type DeadlineMonitor struct {
	cron      *cron.Cron
	tasks     storage.TaskRepository
	publisher events.Publisher
	now       func() time.Time

	mu       sync.Mutex
	entryID  cron.EntryID
	running  bool
	notified map[string]time.Time // taskID -> 已通知的截止时间
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewDeadlineMonitor 创建逾期巡检器（对外导出）
func NewDeadlineMonitor(tasks storage.TaskRepository, publisher events.Publisher) *DeadlineMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &DeadlineMonitor{
		cron:      cron.New(cron.WithSeconds()), // 支持秒级精度
		tasks:     tasks,
		publisher: publisher,
		now:       time.Now,
		notified:  make(map[string]time.Time),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetClock 设置时钟（测试使用）
func (m *DeadlineMonitor) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// TrackedCount 已记录通知的Task数量
func (m *DeadlineMonitor) TrackedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notified)
}

// Start 按cron表达式启动巡检（对外导出）
func (m *DeadlineMonitor) Start(spec string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("逾期巡检已启动")
	}

	// 验证Cron表达式（使用Parser支持秒级精度）
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("逾期巡检的Cron表达式无效: %w", err)
	}

	entryID, err := m.cron.AddFunc(spec, func() {
		if _, err := m.Sweep(m.ctx); err != nil {
			log.Printf("❌ [逾期巡检] 巡检失败: Error=%v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("添加Cron任务失败: %w", err)
	}
	m.entryID = entryID
	m.running = true
	m.cron.Start()
	log.Printf("✅ [逾期巡检] 已启动: CronExpr=%s", spec)
	return nil
}

// Stop 停止巡检并等待正在执行的巡检结束（对外导出）
func (m *DeadlineMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.cron.Remove(m.entryID)
	m.mu.Unlock()

	m.cancel()
	<-m.cron.Stop().Done()
	log.Println("✅ [逾期巡检] 已停止")
}

// Sweep 执行一次巡检，返回本次新通知的Task数量
func (m *DeadlineMonitor) Sweep(ctx context.Context) (int, error) {
	open, err := m.tasks.ListOpenWithDueDate(ctx)
	if err != nil {
		return 0, fmt.Errorf("查询未完成Task失败: %w", err)
	}

	m.mu.Lock()
	now := m.now()
	openIDs := make(map[string]struct{}, len(open))
	var due []events.TaskOverduePayload
	for _, t := range open {
		openIDs[t.ID] = struct{}{}
		if t.DueDate == nil || !t.DueDate.Before(now) {
			continue
		}
		if at, ok := m.notified[t.ID]; ok && at.Equal(*t.DueDate) {
			continue
		}
		m.notified[t.ID] = *t.DueDate
		due = append(due, events.TaskOverduePayload{
			TaskID:     t.ID,
			Title:      t.Title,
			AssignedTo: t.AssignedTo,
			DueDate:    *t.DueDate,
			Status:     string(t.Status),
		})
	}
	// 已结束或被删除的Task不再保留通知记录
	for id := range m.notified {
		if _, ok := openIDs[id]; !ok {
			delete(m.notified, id)
		}
	}
	m.mu.Unlock()

	for _, p := range due {
		log.Printf("⏰ [逾期巡检] Task已逾期: ID=%s, AssignedTo=%s, DueDate=%s", p.TaskID, p.AssignedTo, p.DueDate.Format(time.RFC3339))
		if m.publisher == nil {
			continue
		}
		if err := m.publisher.Publish(events.EventTaskOverdue, p.TaskID, p); err != nil {
			log.Printf("⚠️ [逾期巡检] 发布逾期事件失败: TaskID=%s, Error=%v", p.TaskID, err)
		}
	}
	return len(due), nil
}
