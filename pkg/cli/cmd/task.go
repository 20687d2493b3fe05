package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/LENAX/stageflow/pkg/api/dto"
	"github.com/LENAX/stageflow/pkg/cli/output"
	"github.com/LENAX/stageflow/pkg/core/task"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	taskFilter   dto.TaskListQuery
	taskCreate   dto.CreateTaskRequest
	taskDue      string
	taskUser     string
	taskChecker  string
	taskFeedback string
	taskDataFile string
	taskReason   string
	taskItems    []string
)

// taskCmd task子命令
var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Task管理命令",
	Long:  `管理多阶段审核任务，包括创建、流转、审核和阶段交接。`,
}

// taskListCmd 列出Task
var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出Task",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := newClient().ListTasks(taskFilter)
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		if len(result.Items) == 0 {
			output.Info("暂无Task")
			return nil
		}

		table := output.NewTable([]string{"TASK_ID", "TITLE", "STATUS", "STAGE", "ASSIGNED", "CHECKER", "UPDATED"})
		for _, t := range result.Items {
			table.AddRow([]string{
				t.ID,
				truncate(t.Title, 24),
				formatStatus(t.Status),
				formatStage(t),
				orDash(t.AssignedTo),
				orDash(t.CheckerID),
				t.UpdatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		table.Render()
		fmt.Fprintf(output.Writer, "\n总计: %d 条记录\n", result.Total)
		return nil
	},
}

// taskGetCmd 查看Task详情
var taskGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "查看Task详情",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := newClient().GetTask(args[0])
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(t)
		}
		printTask(t)
		return nil
	},
}

// taskCreateCmd 创建Task
var taskCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "创建Task",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := taskCreate
		if taskDue != "" {
			due, err := time.Parse(time.RFC3339, taskDue)
			if err != nil {
				output.Error("截止时间格式错误，应为RFC3339: %v", err)
				return err
			}
			req.DueDate = &due
		}
		t, err := newClient().CreateTask(req)
		if err != nil {
			output.Error("创建失败: %v", err)
			return err
		}
		return printTaskResult(t, "Task已创建: %s", t.ID)
	},
}

// taskStartCmd 开始处理
var taskStartCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "开始处理Task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := newClient().StartTask(args[0], taskUser)
		if err != nil {
			output.Error("操作失败: %v", err)
			return err
		}
		return printTaskResult(t, "Task已开始: %s", t.ID)
	},
}

// taskSubmitCmd 提交审核
var taskSubmitCmd = &cobra.Command{
	Use:   "submit <id>",
	Short: "提交Task审核",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readDataFile(taskDataFile)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		t, err := newClient().SubmitTask(args[0], taskUser, data)
		if err != nil {
			output.Error("提交失败: %v", err)
			return err
		}
		return printTaskResult(t, "Task已提交审核: %s", t.ID)
	},
}

// taskReviewCmd 开始审核
var taskReviewCmd = &cobra.Command{
	Use:   "review <id>",
	Short: "开始审核Task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := newClient().StartReview(args[0], taskChecker)
		if err != nil {
			output.Error("操作失败: %v", err)
			return err
		}
		return printTaskResult(t, "Task进入审核: %s", t.ID)
	},
}

// taskApproveCmd 审核通过
var taskApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "审核通过，工作流任务交接到下一阶段",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readDataFile(taskDataFile)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		outcome, err := newClient().ApproveTask(args[0], dto.ApproveRequest{
			CheckerID:  taskChecker,
			Feedback:   taskFeedback,
			OutputData: data,
		})
		if err != nil {
			output.Error("审批失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(outcome)
		}

		t := outcome.Task
		switch {
		case outcome.Handoff != nil:
			h := outcome.Handoff
			output.Success("已交接到第%d阶段: 执行人=%s, 审核人=%s", h.NextStage, h.AssignedTo, orDash(h.CheckerID))
			if len(h.Prefill) > 0 {
				fmt.Fprintln(output.Writer, "\n预填字段:")
				printData(h.Prefill)
			}
		case t.IsWorkflowComplete:
			output.Success("工作流已完成: %s", t.ID)
		default:
			output.Success("Task已通过: %s", t.ID)
		}
		return nil
	},
}

// taskReviseCmd 要求返工
var taskReviseCmd = &cobra.Command{
	Use:   "revise <id>",
	Short: "要求返工",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := newClient().RequireRevision(args[0], dto.RevisionRequest{
			CheckerID:              taskChecker,
			Feedback:               taskFeedback,
			ApprovedChecklistItems: taskItems,
		})
		if err != nil {
			output.Error("操作失败: %v", err)
			return err
		}
		return printTaskResult(t, "Task已退回返工（第%d次）: %s", t.RevisedCount, t.ID)
	},
}

// taskCancelCmd 取消Task
var taskCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "取消Task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := newClient().CancelTask(args[0], taskUser, taskReason)
		if err != nil {
			output.Error("取消失败: %v", err)
			return err
		}
		return printTaskResult(t, "Task已取消: %s", t.ID)
	},
}

// taskStatusCmd 直接设置状态
var taskStatusCmd = &cobra.Command{
	Use:   "status <id> <status>",
	Short: "直接设置Task状态（不做转换校验）",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := newClient().UpdateTaskStatus(args[0], args[1], taskUser)
		if err != nil {
			output.Error("更新失败: %v", err)
			return err
		}
		return printTaskResult(t, "Task状态已更新: %s -> %s", t.ID, t.Status)
	},
}

// taskDeleteCmd 删除Task
var taskDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "删除Task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().DeleteTask(args[0], taskUser); err != nil {
			output.Error("删除失败: %v", err)
			return err
		}
		output.Success("Task已删除: %s", args[0])
		return nil
	},
}

// taskPrefillCmd 查看当前阶段的预填数据
var taskPrefillCmd = &cobra.Command{
	Use:   "prefill <id>",
	Short: "查看当前阶段由上一阶段联动得到的预填数据",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := newClient().GetPrefill(args[0])
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(result)
		}
		if len(result.Prefill) == 0 {
			output.Info("第%d阶段没有预填数据", result.Stage)
			return nil
		}
		fmt.Fprintf(output.Writer, "Task %s 第%d阶段预填数据:\n", result.TaskID, result.Stage)
		printData(result.Prefill)
		return nil
	},
}

func init() {
	taskListCmd.Flags().StringVar(&taskFilter.Status, "status", "", "按状态过滤 (pending/in-progress/submitted/under-review/approved/revision-required/completed/cancelled)")
	taskListCmd.Flags().StringVar(&taskFilter.AssignedTo, "assigned", "", "按执行人过滤")
	taskListCmd.Flags().StringVar(&taskFilter.CheckerID, "checker", "", "按审核人过滤")
	taskListCmd.Flags().StringVar(&taskFilter.WorkflowID, "workflow", "", "按工作流过滤")
	taskListCmd.Flags().IntVar(&taskFilter.Limit, "limit", 20, "返回记录数量限制")
	taskListCmd.Flags().IntVar(&taskFilter.Offset, "offset", 0, "跳过的记录数量")

	f := taskCreateCmd.Flags()
	f.StringVar(&taskCreate.Title, "title", "", "标题")
	f.StringVar(&taskCreate.Description, "desc", "", "描述")
	f.StringVar(&taskCreate.Priority, "priority", "", "优先级 (low/medium/high/urgent)")
	f.StringVar(&taskCreate.WorkflowID, "workflow", "", "工作流ID")
	f.StringVar(&taskCreate.UserDependencyID, "dependency", "", "依赖链ID，与--workflow同时指定")
	f.IntVar(&taskCreate.CurrentStage, "stage", 0, "起始阶段（默认1）")
	f.StringVar(&taskCreate.AssignedTo, "assigned", "", "执行人（非工作流任务）")
	f.StringVar(&taskCreate.CheckerID, "checker", "", "审核人（非工作流任务）")
	f.StringVar(&taskCreate.CategoryID, "category", "", "分类ID")
	f.StringVar(&taskCreate.CreatedBy, "by", "", "创建人")
	f.StringVar(&taskDue, "due", "", "截止时间 (RFC3339)")
	_ = taskCreateCmd.MarkFlagRequired("title")

	for _, c := range []*cobra.Command{taskStartCmd, taskSubmitCmd, taskCancelCmd, taskStatusCmd, taskDeleteCmd} {
		c.Flags().StringVarP(&taskUser, "user", "u", "", "操作人")
	}
	_ = taskStartCmd.MarkFlagRequired("user")
	_ = taskSubmitCmd.MarkFlagRequired("user")

	for _, c := range []*cobra.Command{taskReviewCmd, taskApproveCmd, taskReviseCmd} {
		c.Flags().StringVarP(&taskChecker, "checker", "c", "", "审核人")
		_ = c.MarkFlagRequired("checker")
	}
	taskApproveCmd.Flags().StringVar(&taskFeedback, "feedback", "", "审核意见")
	taskReviseCmd.Flags().StringVar(&taskFeedback, "feedback", "", "返工意见")
	taskReviseCmd.Flags().StringSliceVar(&taskItems, "item", nil, "已通过的检查项（可重复）")

	taskSubmitCmd.Flags().StringVarP(&taskDataFile, "data", "d", "", "提交数据文件 (YAML/JSON)")
	taskApproveCmd.Flags().StringVarP(&taskDataFile, "data", "d", "", "本阶段输出数据文件 (YAML/JSON)")
	taskCancelCmd.Flags().StringVar(&taskReason, "reason", "", "取消原因")

	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskGetCmd)
	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskStartCmd)
	taskCmd.AddCommand(taskSubmitCmd)
	taskCmd.AddCommand(taskReviewCmd)
	taskCmd.AddCommand(taskApproveCmd)
	taskCmd.AddCommand(taskReviseCmd)
	taskCmd.AddCommand(taskCancelCmd)
	taskCmd.AddCommand(taskStatusCmd)
	taskCmd.AddCommand(taskDeleteCmd)
	taskCmd.AddCommand(taskPrefillCmd)
}

// readDataFile 读取YAML或JSON数据文件，path为空时返回nil
func readDataFile(path string) (map[string]interface{}, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取数据文件失败: %w", err)
	}
	data := map[string]interface{}{}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("解析数据文件失败: %w", err)
	}
	return data, nil
}

func printTaskResult(t *task.Task, format string, args ...interface{}) error {
	if outputJSON {
		return output.PrintJSON(t)
	}
	output.Success(format, args...)
	return nil
}

func printTask(t *task.Task) {
	w := output.Writer
	fmt.Fprintf(w, "Task:     %s\n", t.ID)
	fmt.Fprintf(w, "Title:    %s\n", t.Title)
	fmt.Fprintf(w, "Status:   %s\n", formatStatus(t.Status))
	fmt.Fprintf(w, "Priority: %s\n", t.Priority)
	if t.IsWorkflowBound() {
		fmt.Fprintf(w, "Workflow: %s (依赖链 %s)\n", t.WorkflowID, t.UserDependencyID)
		fmt.Fprintf(w, "Stage:    %s\n", formatStage(t))
	}
	fmt.Fprintf(w, "Assigned: %s\n", orDash(t.AssignedTo))
	fmt.Fprintf(w, "Checker:  %s\n", orDash(t.CheckerID))
	if t.DueDate != nil {
		fmt.Fprintf(w, "Due:      %s\n", t.DueDate.Format("2006-01-02 15:04:05"))
	}
	if t.RevisedCount > 0 {
		fmt.Fprintf(w, "Revised:  %d\n", t.RevisedCount)
	}
	if t.Review != nil && t.Review.AdminFeedback != "" {
		fmt.Fprintf(w, "Feedback: %s\n", t.Review.AdminFeedback)
	}

	if len(t.StageHistory) > 0 {
		fmt.Fprintln(w, "\nStages:")
		for _, rec := range t.StageHistory {
			fmt.Fprintf(w, "  %s 第%d阶段  %s -> %s\n", getStatusIcon(rec.Status), rec.StageOrder, rec.UserID, rec.CheckerID)
		}
	}
	if len(t.Logs) > 0 {
		fmt.Fprintln(w, "\nLogs:")
		for _, entry := range t.Logs {
			fmt.Fprintf(w, "  %s  %-18s %-10s %s\n", entry.Timestamp.Format("01-02 15:04"), entry.Action, orDash(entry.PerformedBy), entry.Details)
		}
	}
}

// printData 按字段名排序输出数据
func printData(data map[string]interface{}) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(output.Writer, "  %s: %v\n", k, data[k])
	}
}

// formatStatus 格式化状态显示
func formatStatus(status task.Status) string {
	return getStatusIcon(status) + " " + string(status)
}

// getStatusIcon 获取状态图标
func getStatusIcon(status task.Status) string {
	switch status {
	case task.StatusPending:
		return "⏳"
	case task.StatusInProgress:
		return "🔄"
	case task.StatusSubmitted:
		return "📤"
	case task.StatusUnderReview:
		return "🔍"
	case task.StatusApproved:
		return "✅"
	case task.StatusRevisionRequired:
		return "↩️"
	case task.StatusCompleted:
		return "🏁"
	case task.StatusCancelled:
		return "🛑"
	default:
		return "❓"
	}
}

func formatStage(t *task.Task) string {
	if !t.IsWorkflowBound() {
		return "-"
	}
	if t.IsWorkflowComplete {
		return fmt.Sprintf("%d (完成)", t.CurrentStage)
	}
	return fmt.Sprintf("%d", t.CurrentStage)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// truncate 按字符截断
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
