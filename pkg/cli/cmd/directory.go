package cmd

import (
	"fmt"
	"strings"

	"github.com/LENAX/stageflow/pkg/api/dto"
	"github.com/LENAX/stageflow/pkg/cli/output"
	"github.com/LENAX/stageflow/pkg/core/directory"
	"github.com/spf13/cobra"
)

var (
	directoryWorkflow string
	seedFile          string
)

// directoryCmd directory子命令
var directoryCmd = &cobra.Command{
	Use:     "directory",
	Aliases: []string{"dir"},
	Short:   "工作流目录管理命令",
	Long:    `管理工作流定义与依赖链（每个阶段的执行人和审核人）。`,
}

// directoryWorkflowsCmd 列出工作流
var directoryWorkflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "列出工作流定义",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := newClient().ListWorkflows()
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(list)
		}
		if len(list) == 0 {
			output.Info("暂无工作流")
			return nil
		}
		table := output.NewTable([]string{"WORKFLOW_ID", "NAME", "TASKS", "DESCRIPTION"})
		for _, wf := range list {
			table.AddRow([]string{wf.ID, wf.Name, fmt.Sprintf("%d", wf.TaskCount), orDash(truncate(wf.Description, 30))})
		}
		table.Render()
		return nil
	},
}

// directoryDependenciesCmd 列出依赖链
var directoryDependenciesCmd = &cobra.Command{
	Use:   "dependencies",
	Short: "列出依赖链",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := newClient().ListDependencies(directoryWorkflow)
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(list)
		}
		if len(list) == 0 {
			output.Info("暂无依赖链")
			return nil
		}
		table := output.NewTable([]string{"DEPENDENCY_ID", "WORKFLOW", "NAME", "STAGES", "TASKS"})
		for _, dep := range list {
			table.AddRow([]string{dep.ID, dep.WorkflowID, orDash(dep.Name), formatChain(dep.Stages), fmt.Sprintf("%d", dep.TaskCount)})
		}
		table.Render()
		return nil
	},
}

// directoryDependencyCmd 查看依赖链
var directoryDependencyCmd = &cobra.Command{
	Use:   "dependency <id>",
	Short: "查看依赖链的阶段分配",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dep, err := newClient().GetDependency(args[0])
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(dep)
		}
		fmt.Fprintf(output.Writer, "Dependency: %s (工作流 %s)\n\n", dep.ID, dep.WorkflowID)
		table := output.NewTable([]string{"STAGE", "CATEGORY", "USER", "CHECKER"})
		for _, s := range dep.Stages {
			table.AddRow([]string{
				fmt.Sprintf("%d", s.StageOrder),
				orDash(s.CategoryName),
				withName(s.UserID, s.UserName),
				withName(s.CheckerID, s.CheckerName),
			})
		}
		table.Render()
		return nil
	},
}

// directoryApplyCmd 导入种子文件
var directoryApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "导入工作流目录种子文件",
	RunE: func(cmd *cobra.Command, args []string) error {
		seed, err := directory.LoadSeedFile(seedFile)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		client := newClient()
		for _, wf := range seed.Workflows {
			if _, err := client.RegisterWorkflow(dto.RegisterWorkflowRequest{ID: wf.ID, Name: wf.Name, Description: wf.Description}); err != nil {
				output.Error("注册工作流 %s 失败: %v", wf.ID, err)
				return err
			}
			output.Success("工作流: %s", wf.ID)
		}
		for _, dep := range seed.Dependencies {
			req := dto.DependencyRequest{WorkflowID: dep.WorkflowID, Name: dep.Name, Stages: dep.Stages}
			if _, err := client.SaveDependency(dep.ID, req); err != nil {
				output.Error("保存依赖链 %s 失败: %v", dep.ID, err)
				return err
			}
			output.Success("依赖链: %s (%d个阶段)", dep.ID, len(dep.Stages))
		}
		return nil
	},
}

// directoryDeleteCmd 删除依赖链
var directoryDeleteCmd = &cobra.Command{
	Use:   "delete-dependency <id>",
	Short: "删除依赖链",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().DeleteDependency(args[0]); err != nil {
			output.Error("删除失败: %v", err)
			return err
		}
		output.Success("依赖链已删除: %s", args[0])
		return nil
	},
}

func init() {
	directoryDependenciesCmd.Flags().StringVar(&directoryWorkflow, "workflow", "", "按工作流过滤")
	directoryApplyCmd.Flags().StringVarP(&seedFile, "file", "f", "", "种子文件 (YAML)")
	_ = directoryApplyCmd.MarkFlagRequired("file")

	directoryCmd.AddCommand(directoryWorkflowsCmd)
	directoryCmd.AddCommand(directoryDependenciesCmd)
	directoryCmd.AddCommand(directoryDependencyCmd)
	directoryCmd.AddCommand(directoryApplyCmd)
	directoryCmd.AddCommand(directoryDeleteCmd)
}

// formatChain 以 U1/C1 → U2/C2 的形式显示依赖链
func formatChain(stages []directory.StageAssignment) string {
	parts := make([]string, 0, len(stages))
	for _, s := range stages {
		parts = append(parts, fmt.Sprintf("%s/%s", s.UserID, orDash(s.CheckerID)))
	}
	return strings.Join(parts, " → ")
}

func withName(id, name string) string {
	if name == "" {
		return orDash(id)
	}
	return fmt.Sprintf("%s (%s)", name, id)
}
