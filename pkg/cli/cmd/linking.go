package cmd

import (
	"fmt"
	"os"

	"github.com/LENAX/stageflow/pkg/cli/output"
	"github.com/LENAX/stageflow/pkg/core/linking"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	linkingWorkflow string
	linkingFile     string
	mappingFrom     int
	mappingTo       int
)

// linkingCmd linking子命令
var linkingCmd = &cobra.Command{
	Use:   "linking",
	Short: "字段联动配置管理命令",
	Long:  `管理工作流的字段联动配置：上一阶段输出字段到下一阶段输入字段的映射。`,
}

// linkingListCmd 列出联动配置
var linkingListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出联动配置",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := newClient().ListLinkings(linkingWorkflow)
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(list)
		}
		if len(list) == 0 {
			output.Info("暂无联动配置")
			return nil
		}

		table := output.NewTable([]string{"ID", "WORKFLOW", "NAME", "STAGE_PAIRS", "ACTIVE", "UPDATED"})
		for _, c := range list {
			table.AddRow([]string{
				c.ID,
				c.WorkflowID,
				truncate(c.Name, 24),
				fmt.Sprintf("%d", len(c.StageMappings)),
				formatActive(c.IsActive),
				c.UpdatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		table.Render()
		return nil
	},
}

// linkingGetCmd 查看联动配置
var linkingGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "查看联动配置详情",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient().GetLinking(args[0])
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(c)
		}

		w := output.Writer
		fmt.Fprintf(w, "Linking:  %s\n", c.ID)
		fmt.Fprintf(w, "Workflow: %s\n", c.WorkflowID)
		fmt.Fprintf(w, "Name:     %s\n", c.Name)
		fmt.Fprintf(w, "Active:   %s\n", formatActive(c.IsActive))
		for _, sm := range c.StageMappings {
			fmt.Fprintf(w, "\n第%d阶段 -> 第%d阶段\n", sm.FromStageOrder, sm.ToStageOrder)
			printMappings(sm.FieldMappings)
		}
		return nil
	},
}

// linkingCreateCmd 从文件创建联动配置
var linkingCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "从YAML/JSON文件创建联动配置",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(linkingFile)
		if err != nil {
			output.Error("读取文件失败: %v", err)
			return err
		}
		var spec linking.CreateSpec
		if err := yaml.Unmarshal(raw, &spec); err != nil {
			output.Error("解析文件失败: %v", err)
			return err
		}
		c, err := newClient().CreateLinking(spec)
		if err != nil {
			output.Error("创建失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(c)
		}
		output.Success("联动配置已创建: %s (工作流 %s)", c.ID, c.WorkflowID)
		return nil
	},
}

// linkingActivateCmd 启用联动配置
var linkingActivateCmd = &cobra.Command{
	Use:   "activate <id>",
	Short: "启用联动配置",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setLinkingActive(args[0], true)
	},
}

// linkingDeactivateCmd 停用联动配置
var linkingDeactivateCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "停用联动配置，停用后阶段交接不再预填",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setLinkingActive(args[0], false)
	},
}

// linkingDeleteCmd 删除联动配置
var linkingDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "删除联动配置",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().DeleteLinking(args[0]); err != nil {
			output.Error("删除失败: %v", err)
			return err
		}
		output.Success("联动配置已删除: %s", args[0])
		return nil
	},
}

// linkingMappingsCmd 查询阶段映射
var linkingMappingsCmd = &cobra.Command{
	Use:   "mappings <workflow-id>",
	Short: "查询两个阶段之间的字段映射",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := newClient().FieldMappings(args[0], mappingFrom, mappingTo)
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(list)
		}
		if len(list) == 0 {
			output.Info("第%d阶段到第%d阶段没有字段映射", mappingFrom, mappingTo)
			return nil
		}
		printMappings(list)
		return nil
	},
}

func init() {
	linkingListCmd.Flags().StringVar(&linkingWorkflow, "workflow", "", "按工作流过滤")

	linkingCreateCmd.Flags().StringVarP(&linkingFile, "file", "f", "", "联动配置文件 (YAML/JSON)")
	_ = linkingCreateCmd.MarkFlagRequired("file")

	linkingMappingsCmd.Flags().IntVar(&mappingFrom, "from", 1, "源阶段")
	linkingMappingsCmd.Flags().IntVar(&mappingTo, "to", 2, "目标阶段")

	linkingCmd.AddCommand(linkingListCmd)
	linkingCmd.AddCommand(linkingGetCmd)
	linkingCmd.AddCommand(linkingCreateCmd)
	linkingCmd.AddCommand(linkingActivateCmd)
	linkingCmd.AddCommand(linkingDeactivateCmd)
	linkingCmd.AddCommand(linkingDeleteCmd)
	linkingCmd.AddCommand(linkingMappingsCmd)
}

func setLinkingActive(id string, active bool) error {
	c, err := newClient().UpdateLinking(id, linking.Patch{IsActive: &active})
	if err != nil {
		output.Error("更新失败: %v", err)
		return err
	}
	if outputJSON {
		return output.PrintJSON(c)
	}
	output.Success("联动配置 %s: %s", c.ID, formatActive(c.IsActive))
	return nil
}

func printMappings(list []linking.FieldMapping) {
	table := output.NewTable([]string{"FROM_FIELD", "TO_FIELD", "FROM_LABEL", "TO_LABEL"})
	for _, m := range list {
		table.AddRow([]string{m.FromFieldID, m.ToFieldID, orDash(m.FromFieldLabel), orDash(m.ToFieldLabel)})
	}
	table.Render()
}

func formatActive(active bool) string {
	if active {
		return "✅ 启用"
	}
	return "⏸️  停用"
}
