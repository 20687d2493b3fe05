// Package cmd 实现 stageflow 命令行工具
package cmd

import (
	"os"

	"github.com/LENAX/stageflow/pkg/cli/stageflow"
	"github.com/spf13/cobra"
)

var (
	// 全局变量
	serverURL  string
	outputJSON bool
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "stageflow",
	Short: "Stageflow CLI - 多阶段审核工作流命令行工具",
	Long: `Stageflow CLI 是一个用于管理多阶段审核任务的命令行工具。

支持的功能：
  - 管理Task（创建、开始、提交、审核、通过、返工、取消）
  - 管理字段联动配置（列出、查看、创建、删除、查询阶段映射）
  - 管理工作流目录（工作流、依赖链、导入种子文件）
  - 启动HTTP API服务

使用示例：
  # 列出待审核的Task
  stageflow task list --status submitted

  # 审核通过并交接到下一阶段
  stageflow task approve <task-id> --checker C1

  # 导入工作流目录
  stageflow directory apply -f configs/directory.yaml

  # 启动HTTP服务
  stageflow server start --config configs/stageflow.yaml`,
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "Stageflow服务器地址")
	rootCmd.PersistentFlags().BoolVarP(&outputJSON, "json", "j", false, "使用JSON格式输出")

	// 添加子命令
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(linkingCmd)
	rootCmd.AddCommand(directoryCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() *stageflow.Stageflow {
	return stageflow.New(serverURL)
}
