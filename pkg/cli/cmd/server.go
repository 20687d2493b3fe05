package cmd

import (
	"log"
	"os/signal"
	"syscall"

	"github.com/LENAX/stageflow/internal/app"
	"github.com/LENAX/stageflow/pkg/cli/output"
	"github.com/LENAX/stageflow/pkg/config"
	"github.com/spf13/cobra"
)

var (
	serverConfigPath string
	serverEnvFile    string
	serverPort       int
)

// serverCmd server子命令
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "HTTP服务命令",
}

// serverStartCmd 在前台启动服务
var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "在前台启动Stageflow HTTP服务",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(serverEnvFile); err != nil {
			output.Error("%v", err)
			return err
		}
		cfg, err := config.LoadFrameworkConfig(serverConfigPath)
		if err != nil {
			output.Error("加载配置失败: %v", err)
			return err
		}
		if serverPort > 0 {
			cfg.Stageflow.Server.Port = serverPort
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg, Version)
		if err != nil {
			output.Error("初始化失败: %v", err)
			return err
		}
		defer a.Close()

		if err := a.Run(ctx); err != nil {
			output.Error("服务异常退出: %v", err)
			return err
		}
		log.Println("✅ 服务已停止")
		return nil
	},
}

// serverPingCmd 检查服务状态
var serverPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "检查服务是否可用",
	RunE: func(cmd *cobra.Command, args []string) error {
		health, err := newClient().Health()
		if err != nil {
			output.Error("服务不可用: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(health)
		}
		output.Success("%s %s (uptime %s)", serverURL, health.Status, health.Uptime)
		return nil
	},
}

func init() {
	serverStartCmd.Flags().StringVarP(&serverConfigPath, "config", "c", "./configs/stageflow.yaml", "配置文件路径")
	serverStartCmd.Flags().StringVar(&serverEnvFile, "env-file", ".env", "环境变量文件")
	serverStartCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "监听端口（覆盖配置文件）")

	serverCmd.AddCommand(serverStartCmd)
	serverCmd.AddCommand(serverPingCmd)
}
