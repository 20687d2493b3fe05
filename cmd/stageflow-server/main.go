package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/LENAX/stageflow/internal/app"
	"github.com/LENAX/stageflow/pkg/config"
)

var (
	Version   = "0.3.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	// 命令行参数
	configPath := flag.String("config", "./configs/stageflow.yaml", "配置文件路径")
	envFile := flag.String("env-file", ".env", "环境变量文件")
	port := flag.Int("port", 0, "监听端口（覆盖配置文件）")
	flag.Parse()

	log.Printf("Stageflow Server v%s (%s, %s)", Version, GitCommit, BuildTime)
	log.Printf("配置文件: %s", *configPath)

	// 1. 加载配置
	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("%v", err)
	}
	cfg, err := config.LoadFrameworkConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *port > 0 {
		cfg.Stageflow.Server.Port = *port
	}

	// 2. 等待中断信号的ctx
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 组装并运行
	a, err := app.New(ctx, cfg, Version)
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	if err := a.Run(ctx); err != nil {
		log.Printf("❌ 服务异常退出: %v", err)
	}

	log.Println("正在关闭服务...")
	if err := a.Close(); err != nil {
		log.Printf("关闭存储失败: %v", err)
	}
	log.Println("✅ 服务已停止")
}
