// Package api 提供 stageflow 的HTTP API（gin）
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/LENAX/stageflow/pkg/config"
)

// APIServer HTTP API服务器
type APIServer struct {
	deps       Dependencies
	httpServer *http.Server
	config     config.ServerConfig
	version    string
}

// NewAPIServer 创建API服务器
func NewAPIServer(deps Dependencies, cfg config.ServerConfig, version string) *APIServer {
	if deps.Mode == "" {
		deps.Mode = cfg.Mode
	}
	if deps.CORSOrigins == nil {
		deps.CORSOrigins = cfg.CORSOrigins
	}
	return &APIServer{
		deps:    deps,
		config:  cfg,
		version: version,
		httpServer: &http.Server{
			Addr:         cfg.Addr(),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// Start 启动服务器，阻塞直到服务器关闭
func (s *APIServer) Start() error {
	s.httpServer.Handler = SetupRouter(s.deps, s.version)

	log.Printf("🚀 Stageflow API Server starting on %s", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server listen failed: %w", err)
	}
	return nil
}

// Shutdown 优雅关闭服务器
func (s *APIServer) Shutdown(ctx context.Context) error {
	log.Println("🛑 Shutting down API Server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Println("✅ API Server stopped")
	return nil
}

// Addr 获取服务器地址
func (s *APIServer) Addr() string {
	return s.config.Addr()
}
