// Package app 按配置组装 stageflow 服务的全部组件
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/LENAX/stageflow/internal/storage"
	"github.com/LENAX/stageflow/pkg/api"
	"github.com/LENAX/stageflow/pkg/config"
	"github.com/LENAX/stageflow/pkg/core/cache"
	"github.com/LENAX/stageflow/pkg/core/directory"
	"github.com/LENAX/stageflow/pkg/core/engine"
	"github.com/LENAX/stageflow/pkg/core/events"
	"github.com/LENAX/stageflow/pkg/core/linking"
	"github.com/LENAX/stageflow/pkg/plugin"
	"github.com/ThreeDotsLabs/watermill"
	"golang.org/x/sync/errgroup"
)

// App 运行中的服务（对外导出）
type App struct {
	cfg       *config.EngineConfig
	factory   storage.DatabaseFactory
	bus       *events.Bus
	directory *directory.Service
	memCache  *cache.MemoryCache
	cached    *cache.CachedDirectory
	linking   *linking.Engine
	engine    *engine.Engine
	monitor   *engine.DeadlineMonitor
	plugins   plugin.PluginManager
	server    *api.APIServer
}

// New 按配置创建所有组件，失败时释放已创建的资源
func New(ctx context.Context, cfg *config.EngineConfig, version string) (_ *App, err error) {
	sf := &cfg.Stageflow
	a := &App{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	// 1. 存储
	db := sf.Storage.Database
	if err := ensureSQLiteDir(db.Type, db.DSN); err != nil {
		return nil, err
	}
	a.factory, err = storage.NewDatabaseFactory(db.Type, db.DSN)
	if err != nil {
		return nil, fmt.Errorf("创建存储失败: %w", err)
	}
	a.factory.ConfigurePool(storage.PoolConfig{
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: db.ConnMaxLifetime,
		ConnMaxIdleTime: db.ConnMaxIdleTime,
	})
	repos := a.factory.Repositories()
	log.Printf("✅ [App] 存储已就绪: Type=%s", db.Type)

	// 2. 事件总线
	var busLogger watermill.LoggerAdapter
	if cfg.IsDebug() {
		busLogger = watermill.NewStdLogger(true, false)
	}
	a.bus = events.NewBus(sf.Notification.EventBuffer, busLogger)

	// 3. 目录与缓存
	a.directory = directory.NewService(repos.Directory)
	var stageDir directory.StageDirectory = a.directory
	if sf.Storage.Cache.Enabled {
		a.memCache = cache.NewMemoryCache(sf.Storage.Cache.CleanInterval)
		a.cached = cache.NewCachedDirectory(a.directory, a.memCache, sf.Storage.Cache.DefaultTTL)
		stageDir = a.cached
	}
	if path := sf.Directory.SeedFile; path != "" {
		seed, err := directory.LoadSeedFile(path)
		if err != nil {
			return nil, err
		}
		if err := a.applySeed(ctx, seed); err != nil {
			return nil, err
		}
	}

	// 4. 字段联动
	a.linking = linking.NewEngine(repos.Linkings, linking.WithPublisher(a.bus))
	if err := a.linking.Load(ctx); err != nil {
		return nil, err
	}

	// 5. 状态机与阶段交接
	a.engine, err = engine.NewEngine(repos.Tasks,
		engine.WithStageDirectory(stageDir),
		engine.WithWorkflowRegistry(a.directory.Workflows()),
		engine.WithFieldLinker(a.linking),
		engine.WithPublisher(a.bus),
		engine.WithDebug(cfg.IsDebug()),
	)
	if err != nil {
		return nil, err
	}

	// 6. 逾期巡检
	if sf.Monitor.Enabled {
		a.monitor = engine.NewDeadlineMonitor(repos.Tasks, a.bus)
	}

	// 7. 通知插件
	a.plugins = plugin.NewPluginManager()
	if email := sf.Notification.Email; email.Enabled {
		if err := a.plugins.RegisterWithInit(plugin.NewEmailPlugin(), email.PluginParams()); err != nil {
			return nil, err
		}
		for _, name := range email.Events {
			t, err := events.ParseEventType(strings.TrimSpace(name))
			if err != nil {
				return nil, fmt.Errorf("邮件通知事件配置错误: %w", err)
			}
			if err := a.plugins.Bind(plugin.PluginBinding{PluginName: "email", Event: t}); err != nil {
				return nil, err
			}
		}
	}

	// 8. HTTP API
	deps := api.Dependencies{
		Engine:    a.engine,
		Linking:   a.linking,
		Directory: a.directory,
		Events:    a.bus,
		Ready:     a.factory.Ping,
	}
	if a.cached != nil {
		deps.Cache = a.cached
	}
	a.server = api.NewAPIServer(deps, sf.Server, version)
	return a, nil
}

// Run 启动HTTP服务、插件分发、逾期巡检和种子文件监听，阻塞直到ctx取消或任一组件失败
func (a *App) Run(ctx context.Context) error {
	sf := &a.cfg.Stageflow
	if a.monitor != nil {
		if err := a.monitor.Start(sf.Monitor.Cron); err != nil {
			return err
		}
		defer a.monitor.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.server.Start)
	g.Go(func() error {
		return a.plugins.Run(gctx, a.bus)
	})
	if sf.Directory.WatchSeed {
		g.Go(func() error {
			return directory.WatchSeedFile(gctx, sf.Directory.SeedFile, func(seed *directory.Seed) error {
				return a.applySeed(gctx, seed)
			})
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), sf.Server.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	log.Printf("✅ [App] %s 已启动: Addr=%s", sf.General.InstanceName, a.server.Addr())
	return g.Wait()
}

// Close 释放资源
func (a *App) Close() error {
	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.bus != nil {
		_ = a.bus.Close()
	}
	if a.memCache != nil {
		a.memCache.Close()
	}
	if a.factory != nil {
		return a.factory.Close()
	}
	return nil
}

// Engine 状态机引擎
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Directory 目录服务
func (a *App) Directory() *directory.Service {
	return a.directory
}

func (a *App) applySeed(ctx context.Context, seed *directory.Seed) error {
	ids, err := a.directory.ApplySeed(ctx, seed)
	if err != nil {
		return err
	}
	if a.cached != nil {
		for _, id := range ids {
			a.cached.Invalidate(id)
		}
	}
	return nil
}

// ensureSQLiteDir 为SQLite数据库文件创建所在目录
func ensureSQLiteDir(dbType, dsn string) error {
	if dbType != "sqlite" && dbType != "sqlite3" {
		return nil
	}
	if strings.Contains(dsn, ":memory:") || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("创建数据目录失败: %w", err)
	}
	return nil
}
