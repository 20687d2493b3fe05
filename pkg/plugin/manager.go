package plugin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/LENAX/stageflow/pkg/core/events"
)

// PluginBinding 插件绑定规则（对外导出）
type PluginBinding struct {
	PluginName string              // 插件名称
	Event      events.EventType    // 触发事件
	Condition  func(data any) bool // 可选：条件函数，满足条件才触发
}

// Subscriber 事件订阅接口，由 events.Bus 实现
type Subscriber interface {
	Subscribe(ctx context.Context, types ...events.EventType) (<-chan *events.Event, error)
}

// PluginManager 插件管理器接口（对外导出）
type PluginManager interface {
	// Register 注册插件
	Register(plugin Plugin) error
	// RegisterWithInit 注册并初始化插件
	RegisterWithInit(plugin Plugin, params map[string]string) error
	// Bind 绑定插件到事件
	Bind(binding PluginBinding) error
	// Trigger 触发绑定到事件的插件
	Trigger(ctx context.Context, data PluginData) error
	// Run 订阅事件总线并持续分发到插件，ctx取消后返回
	Run(ctx context.Context, sub Subscriber) error
	// GetPlugin 获取已注册的插件
	GetPlugin(name string) (Plugin, bool)
	// ListPlugins 列出所有已注册的插件
	ListPlugins() []string
	// Unregister 取消注册插件
	Unregister(name string) error
}

// pluginManagerImpl 插件管理器实现（内部实现）
type pluginManagerImpl struct {
	plugins  map[string]Plugin                    // 插件名称 -> 插件实例
	bindings map[events.EventType][]PluginBinding // 事件类型 -> 绑定列表
	mu       sync.RWMutex
}

// NewPluginManager 创建插件管理器（对外导出）
func NewPluginManager() PluginManager {
	return &pluginManagerImpl{
		plugins:  make(map[string]Plugin),
		bindings: make(map[events.EventType][]PluginBinding),
	}
}

// Register 注册插件（实现PluginManager接口）
func (pm *pluginManagerImpl) Register(plugin Plugin) error {
	if plugin == nil {
		return fmt.Errorf("插件不能为空")
	}
	name := plugin.Name()
	if name == "" {
		return fmt.Errorf("插件名称不能为空")
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.plugins[name]; exists {
		return fmt.Errorf("插件 %s 已注册", name)
	}
	pm.plugins[name] = plugin
	return nil
}

// RegisterWithInit 注册并初始化插件，初始化失败时撤销注册
func (pm *pluginManagerImpl) RegisterWithInit(plugin Plugin, params map[string]string) error {
	if err := pm.Register(plugin); err != nil {
		return err
	}
	if err := plugin.Init(params); err != nil {
		pm.mu.Lock()
		delete(pm.plugins, plugin.Name())
		pm.mu.Unlock()
		return fmt.Errorf("插件 %s 初始化失败: %w", plugin.Name(), err)
	}
	return nil
}

// Bind 绑定插件到事件（实现PluginManager接口）
func (pm *pluginManagerImpl) Bind(binding PluginBinding) error {
	if binding.PluginName == "" {
		return fmt.Errorf("插件名称不能为空")
	}
	if _, err := events.ParseEventType(string(binding.Event)); err != nil {
		return fmt.Errorf("绑定插件 %s 失败: %w", binding.PluginName, err)
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.plugins[binding.PluginName]; !exists {
		return fmt.Errorf("插件 %s 未注册", binding.PluginName)
	}
	pm.bindings[binding.Event] = append(pm.bindings[binding.Event], binding)
	return nil
}

// Trigger 依次执行绑定到data.Event的插件，单个插件失败不影响其他插件
func (pm *pluginManagerImpl) Trigger(ctx context.Context, data PluginData) error {
	pm.mu.RLock()
	bindings := append([]PluginBinding(nil), pm.bindings[data.Event]...)
	pm.mu.RUnlock()

	var errs []error
	for _, binding := range bindings {
		if binding.Condition != nil && !binding.Condition(data) {
			continue
		}
		plugin, exists := pm.GetPlugin(binding.PluginName)
		if !exists {
			continue
		}
		if err := plugin.Execute(data); err != nil {
			errs = append(errs, fmt.Errorf("插件 %s 执行失败: %w", binding.PluginName, err))
		}
	}
	return errors.Join(errs...)
}

// Run 订阅所有已绑定的事件类型并分发，插件错误只记录日志
func (pm *pluginManagerImpl) Run(ctx context.Context, sub Subscriber) error {
	pm.mu.RLock()
	types := make([]events.EventType, 0, len(pm.bindings))
	for t := range pm.bindings {
		types = append(types, t)
	}
	pm.mu.RUnlock()

	if len(types) == 0 {
		log.Println("⚠️ [PluginManager] 没有插件绑定，跳过事件订阅")
		<-ctx.Done()
		return nil
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	ch, err := sub.Subscribe(ctx, types...)
	if err != nil {
		return fmt.Errorf("订阅事件失败: %w", err)
	}
	log.Printf("✅ [PluginManager] 已订阅事件: %v", types)

	for ev := range ch {
		data, err := FromEvent(ev)
		if err != nil {
			log.Printf("⚠️ [PluginManager] 跳过事件: ID=%s, Error=%v", ev.ID, err)
			continue
		}
		if err := pm.Trigger(ctx, data); err != nil {
			log.Printf("❌ [PluginManager] 事件处理失败: Event=%s, TaskID=%s, Error=%v", data.Event, data.TaskID, err)
		}
	}
	return nil
}

// GetPlugin 获取已注册的插件（实现PluginManager接口）
func (pm *pluginManagerImpl) GetPlugin(name string) (Plugin, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	plugin, exists := pm.plugins[name]
	return plugin, exists
}

// ListPlugins 列出所有已注册的插件（按名称排序）
func (pm *pluginManagerImpl) ListPlugins() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	names := make([]string, 0, len(pm.plugins))
	for name := range pm.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unregister 取消注册插件并移除其所有绑定
func (pm *pluginManagerImpl) Unregister(name string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.plugins[name]; !exists {
		return fmt.Errorf("插件 %s 未注册", name)
	}
	delete(pm.plugins, name)

	for event, bindings := range pm.bindings {
		filtered := bindings[:0:0]
		for _, binding := range bindings {
			if binding.PluginName != name {
				filtered = append(filtered, binding)
			}
		}
		pm.bindings[event] = filtered
	}
	return nil
}
