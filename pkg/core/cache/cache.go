package cache

import (
	"sync"
	"time"
)

// TTLCache 带过期时间的内存缓存接口（对外导出）
type TTLCache interface {
	// Set 设置缓存值
	// key: 缓存键
	// value: 缓存值
	// ttl: 缓存有效期
	Set(key string, value interface{}, ttl time.Duration)

	// Get 获取缓存值
	// 返回: 缓存值和是否存在（已过期视为不存在）
	Get(key string) (interface{}, bool)

	// DeletePrefix 删除所有以prefix开头的键
	DeletePrefix(prefix string)

	// Clear 清空所有缓存
	Clear()
}

// cacheEntry 缓存条目（内部使用）
type cacheEntry struct {
	value      interface{}
	expireTime time.Time
}

// MemoryCache 内存缓存实现（对外导出）
type MemoryCache struct {
	mu    sync.RWMutex
	cache map[string]*cacheEntry
	stop  chan struct{}
	once  sync.Once
}

// NewMemoryCache 创建内存缓存实例（对外导出）
// cleanInterval<=0 时不启动后台清理协程，过期条目在读取时被忽略
func NewMemoryCache(cleanInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		cache: make(map[string]*cacheEntry),
		stop:  make(chan struct{}),
	}
	if cleanInterval > 0 {
		go c.cleanupExpired(cleanInterval)
	}
	return c
}

// Set 设置缓存值
func (c *MemoryCache) Set(key string, value interface{}, ttl time.Duration) {
	if key == "" || ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache[key] = &cacheEntry{
		value:      value,
		expireTime: time.Now().Add(ttl),
	}
}

// Get 获取缓存值
func (c *MemoryCache) Get(key string) (interface{}, bool) {
	if key == "" {
		return nil, false
	}

	c.mu.RLock()
	entry, exists := c.cache[key]
	c.mu.RUnlock()

	if !exists || time.Now().After(entry.expireTime) {
		return nil, false
	}
	return entry.value, true
}

// DeletePrefix 删除前缀匹配的缓存
func (c *MemoryCache) DeletePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.cache {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.cache, key)
		}
	}
}

// Clear 清空所有缓存
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[string]*cacheEntry)
}

// Len 当前条目数（含未清理的过期条目）
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Close 停止后台清理协程
func (c *MemoryCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

// cleanupExpired 定期清理过期缓存（内部方法）
func (c *MemoryCache) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.cache {
				if now.After(entry.expireTime) {
					delete(c.cache, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

var _ TTLCache = (*MemoryCache)(nil)
