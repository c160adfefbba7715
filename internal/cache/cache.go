package cache

import (
	"sync"
	"time"
)

// entry 单条缓存记录
type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Cache 有界 TTL 响应缓存。
// 显式维护插入顺序，容量满时先淘汰最旧条目；过期条目在读取时剔除。
type Cache struct {
	mu         sync.Mutex
	entries    map[string]entry
	order      []string // 插入顺序，淘汰用
	ttl        time.Duration
	maxEntries int

	now func() time.Time // 可注入，便于测试
}

// New 创建缓存
func New(ttl time.Duration, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &Cache{
		entries:    make(map[string]entry),
		order:      make([]string, 0, maxEntries),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get 读取缓存，过期即删除并返回未命中
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		c.remove(key)
		return nil, false
	}
	return e.value, true
}

// Set 写入缓存，已满时淘汰最旧条目
func (c *Cache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.remove(key)
	}
	for len(c.entries) >= c.maxEntries {
		c.remove(c.order[0])
	}

	c.entries[key] = entry{value: value, expiresAt: c.now().Add(c.ttl)}
	c.order = append(c.order, key)
}

// Len 当前条目数
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge 清空缓存
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	c.order = c.order[:0]
}

// remove 调用方需持锁
func (c *Cache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
