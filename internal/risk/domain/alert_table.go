package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
)

// DefaultAlertRetention 严重告警默认保留时长
const DefaultAlertRetention = 24 * time.Hour

// CriticalAlertTable 严重告警表，分片锁并发写入，按保留时长淘汰
type CriticalAlertTable struct {
	cache *bigcache.BigCache
}

// NewCriticalAlertTable 创建告警表，retention <= 0 时使用默认值
func NewCriticalAlertTable(ctx context.Context, retention time.Duration) (*CriticalAlertTable, error) {
	if retention <= 0 {
		retention = DefaultAlertRetention
	}
	cfg := bigcache.DefaultConfig(retention)
	cfg.Shards = 64
	cfg.MaxEntriesInWindow = 10000
	cfg.MaxEntrySize = 1024
	cfg.HardMaxCacheSize = 64 // MB
	cfg.CleanWindow = min(retention, time.Minute)
	cfg.Verbose = false
	cache, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create alert table: %w", err)
	}
	return &CriticalAlertTable{cache: cache}, nil
}

// Put 写入告警，按告警 ID 为键
func (t *CriticalAlertTable) Put(alert *RiskAlert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	return t.cache.Set(alert.ID, data)
}

// Get 按 ID 读取告警，不存在或已淘汰时返回 ErrAlertNotFound
func (t *CriticalAlertTable) Get(id string) (*RiskAlert, error) {
	data, err := t.cache.Get(id)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, err
	}
	var alert RiskAlert
	if err := json.Unmarshal(data, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

// Len 当前保留的告警数
func (t *CriticalAlertTable) Len() int {
	return t.cache.Len()
}

// Close 释放后台清理协程
func (t *CriticalAlertTable) Close() error {
	return t.cache.Close()
}
