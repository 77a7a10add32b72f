package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/iabetor/sesli/internal/logger"
)

// HotConfig 在配置文件变化时重新加载并通知订阅者。
// 重新加载失败时保留旧配置。
type HotConfig struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
	subs []func(*Config)
}

// NewHotConfig 加载 path 并返回可热更新的配置。
func NewHotConfig(path string) (*HotConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &HotConfig{cfg: cfg, path: path}, nil
}

// Get 返回当前配置。返回值不应被修改。
func (hc *HotConfig) Get() *Config {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.cfg
}

// OnReload 注册配置变化回调，回调在监听协程中执行。
func (hc *HotConfig) OnReload(fn func(*Config)) {
	hc.mu.Lock()
	hc.subs = append(hc.subs, fn)
	hc.mu.Unlock()
}

func (hc *HotConfig) reload() {
	cfg, err := Load(hc.path)
	if err != nil {
		logger.Warnf("[config] 重新加载 %s 失败，保留旧配置: %v", hc.path, err)
		return
	}
	hc.mu.Lock()
	hc.cfg = cfg
	subs := append([]func(*Config){}, hc.subs...)
	hc.mu.Unlock()

	logger.Infof("[config] 配置已重新加载: %s", hc.path)
	for _, fn := range subs {
		fn(cfg)
	}
}

// Watch 监听配置文件所在目录，直到 ctx 取消。
// 监听目录而不是文件本身，编辑器以重命名方式保存时也能收到事件。
func (hc *HotConfig) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(hc.path)); err != nil {
		watcher.Close()
		return err
	}
	target := filepath.Clean(hc.path)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					hc.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("[config] 文件监听出错: %v", err)
			}
		}
	}()
	return nil
}
