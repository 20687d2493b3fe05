package directory

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// seedDebounce 编辑器保存时会产生多次写事件，合并为一次重新加载
const seedDebounce = 200 * time.Millisecond

// WatchSeedFile 监听种子文件变化，每次变化后重新解析并调用apply
// 监听所在目录而不是文件本身，以便处理编辑器的 rename-then-write 保存方式
// 阻塞直到ctx取消；解析或apply失败只记录日志
func WatchSeedFile(ctx context.Context, path string, apply func(*Seed) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听失败: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("解析种子文件路径失败: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("监听目录 %s 失败: %w", filepath.Dir(abs), err)
	}
	log.Printf("✅ [Directory] 开始监听目录种子文件: %s", abs)

	timer := time.NewTimer(seedDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(seedDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("⚠️ [Directory] 文件监听错误: %v", err)
		case <-timer.C:
			seed, err := LoadSeedFile(abs)
			if err != nil {
				log.Printf("❌ [Directory] 重新加载目录种子失败: %v", err)
				continue
			}
			if err := apply(seed); err != nil {
				log.Printf("❌ [Directory] 应用目录种子失败: %v", err)
			}
		}
	}
}
