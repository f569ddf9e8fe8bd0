package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fanqingsong/dify-chat-ui/internal/domain/events"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/log"
	"github.com/fsnotify/fsnotify"
)

// WatchConfig FileWatcher 配置
type WatchConfig struct {
	// Files 需要监听的文件（监听其所在目录，编辑器的原子替换也能感知）
	Files []string
	// DebounceDelay 防抖延迟
	DebounceDelay time.Duration
}

// DefaultWatchConfig 返回默认配置
func DefaultWatchConfig(files ...string) WatchConfig {
	return WatchConfig{
		Files:         files,
		DebounceDelay: 500 * time.Millisecond,
	}
}

// FileWatcher 配置文件监听器
// 文件变更经防抖后以 ConfigFileEvent 发布到事件总线
type FileWatcher struct {
	config   WatchConfig
	eventBus events.EventBus
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	// files 被监听文件的绝对路径集合
	files map[string]struct{}

	// 防抖相关
	debounceTimers map[string]*time.Timer
	debounceMu     sync.Mutex

	// 控制
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewFileWatcher 创建文件监听器
func NewFileWatcher(config WatchConfig, eventBus events.EventBus) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	files := make(map[string]struct{}, len(config.Files))
	for _, f := range config.Files {
		if abs, err := filepath.Abs(f); err == nil {
			files[abs] = struct{}{}
		}
	}

	return &FileWatcher{
		config:         config,
		eventBus:       eventBus,
		watcher:        watcher,
		logger:         log.NewModuleLogger("watcher", "file_watcher"),
		files:          files,
		debounceTimers: make(map[string]*time.Timer),
		stopCh:         make(chan struct{}),
	}, nil
}

// Start 启动文件监听
func (fw *FileWatcher) Start() error {
	fw.logger.Info("Starting file watcher", "files", fw.config.Files)

	dirs := make(map[string]struct{})
	for f := range fw.files {
		dirs[filepath.Dir(f)] = struct{}{}
	}
	for dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			fw.logger.Warn("Failed to create watch directory", "dir", dir, "error", err)
			continue
		}
		if err := fw.watcher.Add(dir); err != nil {
			fw.logger.Warn("Failed to add directory to watch", "dir", dir, "error", err)
			continue
		}
		fw.logger.Debug("Added directory to watch", "dir", dir)
	}

	fw.wg.Add(1)
	go fw.watchLoop()

	return nil
}

// Stop 停止文件监听
func (fw *FileWatcher) Stop() {
	fw.stopOnce.Do(func() {
		fw.logger.Info("Stopping file watcher")

		close(fw.stopCh)
		fw.watcher.Close()
		fw.wg.Wait()

		// 取消所有防抖定时器
		fw.debounceMu.Lock()
		for _, timer := range fw.debounceTimers {
			timer.Stop()
		}
		fw.debounceMu.Unlock()

		fw.logger.Info("File watcher stopped")
	})
}

// watchLoop 事件监听循环
func (fw *FileWatcher) watchLoop() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.stopCh:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsEvent(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("Watcher error", "error", err)
		}
	}
}

// handleFsEvent 处理文件系统事件（带防抖）
func (fw *FileWatcher) handleFsEvent(fsEvent fsnotify.Event) {
	path, err := filepath.Abs(fsEvent.Name)
	if err != nil {
		return
	}
	if _, watched := fw.files[path]; !watched {
		return
	}
	if fsEvent.Has(fsnotify.Chmod) && !fsEvent.Has(fsnotify.Write) {
		return
	}

	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	// 取消之前的定时器
	if timer, exists := fw.debounceTimers[path]; exists {
		timer.Stop()
	}

	fw.debounceTimers[path] = time.AfterFunc(fw.config.DebounceDelay, func() {
		fw.emitConfigFileEvent(path)

		// 清理定时器
		fw.debounceMu.Lock()
		delete(fw.debounceTimers, path)
		fw.debounceMu.Unlock()
	})
}

// emitConfigFileEvent 发布配置文件变更事件
func (fw *FileWatcher) emitConfigFileEvent(path string) {
	_, statErr := os.Stat(path)
	removed := os.IsNotExist(statErr)

	fw.logger.Info("Config file changed", "path", path, "removed", removed)

	fw.eventBus.Publish(&events.ConfigFileEvent{
		FilePath:  path,
		Removed:   removed,
		EventTime: time.Now(),
	})
}
