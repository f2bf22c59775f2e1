package util

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	logFilePrefix = "opcgw-"
	logFileSuffix = ".log"
	logDateLayout = "20060102"
)

var (
	activeHookMu sync.Mutex
	activeHook   *FileHook // 当前注册到 logrus 的文件 Hook
)

// FileHook logrus Hook 实现，按天写入日志文件并清理过期文件
type FileHook struct {
	dir       string
	keepDays  int
	formatter logrus.Formatter

	mu   sync.Mutex
	file *os.File
	path string
	date string // 当前文件对应的日期（格式：20060102）

	stop chan struct{}
	done chan struct{}
}

// Levels 返回 Hook 要处理的日志级别
func (hook *FileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire 写入日志到文件，跨天时自动轮换
func (hook *FileHook) Fire(entry *logrus.Entry) error {
	line, err := hook.formatter.Format(entry)
	if err != nil {
		return err
	}

	hook.mu.Lock()
	defer hook.mu.Unlock()

	if hook.file == nil {
		return nil
	}
	if today := entry.Time.Format(logDateLayout); today != hook.date {
		if err := hook.openLocked(today); err != nil {
			return err
		}
	}
	_, err = hook.file.Write(line)
	return err
}

// Path 当前日志文件路径
func (hook *FileHook) Path() string {
	hook.mu.Lock()
	defer hook.mu.Unlock()
	return hook.path
}

// openLocked 打开指定日期的日志文件（追加模式），调用方需持有 mu
func (hook *FileHook) openLocked(date string) error {
	path := filepath.Join(hook.dir, logFilePrefix+date+logFileSuffix)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	if hook.file != nil {
		hook.file.Close()
	}
	hook.file = file
	hook.path = path
	hook.date = date
	return nil
}

// rotate 日期变化时切换文件
func (hook *FileHook) rotate(now time.Time) error {
	hook.mu.Lock()
	defer hook.mu.Unlock()

	today := now.Format(logDateLayout)
	if hook.file != nil && hook.date == today {
		return nil
	}
	return hook.openLocked(today)
}

// cleanup 删除超过保留天数的日志文件
func (hook *FileHook) cleanup(now time.Time) error {
	entries, err := os.ReadDir(hook.dir)
	if err != nil {
		return fmt.Errorf("failed to read log directory: %w", err)
	}

	cutoff := now.AddDate(0, 0, -hook.keepDays).Format(logDateLayout)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, logFilePrefix) || !strings.HasSuffix(name, logFileSuffix) {
			continue
		}
		date := strings.TrimSuffix(strings.TrimPrefix(name, logFilePrefix), logFileSuffix)
		if len(date) != len(logDateLayout) || date >= cutoff {
			continue
		}
		path := filepath.Join(hook.dir, name)
		if err := os.Remove(path); err != nil {
			logrus.Warnf("Failed to delete old log file %s: %v", path, err)
		} else {
			logrus.Infof("Deleted old log file: %s", path)
		}
	}
	return nil
}

func (hook *FileHook) run() {
	defer close(hook.done)

	rotateTicker := time.NewTicker(time.Hour)
	defer rotateTicker.Stop()
	cleanupTicker := time.NewTicker(24 * time.Hour)
	defer cleanupTicker.Stop()

	if err := hook.cleanup(time.Now()); err != nil {
		logrus.Warnf("Failed to cleanup old logs: %v", err)
	}
	for {
		select {
		case now := <-rotateTicker.C:
			if err := hook.rotate(now); err != nil {
				logrus.Errorf("Failed to rotate log file: %v", err)
			}
		case now := <-cleanupTicker.C:
			if err := hook.cleanup(now); err != nil {
				logrus.Warnf("Failed to cleanup old logs: %v", err)
			}
		case <-hook.stop:
			return
		}
	}
}

// Close 停止轮换任务并关闭文件
func (hook *FileHook) Close() error {
	if hook.stop != nil {
		close(hook.stop)
		<-hook.done
		hook.stop = nil
	}

	hook.mu.Lock()
	defer hook.mu.Unlock()
	if hook.file == nil {
		return nil
	}
	err := hook.file.Close()
	hook.file = nil
	hook.path = ""
	hook.date = ""
	return err
}

func prettyCaller(frame *runtime.Frame) (function string, file string) {
	return frame.Function, ""
}

// InitLogger 初始化控制台日志格式与级别
func InitLogger(level string) {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:    true,
		TimestampFormat:  time.DateTime,
		CallerPrettyfier: prettyCaller,
	})
	logrus.SetReportCaller(true)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		if level != "" {
			logrus.Warnf("Unknown log level %q, falling back to info", level)
		}
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}

// InitLoggerWithFileAndRetention 初始化文件日志输出
// logDir: 日志文件目录
// keepDays: 保留日志文件的天数
// 返回日志文件路径
func InitLoggerWithFileAndRetention(logDir string, keepDays int) (string, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}
	if keepDays <= 0 {
		keepDays = 3
	}

	hook := &FileHook{
		dir:      logDir,
		keepDays: keepDays,
		formatter: &logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  time.DateTime,
			DisableColors:    true, // 文件输出不需要颜色
			CallerPrettyfier: prettyCaller,
		},
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if err := hook.rotate(time.Now()); err != nil {
		return "", err
	}

	activeHookMu.Lock()
	if activeHook != nil {
		activeHook.Close()
	}
	activeHook = hook
	activeHookMu.Unlock()

	logrus.AddHook(hook)
	go hook.run()

	// 使用 fmt 输出到标准错误，避免触发 logrus
	path := hook.Path()
	fmt.Fprintf(os.Stderr, "Logging to file: %s (keeping %d days of logs)\n", path, keepDays)
	return path, nil
}

// GetLogFilePath 获取当前日志文件路径
func GetLogFilePath() string {
	activeHookMu.Lock()
	defer activeHookMu.Unlock()
	if activeHook == nil {
		return ""
	}
	return activeHook.Path()
}

// CloseLogFile 关闭日志文件
func CloseLogFile() error {
	activeHookMu.Lock()
	defer activeHookMu.Unlock()
	if activeHook == nil {
		return nil
	}
	err := activeHook.Close()
	activeHook = nil
	return err
}
