package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerWithFile(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")

	logPath, err := InitLoggerWithFileAndRetention(logDir, 3)
	require.NoError(t, err)
	defer CloseLogFile()

	expected := "opcgw-" + time.Now().Format("20060102") + ".log"
	assert.Equal(t, expected, filepath.Base(logPath))
	assert.Equal(t, logPath, GetLogFilePath())

	logrus.Info("gateway log line 1")
	logrus.Info("gateway log line 2")

	info, err := os.Stat(logPath)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}

func TestFileHookRotate(t *testing.T) {
	dir := t.TempDir()
	hook := &FileHook{dir: dir, keepDays: 3, formatter: &logrus.TextFormatter{DisableColors: true}}
	require.NoError(t, hook.rotate(time.Date(2026, 1, 1, 10, 0, 0, 0, time.Local)))
	first := hook.Path()

	// 同一天不轮换
	require.NoError(t, hook.rotate(time.Date(2026, 1, 1, 23, 0, 0, 0, time.Local)))
	assert.Equal(t, first, hook.Path())

	require.NoError(t, hook.rotate(time.Date(2026, 1, 2, 0, 1, 0, 0, time.Local)))
	assert.Equal(t, filepath.Join(dir, "opcgw-20260102.log"), hook.Path())
	assert.FileExists(t, first)
	require.NoError(t, hook.Close())
	assert.Empty(t, hook.Path())
}

func TestFileHookCleanup(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)

	files := map[string]bool{
		"opcgw-20260301.log": false, // 过期
		"opcgw-20260306.log": false, // 过期
		"opcgw-20260307.log": true,
		"opcgw-20260310.log": true,
		"other-20260101.log": true, // 非日志文件
		"opcgw-bad.log":      true, // 格式不符
	}
	for name := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	hook := &FileHook{dir: dir, keepDays: 3}
	require.NoError(t, hook.cleanup(now))

	for name, kept := range files {
		_, err := os.Stat(filepath.Join(dir, name))
		if kept {
			assert.NoError(t, err, name)
		} else {
			assert.True(t, os.IsNotExist(err), name)
		}
	}
}

func TestInitLoggerLevel(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)

	InitLogger("debug")
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())

	InitLogger("nonsense")
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
}
