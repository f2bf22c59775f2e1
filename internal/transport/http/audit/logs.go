package audit

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// LogEntry 单条运行日志
type LogEntry struct {
	Time    time.Time         `json:"time"`
	Level   string            `json:"level"`
	Message string            `json:"message"`
	Func    string            `json:"func,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// GetLogsResponse 运行日志查询结果
type GetLogsResponse struct {
	Logs  []*LogEntry `json:"logs"`
	Total int         `json:"total"`
}

// logrus 文本格式：time="2025-12-23 15:40:32" level=info msg="xxx" func=... key=value
var (
	linePattern  = regexp.MustCompile(`^time="([^"]+)"\s+level=(\w+)\s+msg="((?:[^"\\]|\\.)*)"\s*(.*)$`)
	fieldPattern = regexp.MustCompile(`(\w[\w.]*)=("(?:[^"\\]|\\.)*"|\S+)`)
)

// readLogs 按时间倒序返回日志，level 为空表示不过滤
func readLogs(path string, limit, offset int, level string) ([]*LogEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	var all []*LogEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		entry := parseLine(strings.TrimSpace(scanner.Text()))
		if entry == nil {
			continue
		}
		if level != "" && !strings.EqualFold(entry.Level, level) {
			continue
		}
		all = append(all, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if offset >= len(all) {
		return []*LogEntry{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func parseLine(line string) *LogEntry {
	if line == "" {
		return nil
	}
	m := linePattern.FindStringSubmatch(line)
	if m == nil {
		return &LogEntry{Level: "unknown", Message: line}
	}

	entry := &LogEntry{
		Level:   strings.ToLower(m[2]),
		Message: strings.ReplaceAll(m[3], `\"`, `"`),
	}
	if t, err := time.ParseInLocation(time.DateTime, m[1], time.Local); err == nil {
		entry.Time = t
	}
	for _, f := range fieldPattern.FindAllStringSubmatch(m[4], -1) {
		key, val := f[1], strings.Trim(f[2], `"`)
		if key == "func" {
			entry.Func = val
			continue
		}
		if entry.Fields == nil {
			entry.Fields = make(map[string]string)
		}
		entry.Fields[key] = val
	}
	return entry
}
