package diagnostics

import "sync"

// StringTable 诊断信息引用的字符串表
// 同一请求内的多个条目可能并发写入
type StringTable struct {
	mu      sync.Mutex
	strings []string
	index   map[string]int32
}

// NewStringTable 创建空字符串表
func NewStringTable() *StringTable {
	return &StringTable{index: make(map[string]int32)}
}

// Intern 返回字符串在表中的下标，不存在时追加
func (t *StringTable) Intern(s string) int32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i, ok := t.index[s]; ok {
		return i
	}
	i := int32(len(t.strings))
	t.strings = append(t.strings, s)
	t.index[s] = i
	return i
}

// Strings 返回字符串表快照
func (t *StringTable) Strings() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, len(t.strings))
	copy(out, t.strings)
	return out
}

// Len 字符串数量
func (t *StringTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.strings)
}
