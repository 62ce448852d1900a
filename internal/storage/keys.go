package storage

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	keyLayout    = "20060102_150405.000000"
	recordPrefix = "tv_"
	recordExt    = ".json"
)

// FormatKey renders t as a record key, e.g. 20251106_223000_123456.
func FormatKey(t time.Time) string {
	s := t.UTC().Format(keyLayout)
	return strings.Replace(s, ".", "_", 1)
}

// ParseKey is the inverse of FormatKey.
func ParseKey(name string) (time.Time, error) {
	idx := strings.LastIndex(name, "_")
	if idx < 0 {
		return time.Time{}, fmt.Errorf("record key %q: missing fraction", name)
	}
	t, err := time.Parse(keyLayout, name[:idx]+"."+name[idx+1:])
	if err != nil {
		return time.Time{}, fmt.Errorf("record key %q: %w", name, err)
	}
	return t.UTC(), nil
}

// KeyGen hands out strictly increasing microsecond keys. When the clock has
// not moved past the previous key the previous instant is bumped by 1µs.
type KeyGen struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewKeyGen builds a generator on the wall clock.
func NewKeyGen() *KeyGen {
	return &KeyGen{now: time.Now}
}

// Next allocates a new key.
func (g *KeyGen) Next() RecordKey {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := g.now().UTC().Truncate(time.Microsecond)
	if !t.After(g.last) {
		t = g.last.Add(time.Microsecond)
	}
	g.last = t
	return RecordKey{Name: FormatKey(t), At: t}
}

func recordFileName(key RecordKey) string {
	return recordPrefix + key.Name + recordExt
}

func keyFromFileName(name string) (RecordKey, bool) {
	if !strings.HasPrefix(name, recordPrefix) || !strings.HasSuffix(name, recordExt) {
		return RecordKey{}, false
	}
	stem := strings.TrimSuffix(strings.TrimPrefix(name, recordPrefix), recordExt)
	at, err := ParseKey(stem)
	if err != nil {
		return RecordKey{}, false
	}
	return RecordKey{Name: stem, At: at}, true
}
