package storage

import (
	"sync"
	"testing"
	"time"
)

func TestFormatAndParseKey(t *testing.T) {
	at := time.Date(2025, 11, 6, 22, 30, 0, 123456789, time.UTC)
	key := FormatKey(at)
	if key != "20251106_223000_123456" {
		t.Fatalf("unexpected key %s", key)
	}

	back, err := ParseKey(key)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !back.Equal(at.Truncate(time.Microsecond)) {
		t.Fatalf("round trip mismatch: %s vs %s", back, at)
	}

	if _, err := ParseKey("garbage"); err == nil {
		t.Fatal("garbage key should not parse")
	}
}

func TestKeyGenFrozenClockStillUnique(t *testing.T) {
	frozen := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	g := &KeyGen{now: func() time.Time { return frozen }}

	prev := g.Next()
	for i := 0; i < 1000; i++ {
		next := g.Next()
		if next.Name <= prev.Name {
			t.Fatalf("keys must increase: %s then %s", prev.Name, next.Name)
		}
		prev = next
	}
}

func TestKeyGenClockGoingBackwards(t *testing.T) {
	times := []time.Time{
		time.Date(2025, 1, 1, 0, 0, 1, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	i := 0
	g := &KeyGen{now: func() time.Time { t := times[i]; i++; return t }}

	first := g.Next()
	second := g.Next()
	if second.Name <= first.Name {
		t.Fatalf("key went backwards: %s then %s", first.Name, second.Name)
	}
}

func TestKeyGenConcurrentUnique(t *testing.T) {
	g := NewKeyGen()
	const workers, per = 16, 250

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*per)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				k := g.Next()
				mu.Lock()
				seen[k.Name] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*per {
		t.Fatalf("expected %d unique keys, got %d", workers*per, len(seen))
	}
}
