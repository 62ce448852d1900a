package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ReadRecords loads every record under dir in creation order. A missing
// directory yields no records.
func ReadRecords(dir string) ([]LoadedRecord, error) {
	keys, err := listKeys(dir)
	if err != nil {
		return nil, err
	}

	out := make([]LoadedRecord, 0, len(keys))
	for _, key := range keys {
		rec, err := ReadRecord(filepath.Join(dir, recordFileName(key)))
		if err != nil {
			return nil, err
		}
		rec.Key = key
		out = append(out, rec)
	}
	return out, nil
}

// ReadRecent loads at most limit of the newest records, newest first.
func ReadRecent(dir string, limit int) ([]LoadedRecord, error) {
	keys, err := listKeys(dir)
	if err != nil {
		return nil, err
	}

	out := make([]LoadedRecord, 0, limit)
	for i := len(keys) - 1; i >= 0 && len(out) < limit; i-- {
		rec, err := ReadRecord(filepath.Join(dir, recordFileName(keys[i])))
		if err != nil {
			return nil, err
		}
		rec.Key = keys[i]
		out = append(out, rec)
	}
	return out, nil
}

// ReadRecord decodes a single record file.
func ReadRecord(path string) (LoadedRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LoadedRecord{}, fmt.Errorf("read record: %w", err)
	}

	var rec StoredRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return LoadedRecord{}, fmt.Errorf("decode record %s: %w", filepath.Base(path), err)
	}

	loaded := LoadedRecord{Path: path, Record: rec}
	if key, ok := keyFromFileName(filepath.Base(path)); ok {
		loaded.Key = key
	}
	return loaded, nil
}

func listKeys(dir string) ([]RecordKey, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list records: %w", err)
	}

	keys := make([]RecordKey, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if key, ok := keyFromFileName(e.Name()); ok {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Name < keys[j].Name })
	return keys, nil
}
