package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// maxKeyAttempts bounds retries when another writer already owns a key.
const maxKeyAttempts = 8

// FileStore writes one indented JSON document per accepted record.
type FileStore struct {
	dir  string
	keys *KeyGen
}

// NewFileStore builds a store rooted at dir. The directory is created lazily.
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = "logs"
	}
	return &FileStore{dir: dir, keys: NewKeyGen()}
}

// Dir returns the record directory.
func (s *FileStore) Dir() string { return s.dir }

// Name implements RecordSink naming for log lines.
func (s *FileStore) Name() string { return "file" }

// Persist allocates a key and writes rec under it. The returned key is valid
// even when err is non-nil so callers can still acknowledge the message.
func (s *FileStore) Persist(ctx context.Context, rec StoredRecord) (RecordKey, error) {
	key := s.keys.Next()
	if err := ctx.Err(); err != nil {
		return key, err
	}

	doc, err := encodeRecord(rec)
	if err != nil {
		return key, fmt.Errorf("encode record: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return key, fmt.Errorf("create record dir: %w", err)
	}

	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		err = s.write(key, doc)
		if !errors.Is(err, fs.ErrExist) {
			return key, err
		}
		key = s.keys.Next()
	}
	return key, fmt.Errorf("write record: no free key after %d attempts", maxKeyAttempts)
}

// Path returns the file path a key maps to.
func (s *FileStore) Path(key RecordKey) string {
	return filepath.Join(s.dir, recordFileName(key))
}

func (s *FileStore) write(key RecordKey, doc []byte) error {
	path := s.Path(key)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return err
		}
		return fmt.Errorf("create record file: %w", err)
	}

	if _, err := f.Write(doc); err != nil {
		f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write record file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close record file: %w", err)
	}
	return nil
}

func encodeRecord(rec StoredRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
