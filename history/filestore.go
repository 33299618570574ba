package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	sessionPrefix = "session-"
	sessionSuffix = ".json"
)

type fileStore struct {
	root string
}

// NewFileStore creates a Store backed by the filesystem. Each session is one
// JSON file under root, rewritten atomically on save.
func NewFileStore(root string) Store {
	return &fileStore{root: root}
}

func (s *fileStore) Sessions(_ context.Context) ([]int, error) {
	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	var ids []int
	for _, d := range dirEntries {
		name := d.Name()
		if d.IsDir() || !strings.HasPrefix(name, sessionPrefix) || !strings.HasSuffix(name, sessionSuffix) {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, sessionPrefix), sessionSuffix))
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func (s *fileStore) Load(_ context.Context, session int) ([]Entry, error) {
	data, err := os.ReadFile(s.path(session))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %d", ErrSessionNotFound, session)
		}
		return nil, fmt.Errorf("%w: session %d: %v", ErrLoadFailed, session, err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: session %d: %v", ErrLoadFailed, session, err)
	}
	return entries, nil
}

func (s *fileStore) Save(_ context.Context, session int, entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("%w: session %d: %v", ErrSaveFailed, session, err)
	}

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("%w: session %d: %v", ErrSaveFailed, session, err)
	}

	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: session %d: %v", ErrSaveFailed, session, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: session %d: %v", ErrSaveFailed, session, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: session %d: %v", ErrSaveFailed, session, err)
	}

	if err := os.Rename(tmpName, s.path(session)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: session %d: %v", ErrSaveFailed, session, err)
	}
	return nil
}

func (s *fileStore) path(session int) string {
	return filepath.Join(s.root, fmt.Sprintf("%s%06d%s", sessionPrefix, session, sessionSuffix))
}
