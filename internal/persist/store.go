package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pkt.systems/ait/schema"
	"pkt.systems/pslog"
)

// WorkspaceFile is the name of the open-tab snapshot inside the state dir.
const WorkspaceFile = "tabs.json"

// Store persists the open-tab workspace to disk.
type Store struct {
	path string
	log  pslog.Logger
}

// NewStore constructs a workspace store in the given state directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a workspace store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, WorkspaceFile)
	if logger != nil {
		logger = logger.With("workspace", path)
	}
	return &Store{path: path, log: logger}, nil
}

// Load reads the last saved workspace. ok is false when none was saved.
func (s *Store) Load() (snapshot schema.TabsSnapshot, ok bool, err error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.debug("workspace load miss")
			return schema.TabsSnapshot{}, false, nil
		}
		s.warn("workspace load failed", err)
		return schema.TabsSnapshot{}, false, err
	}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		s.warn("workspace load failed", err)
		return schema.TabsSnapshot{}, false, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if snapshot.ActiveIdx < 0 || snapshot.ActiveIdx >= len(snapshot.Profiles) {
		snapshot.ActiveIdx = 0
	}
	s.debug("workspace load ok", "tabs", len(snapshot.Profiles))
	return snapshot, true, nil
}

// Save replaces the workspace snapshot atomically.
func (s *Store) Save(snapshot schema.TabsSnapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		s.warn("workspace save failed", err)
		return err
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		s.warn("workspace save failed", err)
		return err
	}
	if s.log != nil {
		s.log.Trace("workspace save ok", "tabs", len(snapshot.Profiles))
	}
	return nil
}

// Clear forgets the saved workspace.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) debug(msg string, kv ...any) {
	if s.log != nil {
		s.log.Debug(msg, kv...)
	}
}

func (s *Store) warn(msg string, err error) {
	if s.log != nil {
		s.log.Warn(msg, "err", err)
	}
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "tabs-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
