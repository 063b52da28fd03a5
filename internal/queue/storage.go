package queue

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// ErrEmptySlot is returned when trying to access a slot with an empty name.
var ErrEmptySlot = errors.New("empty slot name")

// Storage is the durable slot store backing the queue. Each slot holds one
// serialized document. A missing slot reads as (nil, nil), not an error.
type Storage interface {
	Read(slot string) ([]byte, error)
	Write(slot string, data []byte) error
	Delete(slot string) error
}

// MemStorage provides an in-memory Storage implementation. It is used in
// tests and works as a volatile fallback.
type MemStorage struct {
	mu sync.Mutex
	m  map[string][]byte
}

// NewMemStorage instantiates a new MemStorage with no slots.
func NewMemStorage() *MemStorage {
	return &MemStorage{
		m: map[string][]byte{},
	}
}

func (s *MemStorage) Read(slot string) ([]byte, error) {
	if slot == "" {
		return nil, ErrEmptySlot
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.m[slot]
	if !ok {
		return nil, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (s *MemStorage) Write(slot string, data []byte) error {
	if slot == "" {
		return ErrEmptySlot
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.m[slot] = cp
	return nil
}

func (s *MemStorage) Delete(slot string) error {
	if slot == "" {
		return ErrEmptySlot
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, slot)
	return nil
}

// FileStorage persists each slot as one JSON file under a directory, so the
// queue survives process restarts.
type FileStorage struct {
	dir string
}

// NewFileStorage creates the directory if needed and returns a FileStorage
// rooted at it.
func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStorage{dir: dir}, nil
}

func (s *FileStorage) path(slot string) string {
	return filepath.Join(s.dir, slot+".json")
}

func (s *FileStorage) Read(slot string) ([]byte, error) {
	if slot == "" {
		return nil, ErrEmptySlot
	}
	data, err := os.ReadFile(s.path(slot))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Write replaces the slot content. The write goes through a temp file and a
// rename so a crash mid-write cannot leave a truncated slot behind.
func (s *FileStorage) Write(slot string, data []byte) error {
	if slot == "" {
		return ErrEmptySlot
	}
	tmp, err := os.CreateTemp(s.dir, slot+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path(slot))
}

func (s *FileStorage) Delete(slot string) error {
	if slot == "" {
		return ErrEmptySlot
	}
	err := os.Remove(s.path(slot))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
