package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// JSONStore keeps every collection as one pretty-printed JSON object in
// <dir>/<collection>.json. Each write rewrites the whole document.
type JSONStore struct {
	dir string
	log *zap.Logger

	mu          sync.Mutex
	locks       map[string]*sync.Mutex
	quarantined map[string]bool
}

func NewJSONStore(dir string, log *zap.Logger) (*JSONStore, error) {
	if dir == "" {
		dir = "data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &JSONStore{
		dir:         dir,
		log:         log.Named("store.json"),
		locks:       make(map[string]*sync.Mutex),
		quarantined: make(map[string]bool),
	}, nil
}

func (s *JSONStore) collectionLock(collection string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[collection]
	if !ok {
		l = &sync.Mutex{}
		s.locks[collection] = l
	}
	return l
}

func (s *JSONStore) path(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

// ErrCorruptCollection is returned by writes when the collection document
// exists but cannot be parsed. The document is left in place.
var ErrCorruptCollection = errors.New("corrupt collection document")

// load reads a missing or empty document as empty. Any other read or parse
// failure is returned so writers never replace a document they could not read.
func (s *JSONStore) load(collection string) (map[string]json.RawMessage, error) {
	doc := make(map[string]json.RawMessage)
	data, err := os.ReadFile(s.path(collection))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return doc, nil
		}
		return nil, fmt.Errorf("read collection %s: %w", collection, err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		s.quarantine(collection, data)
		return nil, fmt.Errorf("%w %s: %v", ErrCorruptCollection, collection, err)
	}
	return doc, nil
}

// quarantine keeps a copy of an unreadable document next to the original.
func (s *JSONStore) quarantine(collection string, data []byte) {
	s.mu.Lock()
	done := s.quarantined[collection]
	s.quarantined[collection] = true
	s.mu.Unlock()
	if done {
		return
	}
	name := fmt.Sprintf("%s.corrupt-%d", s.path(collection), time.Now().Unix())
	if err := os.WriteFile(name, data, 0o644); err != nil {
		s.log.Error("copy corrupt collection failed", zap.String("collection", collection), zap.Error(err))
		return
	}
	s.log.Error("corrupt collection copied aside", zap.String("collection", collection), zap.String("copy", name))
}

// read is load for readers: failures are logged and read as empty.
func (s *JSONStore) read(collection string) map[string]json.RawMessage {
	doc, err := s.load(collection)
	if err != nil {
		s.log.Error("read collection failed, treating as empty", zap.String("collection", collection), zap.Error(err))
		return make(map[string]json.RawMessage)
	}
	return doc
}

func (s *JSONStore) save(collection string, doc map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, collection+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path(collection)); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func (s *JSONStore) Get(_ context.Context, collection, key string) (json.RawMessage, error) {
	l := s.collectionLock(collection)
	l.Lock()
	defer l.Unlock()

	v, ok := s.read(collection)[key]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (s *JSONStore) Put(_ context.Context, collection, key string, value json.RawMessage) error {
	l := s.collectionLock(collection)
	l.Lock()
	defer l.Unlock()

	doc, err := s.load(collection)
	if err != nil {
		s.log.Error("write refused, collection unreadable", zap.String("collection", collection), zap.String("key", key), zap.Error(err))
		return err
	}
	doc[key] = value
	if err := s.save(collection, doc); err != nil {
		s.log.Error("write collection failed", zap.String("collection", collection), zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

func (s *JSONStore) Delete(_ context.Context, collection, key string) error {
	l := s.collectionLock(collection)
	l.Lock()
	defer l.Unlock()

	doc, err := s.load(collection)
	if err != nil {
		s.log.Error("delete refused, collection unreadable", zap.String("collection", collection), zap.String("key", key), zap.Error(err))
		return err
	}
	if _, ok := doc[key]; !ok {
		return nil
	}
	delete(doc, key)
	if err := s.save(collection, doc); err != nil {
		s.log.Error("write collection failed", zap.String("collection", collection), zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

func (s *JSONStore) GetAll(_ context.Context, collection string) (map[string]json.RawMessage, error) {
	l := s.collectionLock(collection)
	l.Lock()
	defer l.Unlock()
	return s.read(collection), nil
}

func (s *JSONStore) Close() error {
	return nil
}
