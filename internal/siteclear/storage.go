package siteclear

import (
	"sort"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
)

// LocalStore is origin-scoped key/value storage persisted in the profile.
type LocalStore struct {
	profile  *Profile
	prefix   string
	disabled bool
}

func NewLocalStore(p *Profile, origin string, disabled bool) *LocalStore {
	return &LocalStore{profile: p, prefix: "ls:" + origin + "\x00", disabled: disabled}
}

func (s *LocalStore) SetItem(key, value string) error {
	if s.disabled {
		return ErrStorageUnavailable
	}
	batch := new(leveldb.Batch)
	batch.Put([]byte(s.prefix+key), []byte(value))
	return s.profile.write(batch)
}

func (s *LocalStore) GetItem(key string) (string, error) {
	if s.disabled {
		return "", ErrStorageUnavailable
	}
	b, err := s.profile.get(s.prefix + key)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *LocalStore) RemoveItem(key string) error {
	if s.disabled {
		return ErrStorageUnavailable
	}
	batch := new(leveldb.Batch)
	batch.Delete([]byte(s.prefix + key))
	return s.profile.write(batch)
}

func (s *LocalStore) Keys() ([]string, error) {
	if s.disabled {
		return nil, ErrStorageUnavailable
	}
	var out []string
	err := s.profile.scan(s.prefix, func(key string, _ []byte) bool {
		out = append(out, key)
		return true
	})
	return out, err
}

func (s *LocalStore) Len() (int, error) {
	if s.disabled {
		return 0, ErrStorageUnavailable
	}
	return s.profile.count(s.prefix)
}

func (s *LocalStore) Clear() error {
	if s.disabled {
		return ErrStorageUnavailable
	}
	_, err := s.profile.deletePrefix(s.prefix)
	return err
}

// SessionStore is key/value storage that lives as long as the process, the
// way session storage lives as long as its tab.
type SessionStore struct {
	mu       sync.Mutex
	items    map[string]string
	disabled bool
}

func NewSessionStore(disabled bool) *SessionStore {
	return &SessionStore{items: map[string]string{}, disabled: disabled}
}

func (s *SessionStore) SetItem(key, value string) error {
	if s.disabled {
		return ErrStorageUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
	return nil
}

func (s *SessionStore) GetItem(key string) (string, error) {
	if s.disabled {
		return "", ErrStorageUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *SessionStore) RemoveItem(key string) error {
	if s.disabled {
		return ErrStorageUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

func (s *SessionStore) Keys() ([]string, error) {
	if s.disabled {
		return nil, ErrStorageUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.items))
	for k := range s.items {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (s *SessionStore) Len() (int, error) {
	if s.disabled {
		return 0, ErrStorageUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items), nil
}

func (s *SessionStore) Clear() error {
	if s.disabled {
		return ErrStorageUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = map[string]string{}
	return nil
}
