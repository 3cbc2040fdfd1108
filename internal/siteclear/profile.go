package siteclear

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Profile is the leveldb database holding the persistent state of one
// origin: cookies, local storage, worker registrations and response caches.
//
// Key layout:
//
//	ck:<domain>\x00<path>\x00<name>   cookie
//	ls:<origin>\x00<key>              local storage item
//	sw:<id>                           worker registration
//	cn:<cache>                        named cache marker
//	ce:<cache>\x00<url>               cached response
//	cm:<cache>\x00<url>               cached response size/access meta
type Profile struct {
	db *leveldb.DB
}

// OpenProfile opens (creating if needed) the profile stored in dir.
func OpenProfile(dir string) (*Profile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open profile %s: %w", dir, err)
	}
	return &Profile{db: db}, nil
}

// OpenMemoryProfile opens a profile that lives only in memory.
func OpenMemoryProfile() (*Profile, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Profile{db: db}, nil
}

func (p *Profile) Close() error {
	return mapDBErr(p.db.Close())
}

func mapDBErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, leveldb.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, leveldb.ErrClosed):
		return ErrClosed
	}
	return err
}

func (p *Profile) get(key string) ([]byte, error) {
	b, err := p.db.Get([]byte(key), nil)
	return b, mapDBErr(err)
}

func (p *Profile) has(key string) (bool, error) {
	ok, err := p.db.Has([]byte(key), nil)
	return ok, mapDBErr(err)
}

func (p *Profile) write(batch *leveldb.Batch) error {
	return mapDBErr(p.db.Write(batch, nil))
}

// scan calls fn for every key under prefix until fn returns false. Keys are
// passed without the prefix.
func (p *Profile) scan(prefix string, fn func(key string, val []byte) bool) error {
	it := p.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer it.Release()
	for it.Next() {
		key := string(bytes.TrimPrefix(it.Key(), []byte(prefix)))
		if !fn(key, it.Value()) {
			break
		}
	}
	return mapDBErr(it.Error())
}

func (p *Profile) count(prefix string) (int, error) {
	n := 0
	err := p.scan(prefix, func(string, []byte) bool {
		n++
		return true
	})
	return n, err
}

// deletePrefix removes every key under prefix in a single batch.
func (p *Profile) deletePrefix(prefix string) (int, error) {
	batch := new(leveldb.Batch)
	err := p.scan(prefix, func(key string, _ []byte) bool {
		batch.Delete([]byte(prefix + key))
		return true
	})
	if err != nil {
		return 0, err
	}
	if batch.Len() == 0 {
		return 0, nil
	}
	return batch.Len(), p.write(batch)
}

// ---- encoding ----

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}

func init() {
	gob.Register(http.Header{})
}
