package cache

import (
	"bytes"
	"context"
	"errors"
	"sort"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBStore stores entries in a LevelDB database on disk.
//
// Layout:
//
//	n:<namespace>            namespace marker
//	e:<namespace>\x00<key>   gob encoded entry
type LevelDBStore struct {
	db *leveldb.DB
}

const keySep = "\x00"

func NewLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBStore{db: db}, nil
}

func namespaceKey(namespace string) []byte {
	return []byte("n:" + namespace)
}

func entryPrefix(namespace string) []byte {
	return []byte("e:" + namespace + keySep)
}

func entryKey(namespace, key string) []byte {
	return append(entryPrefix(namespace), key...)
}

func (l *LevelDBStore) Open(_ context.Context, namespace string) error {
	return l.db.Put(namespaceKey(namespace), nil, nil)
}

func (l *LevelDBStore) Get(_ context.Context, namespace, key string) (Entry, error) {
	b, err := l.db.Get(entryKey(namespace, key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	return decodeEntry(b)
}

func (l *LevelDBStore) Put(_ context.Context, namespace string, entry Entry) error {
	b, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Put(namespaceKey(namespace), nil)
	batch.Put(entryKey(namespace, entry.URL), b)
	return l.db.Write(batch, nil)
}

func (l *LevelDBStore) Delete(_ context.Context, namespace, key string) error {
	return l.db.Delete(entryKey(namespace, key), nil)
}

func (l *LevelDBStore) Namespaces(_ context.Context) ([]string, error) {
	it := l.db.NewIterator(util.BytesPrefix([]byte("n:")), nil)
	defer it.Release()

	out := make([]string, 0)
	for it.Next() {
		out = append(out, string(bytes.TrimPrefix(it.Key(), []byte("n:"))))
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (l *LevelDBStore) Keys(_ context.Context, namespace string) ([]string, error) {
	prefix := entryPrefix(namespace)
	it := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()

	out := make([]string, 0)
	for it.Next() {
		out = append(out, string(bytes.TrimPrefix(it.Key(), prefix)))
	}
	return out, it.Error()
}

func (l *LevelDBStore) DeleteNamespace(_ context.Context, namespace string) error {
	it := l.db.NewIterator(util.BytesPrefix(entryPrefix(namespace)), nil)
	batch := new(leveldb.Batch)
	for it.Next() {
		// iterator keys are only valid until the next call
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return err
	}
	batch.Delete(namespaceKey(namespace))
	return l.db.Write(batch, nil)
}

func (l *LevelDBStore) Close() error {
	return l.db.Close()
}
