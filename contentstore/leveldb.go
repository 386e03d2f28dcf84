package contentstore

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	leveldberrors "github.com/syndtr/goleveldb/leveldb/errors"
)

// LevelDB implements Store on a local leveldb database. Files are keyed by path and their revision
// is the sha1 of their content
type LevelDB struct {
	Name     string
	database *leveldb.DB
	writes   sync.Mutex
}

// NewLevelDB instantiates and opens a new LevelDB store backed by a leveldb database named name under
// storagePath. If the leveldb database doesn't exist, one is created
func NewLevelDB(name string, storagePath string) (ldb *LevelDB, err error) {
	// Expand '~' as the full home directory path if appropriate
	path, err := homedir.Expand(storagePath)
	if err != nil {
		return nil, err
	}

	fullPath := filepath.Join(path, name)
	db, err := leveldb.OpenFile(fullPath, nil)

	if _, ok := err.(*leveldberrors.ErrCorrupted); ok {
		return nil, errors.Wrap(err, fmt.Sprintf("leveldb corrupted. Consider deleting [%s] and restarting if you don't mind losing published writeups", fullPath))
	} else if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("failed to open file with path [%s]", fullPath))
	}

	ldb = new(LevelDB)
	ldb.Name = name
	ldb.database = db

	return ldb, nil
}

// Close closes the LevelDB
func (ldb *LevelDB) Close() (err error) {
	return ldb.database.Close()
}

// EnsureFolder stores the folder's placeholder file if it doesn't exist
func (ldb *LevelDB) EnsureFolder(ctx context.Context, path string) (err error) {
	key := []byte(placeholderPath(path))

	exists, err := ldb.database.Has(key, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to create folder [%s]", path)
	}

	if exists {
		return nil
	}

	return errors.Wrapf(ldb.database.Put(key, []byte{}, nil), "failed to create folder [%s]", path)
}

// GetFile returns the file at path or ErrNotFound
func (ldb *LevelDB) GetFile(ctx context.Context, path string) (f File, err error) {
	value, err := ldb.database.Get([]byte(path), nil)
	if err == leveldb.ErrNotFound {
		return f, errors.Wrapf(ErrNotFound, "failed to get file [%s]", path)
	} else if err != nil {
		return f, errors.Wrapf(err, "failed to get file [%s]", path)
	}

	f.Content = string(value)
	f.Revision = revisionOf(f.Content)

	return f, nil
}

// PutFile creates or updates the file at path. Creating an existing file or updating with a stale
// revision fails with ErrConflict
func (ldb *LevelDB) PutFile(ctx context.Context, path string, content string, revision string) (err error) {
	ldb.writes.Lock()
	defer ldb.writes.Unlock()

	current, err := ldb.GetFile(ctx, path)
	exists := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	if (revision == "" && exists) || (revision != "" && (!exists || current.Revision != revision)) {
		return errors.Wrapf(ErrConflict, "failed to put file [%s] with revision [%s]", path, revision)
	}

	return errors.Wrapf(ldb.database.Put([]byte(path), []byte(content), nil), "failed to put file [%s]", path)
}

// Scan returns the content of every stored file keyed by path
func (ldb *LevelDB) Scan() (entries map[string]string, err error) {
	entries = map[string]string{}
	iter := ldb.database.NewIterator(nil, nil)
	for iter.Next() {
		entries[string(iter.Key())] = string(iter.Value())
	}

	iter.Release()
	err = iter.Error()

	return entries, err
}

func revisionOf(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}
