package contentstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// InMemory implements Store with a map. It follows the same revision rules as the other stores and
// is meant for tests and dry runs
type InMemory struct {
	mu    sync.RWMutex
	files map[string]string
}

// NewInMemory returns a new empty InMemory store
func NewInMemory() (im *InMemory) {
	im = new(InMemory)
	im.files = make(map[string]string)

	return im
}

// EnsureFolder stores the folder's placeholder file if it doesn't exist
func (im *InMemory) EnsureFolder(ctx context.Context, path string) (err error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	key := placeholderPath(path)
	if _, ok := im.files[key]; !ok {
		im.files[key] = ""
	}

	return nil
}

// GetFile returns the file at path or ErrNotFound
func (im *InMemory) GetFile(ctx context.Context, path string) (f File, err error) {
	im.mu.RLock()
	defer im.mu.RUnlock()

	content, ok := im.files[path]
	if !ok {
		return f, errors.Wrapf(ErrNotFound, "failed to get file [%s]", path)
	}

	return File{Content: content, Revision: revisionOf(content)}, nil
}

// PutFile creates or updates the file at path
func (im *InMemory) PutFile(ctx context.Context, path string, content string, revision string) (err error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	current, exists := im.files[path]
	if (revision == "" && exists) || (revision != "" && (!exists || revisionOf(current) != revision)) {
		return errors.Wrapf(ErrConflict, "failed to put file [%s] with revision [%s]", path, revision)
	}

	im.files[path] = content
	return nil
}

// Paths returns the sorted paths of the stored files, placeholders excluded
func (im *InMemory) Paths() (paths []string) {
	im.mu.RLock()
	defer im.mu.RUnlock()

	paths = make([]string, 0)
	for p := range im.files {
		if !strings.HasSuffix(p, "/"+PlaceholderFile) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	return paths
}

// Folders returns the sorted paths of the ensured folders
func (im *InMemory) Folders() (folders []string) {
	im.mu.RLock()
	defer im.mu.RUnlock()

	folders = make([]string, 0)
	for p := range im.files {
		if strings.HasSuffix(p, "/"+PlaceholderFile) {
			folders = append(folders, strings.TrimSuffix(p, "/"+PlaceholderFile))
		}
	}
	sort.Strings(folders)

	return folders
}
