/*
Package contentstore provides a file store abstraction over the remote repository where writeups are
published. A Store sees the repository as a flat set of slash-separated paths, each holding the content
of a file and a revision token that must be provided to overwrite it.

Three implementations are provided:
  - GitHub: the GitHub contents API through go-github, authenticated with an oauth2 token
  - LevelDB: a local leveldb database, useful to run the bot without a GitHub repository
  - InMemory: a map-backed store for tests

Example code:

	import (
		"github.com/weixuan0110/ctfbot/contentstore"
	)

	func main() {
		store := contentstore.NewGitHub(ctx, token, "owner", "writeups", contentstore.OptionBranch("main"))

		err := store.EnsureFolder(ctx, "writeups/2025")
		...
	}
*/
package contentstore

import (
	"context"
	"errors"
	"fmt"
)

const (
	// PlaceholderFile is the name of the empty file created to materialize a folder
	PlaceholderFile = ".gitkeep"
)

// ErrNotFound is returned by GetFile when no file exists at the path
var ErrNotFound = errors.New("file not found")

// ErrConflict is returned by PutFile when the revision doesn't match the current revision of the file
var ErrConflict = errors.New("revision conflict")

// File holds the content of a stored file and the revision token identifying that content
type File struct {
	Content  string
	Revision string
}

// Store is implemented by any value that can ensure folders exist and read and write files
type Store interface {
	// EnsureFolder makes sure the folder exists. Ensuring an existing folder is not an error
	EnsureFolder(ctx context.Context, path string) (err error)

	// GetFile returns the file at path or ErrNotFound
	GetFile(ctx context.Context, path string) (f File, err error)

	// PutFile creates the file when revision is empty or updates it when revision is the current revision
	PutFile(ctx context.Context, path string, content string, revision string) (err error)
}

// Closer is implemented by stores holding resources
type Closer interface {
	Close() (err error)
}

func placeholderPath(folder string) string {
	return fmt.Sprintf("%s/%s", folder, PlaceholderFile)
}

func createFolderMessage(path string) string {
	return fmt.Sprintf("Create folder: %s", path)
}

func commitMessage(path string, revision string) string {
	if revision == "" {
		return fmt.Sprintf("Add file: %s", path)
	}

	return fmt.Sprintf("Update file: %s", path)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
