package writeup

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnsafePath is returned when a computed path escapes the writeups folder
var ErrUnsafePath = errors.New("path traversal detected")

// Normalize lowercases s and strips everything but ascii letters and digits
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}

	return b.String()
}

// FileName returns "<category>-<challenge>.md" with both parts normalized. A part left empty by
// normalization makes the record malformed
func FileName(r Record) (name string, err error) {
	category := Normalize(r.Category)
	challenge := Normalize(r.ChallengeName)

	invalid := make([]string, 0)
	if category == "" {
		invalid = append(invalid, CategoryKey)
	}
	if challenge == "" {
		invalid = append(invalid, ChallengeNameKey)
	}

	if len(invalid) > 0 {
		return "", &MalformedError{Reason: fmt.Sprintf("%s must contain letters or digits", strings.Join(invalid, " and "))}
	}

	return fmt.Sprintf("%s-%s.md", category, challenge), nil
}

// Folder returns "<parent>/<year>/<ctf>", failing with ErrUnsafePath if ctf escapes the parent folder
func Folder(parent string, year int, ctf string) (folder string, err error) {
	return safeJoin(parent, strconv.Itoa(year), ctf)
}

// Path returns the full path of the record's file: "<parent>/<year>/<ctf>/<category>-<challenge>.md"
func Path(parent string, year int, r Record) (p string, err error) {
	if strings.TrimSpace(r.CTF) == "" {
		return "", &MalformedError{Missing: []string{CTFKey}}
	}

	folder, err := Folder(parent, year, r.CTF)
	if err != nil {
		return "", err
	}

	name, err := FileName(r)
	if err != nil {
		return "", err
	}

	return safeJoin(folder, name)
}

// Content returns the stored content of a record: its body followed by the author attribution
func Content(r Record, author string) string {
	return fmt.Sprintf("%s\n\nSolved by: %s", r.Body, author)
}

// safeJoin joins elems to base and makes sure the result stays under base
func safeJoin(base string, elems ...string) (joined string, err error) {
	cleanBase := path.Clean(base)
	joined = path.Join(append([]string{cleanBase}, elems...)...)

	if cleanBase == "." {
		if joined == "." || joined == ".." || strings.HasPrefix(joined, "../") || path.IsAbs(joined) {
			return "", errors.Wrapf(ErrUnsafePath, "[%s] isn't a relative path", joined)
		}

		return joined, nil
	}

	if joined == cleanBase || !strings.HasPrefix(joined, cleanBase+"/") {
		return "", errors.Wrapf(ErrUnsafePath, "[%s] isn't under [%s]", joined, cleanBase)
	}

	return joined, nil
}
