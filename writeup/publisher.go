package writeup

import (
	"context"
	"errors"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/weixuan0110/ctfbot/contentstore"
	"github.com/weixuan0110/ctfbot/slog"
)

// Outcome is the result of publishing a writeup
type Outcome int

// Publishing outcomes
const (
	// Created means the file didn't exist and was created
	Created Outcome = iota
	// Updated means the file existed with a different content and was overwritten
	Updated
	// Exists means the file already had the same content and nothing was written
	Exists
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Exists:
		return "exists"
	}

	return "unknown"
}

// Result holds the path a writeup was published at and the outcome of the publication
type Result struct {
	Path    string
	Outcome Outcome
}

// Publisher writes writeups to a content store under a parent folder
type Publisher struct {
	store  contentstore.Store
	parent string
	logger slog.Logger
}

// NewPublisher returns a new Publisher writing to store under the parent folder
func NewPublisher(store contentstore.Store, parent string, logger slog.Logger) (p *Publisher) {
	p = new(Publisher)
	p.store = store
	p.parent = parent
	p.logger = logger

	return p
}

// Publish stores the record of author for the given year. The file is created when absent, left
// untouched when its trimmed content is the same and updated with its current revision otherwise
func (p *Publisher) Publish(ctx context.Context, year int, r Record, author string) (res Result, err error) {
	res.Path, err = Path(p.parent, year, r)
	if err != nil {
		return res, err
	}

	folder, err := Folder(p.parent, year, r.CTF)
	if err != nil {
		return res, err
	}

	for _, f := range []string{p.parent, folder} {
		if err = p.store.EnsureFolder(ctx, f); err != nil {
			return res, err
		}
	}

	content := Content(r, author)

	existing, err := p.store.GetFile(ctx, res.Path)
	if errors.Is(err, contentstore.ErrNotFound) {
		p.logger.Debugf("Writeup [%s] does not exist, creating it", res.Path)
		if err = p.store.PutFile(ctx, res.Path, content, ""); err != nil {
			return res, err
		}

		res.Outcome = Created
		return res, nil
	} else if err != nil {
		return res, err
	}

	if strings.TrimSpace(existing.Content) == strings.TrimSpace(content) {
		p.logger.Debugf("Writeup [%s] already exists with the same content, skipping", res.Path)
		res.Outcome = Exists
		return res, nil
	}

	p.logger.Debugf("Writeup [%s] exists with a different content, updating revision [%s]", res.Path, existing.Revision)
	if err = p.store.PutFile(ctx, res.Path, content, existing.Revision); err != nil {
		return res, pkgerrors.Wrapf(err, "failed to update writeup [%s]", res.Path)
	}

	res.Outcome = Updated
	return res, nil
}
