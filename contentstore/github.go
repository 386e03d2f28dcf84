package contentstore

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v60/github"
	pkgerrors "github.com/pkg/errors"
	"github.com/weixuan0110/ctfbot/retry"
	"golang.org/x/oauth2"
)

// contentsAPI is the subset of the go-github repositories service used by GitHub
type contentsAPI interface {
	GetContents(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentGetOptions) (*github.RepositoryContent, []*github.RepositoryContent, *github.Response, error)
	CreateFile(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentFileOptions) (*github.RepositoryContentResponse, *github.Response, error)
	UpdateFile(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentFileOptions) (*github.RepositoryContentResponse, *github.Response, error)
}

// GitHub implements Store with the contents API of a GitHub repository
type GitHub struct {
	client  *github.Client
	api     contentsAPI
	owner   string
	repo    string
	branch  string
	timeout time.Duration
	policy  retry.Policy
}

// GitHubOption defines an option for a GitHub store
type GitHubOption func(g *GitHub) (err error)

// OptionBranch sets the branch files are read from and committed to. Defaults to main
func OptionBranch(branch string) GitHubOption {
	return func(g *GitHub) (err error) {
		g.branch = branch
		return nil
	}
}

// OptionTimeout sets the timeout of every call to the API. Defaults to 15 seconds
func OptionTimeout(timeout time.Duration) GitHubOption {
	return func(g *GitHub) (err error) {
		g.timeout = timeout
		return nil
	}
}

// OptionRetryPolicy sets the retry policy of reads and folder creations. Defaults to a single attempt
func OptionRetryPolicy(p retry.Policy) GitHubOption {
	return func(g *GitHub) (err error) {
		g.policy = p
		return nil
	}
}

// OptionBaseURL sets the base url of the API, for GitHub Enterprise servers or tests
func OptionBaseURL(baseURL string) GitHubOption {
	return func(g *GitHub) (err error) {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL = baseURL + "/"
		}

		g.client.BaseURL, err = url.Parse(baseURL)
		return err
	}
}

// NewGitHub returns a new GitHub store for the owner/repo repository authenticated with token
func NewGitHub(ctx context.Context, token string, owner string, repo string, options ...GitHubOption) (g *GitHub, err error) {
	g = new(GitHub)
	g.client = github.NewClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})))
	g.api = g.client.Repositories
	g.owner = owner
	g.repo = repo
	g.branch = "main"
	g.timeout = 15 * time.Second
	g.policy = retry.None

	for _, opt := range options {
		if err = opt(g); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// EnsureFolder creates the placeholder file of the folder. A folder whose placeholder already
// exists is reported by the API as unprocessable which is treated as success
func (g *GitHub) EnsureFolder(ctx context.Context, path string) (err error) {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(createFolderMessage(path)),
		Content: []byte{},
		Branch:  github.String(g.branch),
	}

	err = retry.Do(ctx, g.policy, func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		_, resp, err := g.api.CreateFile(cctx, g.owner, g.repo, placeholderPath(path), opts)
		if resp != nil && resp.StatusCode == http.StatusUnprocessableEntity {
			return nil
		}

		return classify(err)
	})

	return pkgerrors.Wrapf(err, "failed to create folder [%s]", path)
}

// GetFile returns the decoded content and the sha of the file at path or ErrNotFound
func (g *GitHub) GetFile(ctx context.Context, path string) (f File, err error) {
	var content *github.RepositoryContent
	err = retry.Do(ctx, g.policy, func(ctx context.Context) (err error) {
		cctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		content, _, _, err = g.api.GetContents(cctx, g.owner, g.repo, path, &github.RepositoryContentGetOptions{Ref: g.branch})
		return classify(err)
	})
	if err != nil {
		return f, pkgerrors.Wrapf(err, "failed to get file [%s]", path)
	}

	if content == nil {
		return f, pkgerrors.Errorf("path [%s] is a directory", path)
	}

	f.Content, err = content.GetContent()
	if err != nil {
		return f, pkgerrors.Wrapf(err, "failed to decode content of [%s]", path)
	}
	f.Revision = content.GetSHA()

	return f, nil
}

// PutFile creates or updates the file at path. Writes are attempted once
func (g *GitHub) PutFile(ctx context.Context, path string, content string, revision string) (err error) {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(commitMessage(path, revision)),
		Content: []byte(content),
		Branch:  github.String(g.branch),
	}

	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if revision == "" {
		_, _, err = g.api.CreateFile(cctx, g.owner, g.repo, path, opts)
	} else {
		opts.SHA = github.String(revision)
		_, _, err = g.api.UpdateFile(cctx, g.owner, g.repo, path, opts)
	}

	return pkgerrors.Wrapf(translate(err), "failed to put file [%s]", path)
}

// translate maps API errors to the package errors
func translate(err error) error {
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		switch errResp.Response.StatusCode {
		case http.StatusNotFound:
			return pkgerrors.Wrap(ErrNotFound, err.Error())
		case http.StatusConflict:
			return pkgerrors.Wrap(ErrConflict, err.Error())
		}
	}

	return err
}

// classify translates err and marks it as permanent unless it's worth retrying
func classify(err error) error {
	if err == nil {
		return nil
	}

	err = translate(err)
	if isTransient(err) {
		return err
	}

	return retry.Permanent(err)
}

// isTransient returns true for server side errors and network failures
func isTransient(err error) bool {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, context.Canceled) {
		return false
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return false
	}

	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		return errResp.Response.StatusCode >= http.StatusInternalServerError
	}

	return true
}
