package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"repochat-be/pkg/apperror"
	"repochat-be/pkg/store"

	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

type GitHubOptions struct {
	DefaultBranch    string
	Extensions       []string
	MaxFileBytes     int
	FetchConcurrency int
}

// GitHubLoader reads every allow-listed blob of one branch of a repository.
type GitHubLoader struct {
	client *github.Client
	owner  string
	repo   string
	branch string
	opts   GitHubOptions
}

var _ Loader = &GitHubLoader{}

// NewGitHubClient authenticates with a static token when one is configured.
// Anonymous access works for public repositories at a lower rate limit.
func NewGitHubClient(ctx context.Context, token string) *github.Client {
	if token == "" {
		return github.NewClient(nil)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return github.NewClient(oauth2.NewClient(ctx, ts))
}

// ParseRepoRef splits "owner/name". A trailing ".git" and a github.com URL prefix are tolerated.
func ParseRepoRef(ref string) (owner, name string, err error) {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimPrefix(ref, "https://")
	ref = strings.TrimPrefix(ref, "github.com/")
	ref = strings.TrimSuffix(strings.TrimSuffix(ref, "/"), ".git")

	parts := strings.Split(ref, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", apperror.IngestionFailed(fmt.Sprintf("invalid repository reference %q, expected owner/name", ref), nil)
	}
	return parts[0], parts[1], nil
}

func NewGitHubLoader(client *github.Client, repoRef, branch string, opts GitHubOptions) (*GitHubLoader, error) {
	owner, name, err := ParseRepoRef(repoRef)
	if err != nil {
		return nil, err
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 8
	}
	return &GitHubLoader{
		client: client,
		owner:  owner,
		repo:   name,
		branch: strings.TrimSpace(branch),
		opts:   opts,
	}, nil
}

func (l *GitHubLoader) Repository() string {
	return l.owner + "/" + l.repo
}

func (l *GitHubLoader) Load(ctx context.Context) ([]store.Document, error) {
	branch, err := l.resolveBranch(ctx)
	if err != nil {
		return nil, err
	}

	tree, _, err := l.client.Git.GetTree(ctx, l.owner, l.repo, branch, true)
	if err != nil {
		return nil, l.wrap(fmt.Sprintf("list tree of %s@%s", l.Repository(), branch), err)
	}

	var entries []*github.TreeEntry
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" || !l.allowed(entry.GetPath()) {
			continue
		}
		if l.opts.MaxFileBytes > 0 && entry.GetSize() > l.opts.MaxFileBytes {
			continue
		}
		entries = append(entries, entry)
	}

	docs := make([]store.Document, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.FetchConcurrency)
	for i, entry := range entries {
		g.Go(func() error {
			raw, _, err := l.client.Git.GetBlobRaw(gctx, l.owner, l.repo, entry.GetSHA())
			if err != nil {
				return l.wrap("fetch "+entry.GetPath(), err)
			}
			content := string(raw)
			if strings.TrimSpace(content) == "" {
				return nil
			}
			docs[i] = store.Document{
				ID:      entry.GetSHA(),
				Content: content,
				Metadata: map[string]interface{}{
					store.MetaSource:     entry.GetPath(),
					store.MetaRepository: l.Repository(),
					store.MetaBranch:     branch,
				},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]store.Document, 0, len(docs))
	for _, doc := range docs {
		if doc.Content != "" {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (l *GitHubLoader) resolveBranch(ctx context.Context) (string, error) {
	if l.branch != "" {
		return l.branch, nil
	}

	repo, _, err := l.client.Repositories.Get(ctx, l.owner, l.repo)
	if err != nil {
		return "", l.wrap("fetch repository "+l.Repository(), err)
	}
	if b := repo.GetDefaultBranch(); b != "" {
		return b, nil
	}
	if l.opts.DefaultBranch != "" {
		return l.opts.DefaultBranch, nil
	}
	return "main", nil
}

func (l *GitHubLoader) allowed(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range l.opts.Extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func (l *GitHubLoader) wrap(action string, err error) error {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
		return apperror.IngestionFailed(fmt.Sprintf("%s: repository or branch not found", action), err)
	}
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return apperror.IngestionFailed(fmt.Sprintf("%s: github rate limit exceeded", action), err)
	}
	return apperror.IngestionFailed(action, err)
}
