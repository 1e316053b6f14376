// Package backend fetches Gitee categories (issues, pull requests, repository
// snapshots) as ordered, resumable item streams.
package backend

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strings"
	"time"

	"github.com/thep200/gitee-crawler/internal/gitee"
	"github.com/thep200/gitee-crawler/internal/paginator"
	"github.com/thep200/gitee-crawler/pkg/log"
)

const DefaultSiteUrl = "https://gitee.com"

type Options struct {
	SiteUrl         string
	PerPage         int
	ExcludeUserData bool
}

type Gitee struct {
	Logger log.Logger
	Caller *gitee.Caller
	Origin string
	opts   Options
	users  *userCache
	now    func() time.Time

	lastStats paginator.Stats
}

// Origin identifies a repository: <site>/<owner>/<repo>.
func Origin(siteUrl, owner, repository string) string {
	if siteUrl == "" {
		siteUrl = DefaultSiteUrl
	}
	return strings.TrimRight(siteUrl, "/") + "/" + url.PathEscape(owner) + "/" + url.PathEscape(repository)
}

func NewGitee(logger log.Logger, caller *gitee.Caller, opts Options) (*Gitee, error) {
	if caller.Owner == "" || caller.Repository == "" {
		return nil, fmt.Errorf("gitee backend needs an owner and a repository")
	}
	if opts.PerPage <= 0 {
		opts.PerPage = gitee.MaxPerPage
	}
	opts.PerPage = min(opts.PerPage, gitee.MaxPerPage)
	if opts.ExcludeUserData {
		logger.Info(context.Background(), "Excluding user data. Personal user information won't be collected from the API.")
	}
	return &Gitee{
		Logger: logger,
		Caller: caller,
		Origin: Origin(opts.SiteUrl, caller.Owner, caller.Repository),
		opts:   opts,
		users:  newUserCache(caller, logger, opts.ExcludeUserData),
		now:    time.Now,
	}, nil
}

// Stats of the last finished category fetch.
func (g *Gitee) Stats() paginator.Stats {
	return g.lastStats
}

// Fetch streams the items of one category. See paginator.Paginator.Fetch for
// ordering, checkpoint and error semantics.
func (g *Gitee) Fetch(ctx context.Context, category paginator.Kind, window paginator.FetchWindow, cp *paginator.Checkpoint, commit paginator.CommitFunc) iter.Seq2[paginator.Item, error] {
	return func(yield func(paginator.Item, error) bool) {
		var source paginator.PageSource
		pageSize := g.opts.PerPage
		switch category {
		case paginator.KindIssue:
			source = paginator.PageSourceFunc(g.issuePage)
		case paginator.KindPullRequest:
			source = paginator.PageSourceFunc(g.pullPage)
		case paginator.KindRepository:
			source = paginator.PageSourceFunc(g.repositoryPage)
			pageSize = 1
		default:
			yield(paginator.Item{}, fmt.Errorf("unsupported category %q", category))
			return
		}

		p, err := paginator.New(source, paginator.Options{PageSize: pageSize, Logger: g.Logger})
		if err != nil {
			yield(paginator.Item{}, err)
			return
		}
		defer func() { g.lastStats = p.Stats() }()

		for item, err := range p.Fetch(ctx, window, cp, commit) {
			if !yield(item, err) {
				return
			}
		}
	}
}

func (g *Gitee) issuePage(ctx context.Context, req paginator.PageRequest) (*paginator.Page, error) {
	issues, info, err := g.Caller.ListIssues(ctx, req.Since, req.PageSize, req.Cursor)
	if err != nil {
		return nil, err
	}
	g.Logger.Info(ctx, "Fetched %d issues of %s, total pages: %d", len(issues), req.Origin, info.TotalPage)

	page := &paginator.Page{Items: make([]paginator.Item, 0, len(issues)), NextCursor: info.Next}
	for i := range issues {
		issue := &issues[i]
		if issue.UpdatedAt.IsZero() {
			return nil, &gitee.MalformedResponseError{URL: req.Origin, Err: fmt.Errorf("issue %d has no updated_at", issue.ID)}
		}
		item := paginator.Item{ID: issue.ItemID(), UpdatedAt: issue.UpdatedAt, Payload: issue}
		if !skip(req, item) {
			if err := g.enrichIssue(ctx, issue); err != nil {
				return nil, fmt.Errorf("enrich issue %s: %w", issue.Number, err)
			}
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

func (g *Gitee) pullPage(ctx context.Context, req paginator.PageRequest) (*paginator.Page, error) {
	pulls, info, err := g.Caller.ListPulls(ctx, req.Since, req.PageSize, req.Cursor)
	if err != nil {
		return nil, err
	}
	g.Logger.Info(ctx, "Fetched %d pull requests of %s, total pages: %d", len(pulls), req.Origin, info.TotalPage)

	page := &paginator.Page{Items: make([]paginator.Item, 0, len(pulls)), NextCursor: info.Next}
	for i := range pulls {
		pull := &pulls[i]
		if pull.UpdatedAt.IsZero() {
			return nil, &gitee.MalformedResponseError{URL: req.Origin, Err: fmt.Errorf("pull request %d has no updated_at", pull.ID)}
		}
		item := paginator.Item{ID: pull.ItemID(), UpdatedAt: pull.UpdatedAt, Payload: pull}
		if !skip(req, item) {
			if err := g.enrichPull(ctx, pull); err != nil {
				return nil, fmt.Errorf("enrich pull request %d: %w", pull.Number, err)
			}
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

// skip reports items the paginator is going to drop, those stay unenriched.
func skip(req paginator.PageRequest, item paginator.Item) bool {
	return req.Skip != nil && req.Skip(item)
}

// repositoryPage yields a single snapshot stamped with the fetch time.
func (g *Gitee) repositoryPage(ctx context.Context, _ paginator.PageRequest) (*paginator.Page, error) {
	repo, err := g.Caller.Repo(ctx)
	if err != nil {
		return nil, err
	}
	releases, err := g.Caller.RepoReleases(ctx)
	if err != nil {
		return nil, err
	}
	repo.Releases = releases
	repo.FetchedOn = g.now().UTC().Truncate(time.Second)

	return &paginator.Page{Items: []paginator.Item{{
		ID:        repo.ItemID(),
		UpdatedAt: repo.FetchedOn,
		Payload:   repo,
	}}}, nil
}
