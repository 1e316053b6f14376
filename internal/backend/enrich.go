package backend

import (
	"context"

	"github.com/thep200/gitee-crawler/internal/gitee"
	"github.com/thep200/gitee-crawler/pkg/log"
)

func (g *Gitee) enrichIssue(ctx context.Context, issue *gitee.Issue) error {
	var err error
	if issue.User != nil {
		if issue.UserData, err = g.users.get(ctx, issue.User.Login); err != nil {
			return err
		}
	}
	if issue.Assignee != nil {
		if issue.AssigneeData, err = g.users.get(ctx, issue.Assignee.Login); err != nil {
			return err
		}
	}
	if len(issue.Collaborators) > 0 {
		if issue.CollaboratorsData, err = g.users.getAll(ctx, issue.Collaborators); err != nil {
			return err
		}
	}
	if issue.Comments > 0 {
		comments, err := g.Caller.IssueComments(ctx, issue.Number)
		if err != nil {
			return err
		}
		if err := g.enrichComments(ctx, comments); err != nil {
			return err
		}
		issue.CommentsData = comments
	}
	return nil
}

func (g *Gitee) enrichPull(ctx context.Context, pull *gitee.PullRequest) error {
	var err error
	if pull.User != nil {
		if pull.UserData, err = g.users.get(ctx, pull.User.Login); err != nil {
			return err
		}
	}
	if pull.AssigneesData, err = g.users.getAll(ctx, pull.Assignees); err != nil {
		return err
	}
	if pull.TestersData, err = g.users.getAll(ctx, pull.Testers); err != nil {
		return err
	}

	// Gitee sometimes answers 404 for these of an existing pull request
	comments, err := g.Caller.PullReviewComments(ctx, pull.Number)
	switch {
	case gitee.IsNotFound(err):
		g.Logger.Error(ctx, "Can't get gitee pull request comments with PR number %d", pull.Number)
	case err != nil:
		return err
	default:
		if err := g.enrichComments(ctx, comments); err != nil {
			return err
		}
		pull.ReviewCommentsData = comments
	}

	commits, err := g.Caller.PullCommits(ctx, pull.Number)
	switch {
	case gitee.IsNotFound(err):
		g.Logger.Error(ctx, "Can't get gitee pull request commits with PR number %d", pull.Number)
	case err != nil:
		return err
	default:
		pull.CommitsData = make([]string, 0, len(commits))
		for _, commit := range commits {
			pull.CommitsData = append(pull.CommitsData, commit.Sha)
		}
	}

	logs, err := g.Caller.PullOperateLogs(ctx, pull.Number)
	if err != nil {
		return err
	}
	pull.MergedBy = mergedBy(logs)
	if pull.MergedBy != "" {
		if pull.MergedByData, err = g.users.get(ctx, pull.MergedBy); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gitee) enrichComments(ctx context.Context, comments []gitee.Comment) error {
	for i := range comments {
		if comments[i].User == nil {
			g.Logger.Warn(ctx, "Missing user info for %s", comments[i].HtmlUrl)
			continue
		}
		user, err := g.users.get(ctx, comments[i].User.Login)
		if err != nil {
			return err
		}
		comments[i].UserData = user
	}
	return nil
}

// mergedBy returns the login of whoever merged the pull request, if anyone.
func mergedBy(logs []gitee.OperateLog) string {
	for _, l := range logs {
		if l.ActionType == "merged_pr" && l.User != nil {
			return l.User.Login
		}
	}
	return ""
}

// userCache keeps user lookups of one backend; Gitee users rarely change
// during a run and the same authors show up on most items.
type userCache struct {
	caller  *gitee.Caller
	logger  log.Logger
	exclude bool
	users   map[string]*gitee.UserDetail
}

func newUserCache(caller *gitee.Caller, logger log.Logger, exclude bool) *userCache {
	return &userCache{
		caller:  caller,
		logger:  logger,
		exclude: exclude,
		users:   make(map[string]*gitee.UserDetail),
	}
}

func (c *userCache) get(ctx context.Context, login string) (*gitee.UserDetail, error) {
	if login == "" || c.exclude {
		return nil, nil
	}
	if user, ok := c.users[login]; ok {
		return user, nil
	}

	c.logger.Debug(ctx, "Getting info for user %s", login)
	user, err := c.caller.User(ctx, login)
	if err != nil {
		return nil, err
	}
	orgs, err := c.caller.UserOrgs(ctx, login)
	switch {
	case gitee.IsNotFound(err):
		c.logger.Error(ctx, "Can't get gitee login orgs with %s", login)
		orgs = []gitee.Organization{}
	case err != nil:
		return nil, err
	}
	user.Organizations = orgs

	c.users[login] = user
	return user, nil
}

func (c *userCache) getAll(ctx context.Context, users []gitee.User) ([]gitee.UserDetail, error) {
	if c.exclude || len(users) == 0 {
		return nil, nil
	}
	details := make([]gitee.UserDetail, 0, len(users))
	for _, u := range users {
		user, err := c.get(ctx, u.Login)
		if err != nil {
			return nil, err
		}
		if user != nil {
			details = append(details, *user)
		}
	}
	return details, nil
}
