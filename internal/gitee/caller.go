// Package gitee cung cấp một caller cho Gitee v5 REST API.
// Nó xử lý xác thực bằng access token, phân trang qua Link header và chuyển
// lỗi rate limit hoặc xác thực thành error có kiểu. Caller không tự retry.

package gitee

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/thep200/gitee-crawler/cfg"
	"github.com/thep200/gitee-crawler/internal/limiter"
	"github.com/thep200/gitee-crawler/pkg/log"
)

const (
	DefaultApiUrl          = "https://gitee.com/api/v5"
	DefaultRefreshTokenUrl = "https://gitee.com/oauth/token"
	MaxPerPage             = 100
)

// PageInfo là thông tin phân trang lấy từ header
type PageInfo struct {
	Next      string
	TotalPage int
}

type Caller struct {
	Logger      log.Logger
	Config      *cfg.Config
	Owner       string
	Repository  string
	client      *http.Client
	rateLimiter *limiter.RateLimiter
	apiUrl      string
	accessToken string
	// refreshToken chỉ có khi oauth endpoint trả về
	refreshToken string
	now          func() time.Time
}

type CallerOption func(*Caller)

func WithHTTPClient(client *http.Client) CallerOption {
	return func(c *Caller) {
		c.client = client
	}
}

func WithRateLimiter(r *limiter.RateLimiter) CallerOption {
	return func(c *Caller) {
		c.rateLimiter = r
	}
}

func NewCaller(logger log.Logger, config *cfg.Config, owner, repository string, opts ...CallerOption) *Caller {
	apiUrl := strings.TrimRight(config.GiteeApi.ApiUrl, "/")
	if apiUrl == "" {
		apiUrl = DefaultApiUrl
	}
	timeout := time.Duration(config.GiteeApi.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Caller{
		Logger:      logger,
		Config:      config,
		Owner:       owner,
		Repository:  repository,
		client:      &http.Client{Timeout: timeout},
		apiUrl:      apiUrl,
		accessToken: config.GiteeApi.AccessToken,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Caller) repoUrl(parts ...string) string {
	segments := append([]string{c.apiUrl, "repos", url.PathEscape(c.Owner), url.PathEscape(c.Repository)}, parts...)
	return strings.Join(segments, "/")
}

// RefreshAccessToken đổi refresh token (ban đầu chính là access token) lấy
// access token mới. Các request sau dùng token mới.
func (c *Caller) RefreshAccessToken(ctx context.Context) error {
	if c.accessToken == "" {
		return nil
	}
	refreshUrl := c.Config.GiteeApi.RefreshTokenUrl
	if refreshUrl == "" {
		refreshUrl = DefaultRefreshTokenUrl
	}
	refreshToken := c.refreshToken
	if refreshToken == "" {
		refreshToken = c.accessToken
	}
	q := url.Values{}
	q.Set("grant_type", "refresh_token")
	q.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, refreshUrl+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	c.Logger.Info(ctx, "Refresh the access token for Gitee API")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("refresh access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
			return &AuthenticationError{StatusCode: resp.StatusCode, URL: refreshUrl, Message: "refresh token rejected: " + strings.TrimSpace(string(body))}
		}
		return &StatusError{StatusCode: resp.StatusCode, URL: refreshUrl, Body: strings.TrimSpace(string(body))}
	}

	var token struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return &MalformedResponseError{URL: refreshUrl, Err: err}
	}
	if token.AccessToken == "" {
		return &MalformedResponseError{URL: refreshUrl, Err: errors.New("no access_token in refresh response")}
	}
	c.accessToken = token.AccessToken
	if token.RefreshToken != "" {
		c.refreshToken = token.RefreshToken
	}
	return nil
}

// get thực hiện một request GET, giải mã body JSON vào out và trả về thông tin
// phân trang. Body luôn được đóng.
func (c *Caller) get(ctx context.Context, endpoint string, query url.Values, out interface{}) (PageInfo, error) {
	var info PageInfo

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return info, err
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return info, fmt.Errorf("parse url %s: %w", endpoint, err)
	}
	q := u.Query()
	for k, vs := range query {
		q.Del(k)
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if c.accessToken != "" {
		q.Set("access_token", c.accessToken)
	}
	u.RawQuery = q.Encode()
	fullUrl := u.String()
	logUrl := redactURL(fullUrl)
	c.Logger.Debug(ctx, "Calling Gitee API: %s", logUrl)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullUrl, nil)
	if err != nil {
		return info, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")

	resp, err := c.client.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = logUrl
		}
		return info, fmt.Errorf("gitee request: %w", err)
	}
	defer resp.Body.Close()

	if err := c.checkResponse(ctx, resp, logUrl); err != nil {
		return info, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return info, fmt.Errorf("read response %s: %w", logUrl, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return info, &MalformedResponseError{URL: logUrl, Err: err}
	}

	info.Next = parseLinkHeader(resp.Header.Get("Link"))["next"]
	if tp := resp.Header.Get("total_page"); tp != "" {
		info.TotalPage, _ = strconv.Atoi(tp)
	}
	return info, nil
}

// checkResponse maps non-2xx answers to typed errors.
func (c *Caller) checkResponse(ctx context.Context, resp *http.Response, logUrl string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	message := strings.TrimSpace(string(snippet))

	if limited := c.rateLimitError(resp, logUrl); limited != nil {
		c.Logger.Warn(ctx, "Rate limit hit! Gitee asks to wait %v before %s", limited.RetryAfter, logUrl)
		return limited
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthenticationError{StatusCode: resp.StatusCode, URL: logUrl, Message: message}
	}
	return &StatusError{StatusCode: resp.StatusCode, URL: logUrl, Body: message}
}

// rateLimitError returns nil when the response is not a throttling answer.
func (c *Caller) rateLimitError(resp *http.Response, logUrl string) *RateLimitError {
	remaining := resp.Header.Get("X-RateLimit-Remaining")
	throttled := resp.StatusCode == http.StatusTooManyRequests ||
		(resp.StatusCode == http.StatusForbidden && remaining == "0")
	if !throttled {
		return nil
	}

	now := c.now()
	e := &RateLimitError{StatusCode: resp.StatusCode, URL: logUrl}

	if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
			e.RetryAfter = time.Duration(secs) * time.Second
		} else if at, err := http.ParseTime(ra); err == nil {
			e.RetryAfter = max(at.Sub(now), 0)
		}
		if e.RetryAfter > 0 || ra == "0" {
			e.Reset = now.Add(e.RetryAfter)
			return e
		}
	}

	if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
		if unix, err := strconv.ParseInt(reset, 10, 64); err == nil {
			e.Reset = time.Unix(unix, 0)
			if wait := e.Reset.Sub(now); wait > 0 {
				e.RetryAfter = wait
				return e
			}
		}
	}

	// Nếu không parse được thời gian reset, sử dụng cấu hình mặc định
	e.RetryAfter = time.Duration(max(c.Config.GiteeApi.RateLimitResetMin, 1)) * time.Minute
	e.Reset = now.Add(e.RetryAfter)
	return e
}

// listPage fetches one page of a list endpoint. cursor is the next link of
// the previous page, empty for the first one.
func listPage[T any](ctx context.Context, c *Caller, endpoint string, query url.Values, cursor string) ([]T, PageInfo, error) {
	var items []T
	if cursor != "" {
		// the next link already carries every parameter but the token
		endpoint, query = cursor, nil
	}
	info, err := c.get(ctx, endpoint, query, &items)
	return items, info, err
}

// listAll follows the next links until the last page.
func listAll[T any](ctx context.Context, c *Caller, endpoint string, query url.Values) ([]T, error) {
	var all []T
	cursor := ""
	for page := 1; ; page++ {
		items, info, err := listPage[T](ctx, c, endpoint, query, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if info.Next == "" || info.Next == cursor || len(items) == 0 {
			return all, nil
		}
		c.Logger.Debug(ctx, "Page: %d/%d", page, info.TotalPage)
		cursor = info.Next
	}
}

func listQuery(since time.Time, perPage int) url.Values {
	q := url.Values{}
	q.Set("state", "all")
	q.Set("sort", "updated")
	q.Set("direction", "asc")
	q.Set("per_page", strconv.Itoa(min(max(perPage, 1), MaxPerPage)))
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}
	return q
}

// ListIssues returns one page of issues updated at or after since, oldest first.
func (c *Caller) ListIssues(ctx context.Context, since time.Time, perPage int, cursor string) ([]Issue, PageInfo, error) {
	return listPage[Issue](ctx, c, c.repoUrl("issues"), listQuery(since, perPage), cursor)
}

// ListPulls returns one page of pull requests updated at or after since, oldest first.
func (c *Caller) ListPulls(ctx context.Context, since time.Time, perPage int, cursor string) ([]PullRequest, PageInfo, error) {
	return listPage[PullRequest](ctx, c, c.repoUrl("pulls"), listQuery(since, perPage), cursor)
}

func perPageQuery() url.Values {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(MaxPerPage))
	return q
}

func (c *Caller) IssueComments(ctx context.Context, number string) ([]Comment, error) {
	return listAll[Comment](ctx, c, c.repoUrl("issues", url.PathEscape(number), "comments"), perPageQuery())
}

func (c *Caller) PullCommits(ctx context.Context, number int) ([]Commit, error) {
	return listAll[Commit](ctx, c, c.repoUrl("pulls", strconv.Itoa(number), "commits"), perPageQuery())
}

func (c *Caller) PullReviewComments(ctx context.Context, number int) ([]Comment, error) {
	q := perPageQuery()
	q.Set("direction", "asc")
	return listAll[Comment](ctx, c, c.repoUrl("pulls", strconv.Itoa(number), "comments"), q)
}

func (c *Caller) PullOperateLogs(ctx context.Context, number int) ([]OperateLog, error) {
	return listAll[OperateLog](ctx, c, c.repoUrl("pulls", strconv.Itoa(number), "operate_logs"), nil)
}

func (c *Caller) User(ctx context.Context, login string) (*UserDetail, error) {
	user := &UserDetail{}
	if _, err := c.get(ctx, c.apiUrl+"/users/"+url.PathEscape(login), nil, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (c *Caller) UserOrgs(ctx context.Context, login string) ([]Organization, error) {
	var orgs []Organization
	if _, err := c.get(ctx, c.apiUrl+"/users/"+url.PathEscape(login)+"/orgs", nil, &orgs); err != nil {
		return nil, err
	}
	return orgs, nil
}

func (c *Caller) Repo(ctx context.Context) (*Repository, error) {
	repo := &Repository{}
	if _, err := c.get(ctx, c.repoUrl(), nil, repo); err != nil {
		return nil, err
	}
	return repo, nil
}

func (c *Caller) RepoReleases(ctx context.Context) ([]Release, error) {
	q := perPageQuery()
	q.Set("page", "1")
	var releases []Release
	if _, err := c.get(ctx, c.repoUrl("releases"), q, &releases); err != nil {
		return nil, err
	}
	return releases, nil
}

// IsNotFound reports whether err is a 404 answer.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}
