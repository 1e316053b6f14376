// Gitee v5 API objects. Fields suffixed with _data are filled by the backend
// enrichment step, never by Gitee itself.

package gitee

import (
	"strconv"
	"time"

	"github.com/thep200/gitee-crawler/internal/paginator"
)

type User struct {
	ID      int64  `json:"id"`
	Login   string `json:"login"`
	Name    string `json:"name"`
	HtmlUrl string `json:"html_url"`
}

type Organization struct {
	ID          int64  `json:"id"`
	Login       string `json:"login"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UserDetail is the users/{login} answer plus the public organizations.
type UserDetail struct {
	User
	Bio           string         `json:"bio"`
	Blog          string         `json:"blog"`
	Email         string         `json:"email"`
	Followers     int            `json:"followers"`
	Following     int            `json:"following"`
	PublicRepos   int            `json:"public_repos"`
	CreatedAt     time.Time      `json:"created_at"`
	Organizations []Organization `json:"organizations"`
}

type Label struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type Comment struct {
	ID        int64       `json:"id"`
	Body      string      `json:"body"`
	HtmlUrl   string      `json:"html_url"`
	User      *User       `json:"user"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	UserData  *UserDetail `json:"user_data,omitempty"`
}

type Commit struct {
	Sha     string `json:"sha"`
	HtmlUrl string `json:"html_url"`
}

type OperateLog struct {
	ID         int64     `json:"id"`
	ActionType string    `json:"action_type"`
	Content    string    `json:"content"`
	User       *User     `json:"user"`
	CreatedAt  time.Time `json:"created_at"`
}

type Issue struct {
	ID            int64      `json:"id"`
	Number        string     `json:"number"`
	Title         string     `json:"title"`
	Body          string     `json:"body"`
	State         string     `json:"state"`
	IssueType     string     `json:"issue_type"`
	HtmlUrl       string     `json:"html_url"`
	User          *User      `json:"user"`
	Assignee      *User      `json:"assignee"`
	Collaborators []User     `json:"collaborators"`
	Labels        []Label    `json:"labels"`
	Comments      int        `json:"comments"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	FinishedAt    *time.Time `json:"finished_at"`

	UserData          *UserDetail  `json:"user_data,omitempty"`
	AssigneeData      *UserDetail  `json:"assignee_data,omitempty"`
	CollaboratorsData []UserDetail `json:"collaborators_data,omitempty"`
	CommentsData      []Comment    `json:"comments_data,omitempty"`
}

func (i *Issue) Kind() paginator.Kind { return paginator.KindIssue }

func (i *Issue) ItemID() string { return strconv.FormatInt(i.ID, 10) }

type Branch struct {
	Label string `json:"label"`
	Ref   string `json:"ref"`
	Sha   string `json:"sha"`
}

type PullRequest struct {
	ID        int64      `json:"id"`
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	State     string     `json:"state"`
	HtmlUrl   string     `json:"html_url"`
	User      *User      `json:"user"`
	Assignees []User     `json:"assignees"`
	Testers   []User     `json:"testers"`
	Labels    []Label    `json:"labels"`
	Head      Branch     `json:"head"`
	Base      Branch     `json:"base"`
	Mergeable bool       `json:"mergeable"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	MergedAt  *time.Time `json:"merged_at"`
	ClosedAt  *time.Time `json:"closed_at"`

	UserData           *UserDetail  `json:"user_data,omitempty"`
	AssigneesData      []UserDetail `json:"assignees_data,omitempty"`
	TestersData        []UserDetail `json:"testers_data,omitempty"`
	ReviewCommentsData []Comment    `json:"review_comments_data,omitempty"`
	CommitsData        []string     `json:"commits_data,omitempty"`
	MergedBy           string       `json:"merged_by,omitempty"`
	MergedByData       *UserDetail  `json:"merged_by_data,omitempty"`
}

func (p *PullRequest) Kind() paginator.Kind { return paginator.KindPullRequest }

func (p *PullRequest) ItemID() string { return strconv.FormatInt(p.ID, 10) }

type Release struct {
	ID         int64     `json:"id"`
	TagName    string    `json:"tag_name"`
	Name       string    `json:"name"`
	Body       string    `json:"body"`
	Prerelease bool      `json:"prerelease"`
	Author     *User     `json:"author"`
	CreatedAt  time.Time `json:"created_at"`
}

// Repository is a point-in-time snapshot of the repo counters and releases.
type Repository struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Path            string    `json:"path"`
	FullName        string    `json:"full_name"`
	Description     string    `json:"description"`
	HtmlUrl         string    `json:"html_url"`
	Owner           *User     `json:"owner"`
	StargazersCount int       `json:"stargazers_count"`
	ForksCount      int       `json:"forks_count"`
	WatchersCount   int       `json:"watchers_count"`
	OpenIssuesCount int       `json:"open_issues_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	PushedAt        time.Time `json:"pushed_at"`

	Releases  []Release `json:"releases,omitempty"`
	FetchedOn time.Time `json:"fetched_on"`
}

func (r *Repository) Kind() paginator.Kind { return paginator.KindRepository }

// ItemID of a snapshot is the fetch time, every snapshot is a new item.
func (r *Repository) ItemID() string { return strconv.FormatInt(r.FetchedOn.Unix(), 10) }
