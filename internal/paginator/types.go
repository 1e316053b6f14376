package paginator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Kind names the resource a payload was fetched from.
type Kind string

const (
	KindIssue       Kind = "issue"
	KindPullRequest Kind = "pull_request"
	KindRepository  Kind = "repository"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindIssue, KindPullRequest, KindRepository:
		return k, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Payload is the typed record carried by an Item, one implementation per
// resource kind.
type Payload interface {
	Kind() Kind
}

var (
	ErrInvalidWindow    = errors.New("invalid fetch window")
	ErrCheckpointOrigin = errors.New("checkpoint belongs to another origin")
	ErrCursorLoop       = errors.New("page source returned the same cursor twice")
)

// FetchWindow bounds a fetch: Since is inclusive, Until (optional) exclusive.
type FetchWindow struct {
	Origin string
	Since  time.Time
	Until  *time.Time
}

func (w FetchWindow) Validate() error {
	if w.Origin == "" {
		return fmt.Errorf("%w: empty origin", ErrInvalidWindow)
	}
	if w.Since.IsZero() {
		return fmt.Errorf("%w: since is not set", ErrInvalidWindow)
	}
	if w.Until != nil && w.Until.Before(w.Since) {
		return fmt.Errorf("%w: since %s is after until %s", ErrInvalidWindow,
			w.Since.Format(time.RFC3339), w.Until.Format(time.RFC3339))
	}
	return nil
}

func (w FetchWindow) String() string {
	until := "*"
	if w.Until != nil {
		until = w.Until.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%s[%s..%s)", w.Origin, w.Since.UTC().Format(time.RFC3339), until)
}

type Item struct {
	ID        string
	UpdatedAt time.Time
	Payload   Payload
}

// compareItems orders by (UpdatedAt, ID).
func compareItems(a, b Item) int {
	if c := a.UpdatedAt.Compare(b.UpdatedAt); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// Checkpoint is the resume point of an origin. LastSeenIDs holds the ids
// already emitted with UpdatedAt == LastUpdatedAt, sorted.
type Checkpoint struct {
	Origin        string    `json:"origin" yaml:"origin"`
	LastUpdatedAt time.Time `json:"last_updated_at" yaml:"last_updated_at"`
	LastSeenIDs   []string  `json:"last_seen_ids" yaml:"last_seen_ids"`
}

func (c Checkpoint) Clone() Checkpoint {
	c.LastSeenIDs = slices.Clone(c.LastSeenIDs)
	return c
}

// Seen reports whether the item was already emitted at the boundary.
func (c Checkpoint) Seen(it Item) bool {
	if !it.UpdatedAt.Equal(c.LastUpdatedAt) {
		return false
	}
	_, found := slices.BinarySearch(c.LastSeenIDs, it.ID)
	return found
}

// advance moves the checkpoint past items, which must be sorted and not
// behind it.
func (c *Checkpoint) advance(items []Item) {
	for _, it := range items {
		if !it.UpdatedAt.Equal(c.LastUpdatedAt) {
			c.LastUpdatedAt = it.UpdatedAt
			c.LastSeenIDs = nil
		}
		if i, found := slices.BinarySearch(c.LastSeenIDs, it.ID); !found {
			c.LastSeenIDs = slices.Insert(c.LastSeenIDs, i, it.ID)
		}
	}
}

type PageRequest struct {
	Origin   string
	Since    time.Time
	Cursor   string
	PageSize int
	// Skip reports items the paginator drops on arrival. A source may leave
	// them unenriched. Nil means nothing is known yet.
	Skip func(Item) bool
}

// Page is one batch from the remote, sorted by UpdatedAt. An empty NextCursor
// means no more pages.
type Page struct {
	Items      []Item
	NextCursor string
}

type PageSource interface {
	FetchPage(ctx context.Context, req PageRequest) (*Page, error)
}

type PageSourceFunc func(ctx context.Context, req PageRequest) (*Page, error)

func (f PageSourceFunc) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	return f(ctx, req)
}

// CommitFunc persists a checkpoint. It runs before the items of the page it
// covers are handed out.
type CommitFunc func(ctx context.Context, cp Checkpoint) error

// FetchError attaches the origin, window and page to a failure.
type FetchError struct {
	Window FetchWindow
	Page   int
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s page %d: %v", e.Window, e.Page, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
