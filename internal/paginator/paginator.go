// Package paginator turns a paginated, since-filtered remote list into an
// ordered stream of items that can be resumed from a checkpoint.
package paginator

import (
	"context"
	"errors"
	"iter"
	"slices"
	"time"

	"github.com/thep200/gitee-crawler/pkg/log"
)

type Options struct {
	PageSize int
	Logger   log.Logger
}

type Stats struct {
	Pages        int
	Emitted      int
	Commits      int
	SkippedSeen  int
	SkippedStale int
}

// Paginator serves one fetch at a time.
type Paginator struct {
	source   PageSource
	pageSize int
	logger   log.Logger
	stats    Stats
}

func New(source PageSource, opts Options) (*Paginator, error) {
	if source == nil {
		return nil, errors.New("paginator: nil page source")
	}
	if opts.PageSize <= 0 {
		return nil, errors.New("paginator: page size must be positive")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NopLogger{}
	}
	return &Paginator{
		source:   source,
		pageSize: opts.PageSize,
		logger:   logger,
	}, nil
}

// Stats of the last (or running) fetch.
func (p *Paginator) Stats() Stats {
	return p.stats
}

// Fetch returns the items of window updated at or after the checkpoint,
// ordered by (UpdatedAt, ID). Items sharing the last timestamp of a page are
// held back until a later timestamp or the end of the stream arrives, so ties
// split across pages still come out in id order. commit, when set, receives
// the new checkpoint before each batch is yielded; if it fails the sequence
// ends with its error. A failed page never advances the checkpoint. Breaking
// out of the range stops fetching.
//
// After a page spanning several timestamps the listing restarts at the
// page's last timestamp, so items that move to the end of the remote list
// while the fetch runs are still picked up. The cursor is only followed
// across pages sharing a single timestamp.
func (p *Paginator) Fetch(ctx context.Context, window FetchWindow, cp *Checkpoint, commit CommitFunc) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		p.stats = Stats{}

		if err := window.Validate(); err != nil {
			yield(Item{}, err)
			return
		}

		current := Checkpoint{Origin: window.Origin}
		if cp != nil {
			if cp.Origin != window.Origin {
				yield(Item{}, &FetchError{Window: window, Err: ErrCheckpointOrigin})
				return
			}
			current = cp.Clone()
			slices.Sort(current.LastSeenIDs)
		}

		since := window.Since
		if current.LastUpdatedAt.After(since) {
			since = current.LastUpdatedAt
		}

		// held are received but not yet emitted, pending indexes them
		var held []Item
		pending := make(map[itemKey]struct{})

		pastUntil := func(it Item) bool {
			return window.Until != nil && !it.UpdatedAt.Before(*window.Until)
		}
		stale := func(it Item) bool {
			return it.UpdatedAt.Before(since) || it.UpdatedAt.Before(current.LastUpdatedAt)
		}
		skip := func(it Item) bool {
			if pastUntil(it) || stale(it) || current.Seen(it) {
				return true
			}
			_, ok := pending[keyOf(it)]
			return ok
		}

		emit := func(page int, batch []Item) bool {
			if len(batch) == 0 {
				return true
			}
			current.advance(batch)
			if commit != nil {
				if err := commit(ctx, current.Clone()); err != nil {
					yield(Item{}, &FetchError{Window: window, Page: page, Err: err})
					return false
				}
				p.stats.Commits++
			}
			for _, it := range batch {
				p.stats.Emitted++
				if !yield(it, nil) {
					return false
				}
			}
			return true
		}

		cursor := ""
		for page := 1; ; page++ {
			if err := ctx.Err(); err != nil {
				yield(Item{}, &FetchError{Window: window, Page: page, Err: err})
				return
			}

			res, err := p.source.FetchPage(ctx, PageRequest{
				Origin:   window.Origin,
				Since:    since,
				Cursor:   cursor,
				PageSize: p.pageSize,
				Skip:     skip,
			})
			if err != nil {
				yield(Item{}, &FetchError{Window: window, Page: page, Err: err})
				return
			}
			p.stats.Pages++

			items := slices.Clone(res.Items)
			slices.SortStableFunc(items, compareItems)

			var heldAt time.Time
			if len(held) > 0 {
				heldAt = held[len(held)-1].UpdatedAt
			}
			queue := held
			fresh := 0
			reachedUntil := false
			for _, it := range items {
				if pastUntil(it) {
					reachedUntil = true
					break
				}
				switch {
				case stale(it):
					p.stats.SkippedStale++
					p.logger.Warn(ctx, "Skip item %s of %s: updated_at %s is behind %s",
						it.ID, window.Origin, it.UpdatedAt.Format(time.RFC3339), since.Format(time.RFC3339))
				case current.Seen(it):
					p.stats.SkippedSeen++
				default:
					k := keyOf(it)
					if _, ok := pending[k]; ok {
						continue
					}
					pending[k] = struct{}{}
					queue = append(queue, it)
					fresh++
				}
			}
			slices.SortFunc(queue, compareItems)

			last := reachedUntil || res.NextCursor == "" || len(res.Items) < p.pageSize

			// the next page may still carry ties of the last timestamp
			ready := len(queue)
			if !last {
				ready, _ = slices.BinarySearchFunc(queue, items[len(items)-1].UpdatedAt, func(it Item, t time.Time) int {
					return it.UpdatedAt.Compare(t)
				})
			}
			// what was held back goes out in its own batch
			split := 0
			for split < ready && !queue[split].UpdatedAt.After(heldAt) {
				split++
			}
			p.logger.Debug(ctx, "Page %d of %s: %d received, %d new, %d held back",
				page, window.Origin, len(items), fresh, len(queue)-ready)

			if !emit(page, queue[:split]) || !emit(page, queue[split:ready]) {
				return
			}
			held = slices.Clone(queue[ready:])
			clear(pending)
			for _, it := range held {
				pending[keyOf(it)] = struct{}{}
			}

			if last {
				return
			}
			if spansTimestamps(items, since) {
				since = items[len(items)-1].UpdatedAt
				cursor = ""
				continue
			}
			if res.NextCursor == cursor {
				yield(Item{}, &FetchError{Window: window, Page: page, Err: ErrCursorLoop})
				return
			}
			cursor = res.NextCursor
		}
	}
}

type itemKey struct {
	id string
	at int64
}

func keyOf(it Item) itemKey {
	return itemKey{id: it.ID, at: it.UpdatedAt.UnixNano()}
}

// spansTimestamps reports whether the sorted items at or after since carry
// more than one UpdatedAt.
func spansTimestamps(items []Item, since time.Time) bool {
	i := slices.IndexFunc(items, func(it Item) bool { return !it.UpdatedAt.Before(since) })
	return i >= 0 && items[len(items)-1].UpdatedAt.After(items[i].UpdatedAt)
}
