package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github-stars-crawler/internal/github"
	"github-stars-crawler/internal/model"
)

const (
	// pageSize stays well under github.MaxPageSize; GitHub's own guidance is
	// that smaller pages are friendlier to the search backend.
	pageSize = 50

	// pageDelay is a fixed courtesy pause between consecutive page fetches.
	pageDelay = 500 * time.Millisecond

	// searchResultCap is the hard ceiling GitHub puts on results served for
	// a single search query, regardless of repositoryCount.
	searchResultCap = 1000
)

// SearchClient fetches one page of repository search results.
type SearchClient interface {
	Search(ctx context.Context, predicate string, pageSize int, after *string) (*github.SearchPage, error)
}

// Store persists crawled records.
type Store interface {
	UpsertRepositories(ctx context.Context, repos []model.Repository) error
	UpsertStarHistory(ctx context.Context, snapshots []model.StarSnapshot) error
}

// Crawler walks the configured creation-date range shard by shard, paginating
// each shard's search results and upserting every page before fetching the
// next. It holds no state between runs; re-entrancy comes from the upserts
// being idempotent.
type Crawler struct {
	client   SearchClient
	store    Store
	governor *Governor
	logger   *slog.Logger

	start      time.Time
	end        time.Time
	windowDays int
	target     int

	now   func() time.Time
	pause func(time.Duration)
}

// New creates a Crawler covering [start, end] in windows of windowDays days,
// stopping once target records have been fetched across the whole run.
func New(client SearchClient, store Store, governor *Governor, logger *slog.Logger, start, end time.Time, windowDays, target int) (*Crawler, error) {
	if windowDays < 1 {
		return nil, fmt.Errorf("window must be at least one day, got %d", windowDays)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("crawl range end %s precedes start %s",
			end.Format(shardDateFormat), start.Format(shardDateFormat))
	}
	if target < 1 {
		return nil, fmt.Errorf("target must be positive, got %d", target)
	}

	return &Crawler{
		client:     client,
		store:      store,
		governor:   governor,
		logger:     logger,
		start:      start,
		end:        end,
		windowDays: windowDays,
		target:     target,
		now:        time.Now,
		pause:      time.Sleep,
	}, nil
}

// Run executes the crawl and returns the total number of records fetched.
// A shard whose fetch fails is abandoned and the crawl moves on; a store
// failure aborts the whole run.
func (c *Crawler) Run(ctx context.Context) (int, error) {
	shards := Shards(c.start, c.end, c.windowDays)
	c.logger.Info("Starting crawl",
		"from", c.start.Format(shardDateFormat),
		"to", c.end.Format(shardDateFormat),
		"shards", len(shards),
		"target", c.target,
	)

	total := 0
	for _, shard := range shards {
		done, err := c.crawlShard(ctx, shard, &total)
		if err != nil {
			return total, err
		}
		if done {
			c.logger.Info("Fetch target reached, stopping crawl", "total", total)
			return total, nil
		}
	}

	c.logger.Info("Crawl range exhausted", "total", total)
	return total, nil
}

// crawlShard pages through one shard in cursor order. It reports done=true
// when the global target has been met. Fetch and mapping failures abandon the
// shard's remaining pages without failing the run.
func (c *Crawler) crawlShard(ctx context.Context, shard Shard, total *int) (bool, error) {
	logger := c.logger.With(
		"shard_start", shard.Start.Format(shardDateFormat),
		"shard_end", shard.End.Format(shardDateFormat),
	)
	logger.Info("Crawling shard")

	var after *string
	firstPage := true
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		page, err := c.client.Search(ctx, shard.Predicate(), pageSize, after)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			logger.Error("Abandoning shard after failed page fetch", "error", err)
			return false, nil
		}

		if firstPage && page.Count > searchResultCap {
			logger.Warn("Shard matches exceed the search result cap, tail results will be lost",
				"matches", page.Count, "cap", searchResultCap)
		}
		firstPage = false

		repos, snapshots, err := mapNodes(page.Nodes, c.now())
		if err != nil {
			logger.Error("Abandoning shard on malformed search node", "error", err)
			return false, nil
		}

		if len(repos) > 0 {
			if err := c.store.UpsertRepositories(ctx, repos); err != nil {
				return false, fmt.Errorf("upsert repositories: %w", err)
			}
			if err := c.store.UpsertStarHistory(ctx, snapshots); err != nil {
				return false, fmt.Errorf("upsert star history: %w", err)
			}
		}

		*total += len(repos)
		logger.Info("Stored page", "page_records", len(repos), "total", *total)

		if *total >= c.target {
			return true, nil
		}

		c.governor.Pace(page.RateLimit)

		if !page.HasNextPage || len(page.Nodes) == 0 {
			return false, nil
		}
		after = page.EndCursor
		c.pause(pageDelay)
	}
}
