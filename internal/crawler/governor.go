package crawler

import (
	"log/slog"
	"time"

	"github-stars-crawler/internal/github"
)

const (
	// quotaThreshold is the remaining-call floor below which the crawl pauses.
	quotaThreshold = 50
	// resetMargin is added past the reported reset time so the crawl never
	// resumes on a not-yet-refreshed quota.
	resetMargin   = 5 * time.Second
	minQuotaPause = time.Second
)

// Governor paces the crawl using the quota snapshot embedded in each search
// response. It keeps no state between pages or runs; the first response of a
// run is what calibrates it.
type Governor struct {
	logger *slog.Logger

	now   func() time.Time
	sleep func(time.Duration)
}

// NewGovernor creates a Governor with the real clock.
func NewGovernor(logger *slog.Logger) *Governor {
	return &Governor{
		logger: logger,
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// Pace blocks until the quota has reset when the remaining allowance is below
// the safety threshold. Otherwise it returns immediately.
func (g *Governor) Pace(rl github.RateLimit) {
	if rl.Remaining >= quotaThreshold {
		return
	}

	wait := rl.ResetAt.Sub(g.now()) + resetMargin
	if wait < minQuotaPause {
		wait = minQuotaPause
	}

	g.logger.Warn("API quota low, pausing until reset",
		"remaining", rl.Remaining,
		"reset_at", rl.ResetAt.Format(time.RFC3339),
		"wait", wait.Round(time.Second).String(),
	)
	g.sleep(wait)
}
