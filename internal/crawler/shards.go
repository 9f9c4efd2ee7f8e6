package crawler

import (
	"fmt"
	"time"
)

const shardDateFormat = "2006-01-02"

// Shard is one creation-date window of the crawl. Both bounds are inclusive.
// Narrowing the creation-date predicate keeps a single query's match count
// under GitHub's 1000-result search cap in the common case.
type Shard struct {
	Start time.Time
	End   time.Time
}

// Predicate renders the shard as a GitHub search qualifier string.
func (s Shard) Predicate() string {
	return fmt.Sprintf("is:public created:%s..%s",
		s.Start.Format(shardDateFormat), s.End.Format(shardDateFormat))
}

// Shards partitions [start, end] into chronological windows of at most
// windowDays days. Windows are contiguous with no gaps or overlaps: each
// shard's End plus one day is the next shard's Start. The final shard is
// clamped to end.
func Shards(start, end time.Time, windowDays int) []Shard {
	var shards []Shard
	for cur := start; !cur.After(end); {
		shardEnd := cur.AddDate(0, 0, windowDays-1)
		if shardEnd.After(end) {
			shardEnd = end
		}
		shards = append(shards, Shard{Start: cur, End: shardEnd})
		cur = shardEnd.AddDate(0, 0, 1)
	}
	return shards
}
