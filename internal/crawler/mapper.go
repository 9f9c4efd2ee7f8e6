package crawler

import (
	"time"

	apperrors "github-stars-crawler/internal/errors"
	"github-stars-crawler/internal/github"
	"github-stars-crawler/internal/model"
)

// mapNode translates a raw search node into a storable repository record and
// the day's star snapshot. Incidental source fields travel in the metadata
// blob so the record schema stays stable as the source schema grows.
// A node missing identity fields is a shape mismatch, not a skippable row.
func mapNode(node github.RepoNode, now time.Time) (model.Repository, model.StarSnapshot, error) {
	var missing string
	switch {
	case node.ID == "":
		missing = "id"
	case node.Name == "":
		missing = "name"
	case node.Owner.Login == "":
		missing = "owner.login"
	}
	if missing != "" {
		return model.Repository{}, model.StarSnapshot{}, &apperrors.ErrMalformedNode{Field: missing}
	}

	metadata := map[string]any{}
	if !node.CreatedAt.IsZero() {
		metadata["createdAt"] = node.CreatedAt.UTC().Format(time.RFC3339)
	}

	now = now.UTC()
	repo := model.Repository{
		RepoID:      node.ID,
		FullName:    node.Owner.Login + "/" + node.Name,
		Name:        node.Name,
		OwnerLogin:  node.Owner.Login,
		Stars:       node.StargazerCount,
		URL:         node.URL,
		Metadata:    metadata,
		LastScraped: now,
	}
	snapshot := model.StarSnapshot{
		RepoID:     node.ID,
		SnapshotAt: snapshotDate(now),
		Stars:      node.StargazerCount,
	}
	return repo, snapshot, nil
}

// mapNodes maps one page of nodes. The first malformed node fails the page.
func mapNodes(nodes []github.RepoNode, now time.Time) ([]model.Repository, []model.StarSnapshot, error) {
	repos := make([]model.Repository, 0, len(nodes))
	snapshots := make([]model.StarSnapshot, 0, len(nodes))
	for _, node := range nodes {
		repo, snapshot, err := mapNode(node, now)
		if err != nil {
			return nil, nil, err
		}
		repos = append(repos, repo)
		snapshots = append(snapshots, snapshot)
	}
	return repos, snapshots, nil
}

// snapshotDate is the UTC calendar date of the crawl run.
func snapshotDate(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
