package model

import "time"

// Repository represents one crawled GitHub repository. RepoID is the opaque
// GraphQL node id assigned by GitHub and is the storage primary key.
type Repository struct {
	RepoID      string         `json:"repo_id"`
	FullName    string         `json:"full_name"`
	Name        string         `json:"name"`
	OwnerLogin  string         `json:"owner_login"`
	Stars       int            `json:"stars"`
	URL         string         `json:"url"`
	Metadata    map[string]any `json:"metadata"`
	LastScraped time.Time      `json:"last_scraped"`
}

// StarSnapshot is one day's star count for a repository. A repository has at
// most one snapshot per day; re-crawling the same day overwrites it.
type StarSnapshot struct {
	RepoID     string    `json:"repo_id"`
	SnapshotAt time.Time `json:"snapshot_at"`
	Stars      int       `json:"stars"`
}
