package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	apperrors "github-stars-crawler/internal/errors"
)

const (
	defaultEndpoint = "https://api.github.com/graphql"

	// MaxPageSize is GitHub's per-request cap on search result nodes.
	MaxPageSize = 100

	maxRetries = 5
)

// searchQuery is the one query document the crawler issues. The creation-date
// predicate travels in $q; pagination in $first/$after. The rateLimit block
// rides along on every page so throttling never needs a separate call.
const searchQuery = `
query($q: String!, $first: Int!, $after: String) {
  rateLimit {
    remaining
    resetAt
  }
  search(query: $q, type: REPOSITORY, first: $first, after: $after) {
    repositoryCount
    pageInfo {
      hasNextPage
      endCursor
    }
    nodes {
      ... on Repository {
        id
        name
        url
        stargazerCount
        createdAt
        owner {
          login
        }
      }
    }
  }
}`

// RateLimit is the quota snapshot GitHub embeds in each GraphQL response.
type RateLimit struct {
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// RepoNode is one repository node from the search connection.
type RepoNode struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	URL            string    `json:"url"`
	StargazerCount int       `json:"stargazerCount"`
	CreatedAt      time.Time `json:"createdAt"`
	Owner          struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// SearchPage is one decoded page of search results.
type SearchPage struct {
	// Count is the total number of repositories matching the predicate,
	// not just this page. GitHub only ever serves the first 1000.
	Count       int
	Nodes       []RepoNode
	HasNextPage bool
	EndCursor   *string
	RateLimit   RateLimit
}

// QueryError carries application-level errors returned in an otherwise
// successful GraphQL response. These are never retried.
type QueryError struct {
	Errors []GraphQLError
}

// GraphQLError is a single entry from a response's errors list.
type GraphQLError struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

func (e *QueryError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ge := range e.Errors {
		msgs[i] = ge.Message
	}
	return fmt.Sprintf("graphql query failed: %s", strings.Join(msgs, "; "))
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type searchEnvelope struct {
	Data *struct {
		RateLimit RateLimit `json:"rateLimit"`
		Search    struct {
			RepositoryCount int `json:"repositoryCount"`
			PageInfo        struct {
				HasNextPage bool    `json:"hasNextPage"`
				EndCursor   *string `json:"endCursor"`
			} `json:"pageInfo"`
			Nodes []RepoNode `json:"nodes"`
		} `json:"search"`
	} `json:"data"`
	Errors []GraphQLError `json:"errors"`
}

// Client issues the fixed repository search query against GitHub's GraphQL API.
type Client struct {
	httpClient *http.Client
	endpoint   string
	logger     *slog.Logger

	// sleep is swapped out in tests so retry backoff doesn't stall them.
	sleep func(time.Duration)
}

// NewClient creates and configures a new Client instance.
// The provided token is used to create an authenticated http.Client.
func NewClient(token string, logger *slog.Logger) *Client {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)
	tc.Timeout = 30 * time.Second

	return &Client{
		httpClient: tc,
		endpoint:   defaultEndpoint,
		logger:     logger,
		sleep:      time.Sleep,
	}
}

// NewTestClient creates a Client aimed at a stand-in endpoint with retry
// backoff sleeps disabled. Only for tests.
func NewTestClient(endpoint string, httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		endpoint:   endpoint,
		logger:     logger,
		sleep:      func(time.Duration) {},
	}
}

// Search fetches one page of repositories matching predicate. A nil after
// cursor fetches the first page. Transient (5xx) failures are retried with
// exponential backoff up to maxRetries attempts; client errors and GraphQL
// application errors are surfaced immediately.
func (c *Client) Search(ctx context.Context, predicate string, pageSize int, after *string) (*SearchPage, error) {
	if pageSize < 1 || pageSize > MaxPageSize {
		return nil, fmt.Errorf("page size %d out of range [1, %d]", pageSize, MaxPageSize)
	}

	variables := map[string]any{
		"q":     predicate,
		"first": pageSize,
		"after": after,
	}

	lastStatus := 0
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<attempt) * time.Second
			c.logger.Warn("Retrying search request", "attempt", attempt+1, "backoff", backoff.String(), "last_status", lastStatus)
			c.sleep(backoff)
		}

		page, status, err := c.execute(ctx, variables)
		if err == nil {
			return page, nil
		}
		if status < http.StatusInternalServerError && status != 0 {
			// Client error or an application-level failure; retrying won't help.
			return nil, err
		}
		lastStatus = status
		c.logger.Warn("Search request failed", "status", status, "error", err)
	}

	return nil, fmt.Errorf("search for %q: %w", predicate, &apperrors.ErrRetriesExhausted{
		Attempts:   maxRetries,
		LastStatus: lastStatus,
	})
}

// execute performs a single request/response round trip. The returned status
// is the HTTP status code when one was received, 0 on a transport failure
// before a response arrived, and http.StatusOK for application-level errors.
func (c *Client) execute(ctx context.Context, variables map[string]any) (*SearchPage, int, error) {
	body, err := json.Marshal(graphQLRequest{Query: searchQuery, Variables: variables})
	if err != nil {
		return nil, http.StatusOK, fmt.Errorf("encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, http.StatusOK, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("post query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("search request returned status %d", resp.StatusCode)
	}

	var envelope searchEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, http.StatusOK, fmt.Errorf("decode response: %w", err)
	}

	if len(envelope.Errors) > 0 {
		return nil, http.StatusOK, &QueryError{Errors: envelope.Errors}
	}
	if envelope.Data == nil {
		return nil, http.StatusOK, fmt.Errorf("response carries neither data nor errors")
	}

	search := envelope.Data.Search
	return &SearchPage{
		Count:       search.RepositoryCount,
		Nodes:       search.Nodes,
		HasNextPage: search.PageInfo.HasNextPage,
		EndCursor:   search.PageInfo.EndCursor,
		RateLimit:   envelope.Data.RateLimit,
	}, resp.StatusCode, nil
}
