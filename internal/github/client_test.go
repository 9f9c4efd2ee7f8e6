package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github-stars-crawler/internal/errors"
)

const searchPageBody = `{
	"data": {
		"rateLimit": {"remaining": 4999, "resetAt": "2024-01-01T00:00:00Z"},
		"search": {
			"repositoryCount": 42,
			"pageInfo": {"hasNextPage": true, "endCursor": "Y3Vyc29yOjUw"},
			"nodes": [
				{
					"id": "R_kgDOAbc123",
					"name": "widget",
					"url": "https://github.com/octocat/widget",
					"stargazerCount": 17,
					"createdAt": "2012-03-04T05:06:07Z",
					"owner": {"login": "octocat"}
				}
			]
		}
	}
}`

// setupTestClient creates a httptest server and a client pointing to it.
func setupTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)

	// We can pass an empty token because we are not authenticating to the real GitHub.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client := NewClient("", logger)
	client.endpoint = server.URL
	client.httpClient = server.Client()
	client.sleep = func(time.Duration) {} // keep backoff out of test time

	return client, server
}

func TestClient_Search(t *testing.T) {
	t.Run("succeeds on first try and decodes the page", func(t *testing.T) {
		var requestCount int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&requestCount, 1)
			assert.Equal(t, http.MethodPost, r.Method)
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, searchPageBody)
		})
		client, server := setupTestClient(t, handler)
		defer server.Close()

		page, err := client.Search(context.Background(), "is:public created:2012-01-01..2012-01-07", 50, nil)

		require.NoError(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&requestCount))
		assert.Equal(t, 42, page.Count)
		assert.True(t, page.HasNextPage)
		require.NotNil(t, page.EndCursor)
		assert.Equal(t, "Y3Vyc29yOjUw", *page.EndCursor)
		assert.Equal(t, 4999, page.RateLimit.Remaining)
		require.Len(t, page.Nodes, 1)
		assert.Equal(t, "R_kgDOAbc123", page.Nodes[0].ID)
		assert.Equal(t, "octocat", page.Nodes[0].Owner.Login)
		assert.Equal(t, 17, page.Nodes[0].StargazerCount)
	})

	t.Run("retries transient server errors and succeeds", func(t *testing.T) {
		var requestCount int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count := atomic.AddInt32(&requestCount, 1)
			if count <= 4 {
				w.WriteHeader(http.StatusBadGateway) // Fail the first four times
				return
			}
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, searchPageBody)
		})
		client, server := setupTestClient(t, handler)
		defer server.Close()

		_, err := client.Search(context.Background(), "is:public created:2012-01-01..2012-01-07", 50, nil)

		require.NoError(t, err)
		assert.Equal(t, int32(5), atomic.LoadInt32(&requestCount), "should have made five requests")
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var requestCount int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&requestCount, 1)
			w.WriteHeader(http.StatusUnauthorized)
		})
		client, server := setupTestClient(t, handler)
		defer server.Close()

		_, err := client.Search(context.Background(), "is:public created:2012-01-01..2012-01-07", 50, nil)

		require.Error(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&requestCount))
	})

	t.Run("surfaces graphql errors without retry", func(t *testing.T) {
		var requestCount int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&requestCount, 1)
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, `{"errors": [{"type": "EXCESSIVE_PAGINATION", "message": "Pagination is limited"}]}`)
		})
		client, server := setupTestClient(t, handler)
		defer server.Close()

		_, err := client.Search(context.Background(), "is:public created:2012-01-01..2012-01-07", 50, nil)

		require.Error(t, err)
		var qErr *QueryError
		require.ErrorAs(t, err, &qErr)
		assert.Equal(t, "EXCESSIVE_PAGINATION", qErr.Errors[0].Type)
		assert.Equal(t, int32(1), atomic.LoadInt32(&requestCount))
	})

	t.Run("fails after max retries on persistent server error", func(t *testing.T) {
		var requestCount int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&requestCount, 1)
			w.WriteHeader(http.StatusInternalServerError)
		})
		client, server := setupTestClient(t, handler)
		defer server.Close()

		_, err := client.Search(context.Background(), "is:public created:2012-01-01..2012-01-07", 50, nil)

		require.Error(t, err)
		var exhausted *apperrors.ErrRetriesExhausted
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, maxRetries, exhausted.Attempts)
		assert.Equal(t, http.StatusInternalServerError, exhausted.LastStatus)
		assert.Equal(t, int32(maxRetries), atomic.LoadInt32(&requestCount))
	})

	t.Run("rejects out-of-range page sizes", func(t *testing.T) {
		client, server := setupTestClient(t, http.NotFoundHandler())
		defer server.Close()

		_, err := client.Search(context.Background(), "is:public", MaxPageSize+1, nil)
		assert.Error(t, err)
	})
}
