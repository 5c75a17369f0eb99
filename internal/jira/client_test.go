package jira_test

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waterflow.dev/waterflow/internal/jira"
)

const issueJSON = `{
	"id": "10001",
	"key": "PROJ-1",
	"fields": {
		"issuetype": {"id": "1", "name": "Bug"},
		"project": {"id": "100", "key": "PROJ"},
		"fixVersions": [{"id": "7", "name": "4.3.18"}, {"id": "8", "name": "5.1.4"}]
	}
}`

func TestFetchIssue(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(issueJSON))
	}))
	defer srv.Close()

	c := jira.NewClient(srv.URL, "alice", "secret")
	issue, err := c.FetchIssue(context.Background(), "PROJ-1")
	require.NoError(t, err)

	assert.Equal(t, "/rest/api/2/issue/PROJ-1", gotPath)
	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("alice:secret"))
	assert.Equal(t, wantAuth, gotAuth)

	assert.Equal(t, "PROJ-1", issue.Key)
	assert.Equal(t, "Bug", issue.IssueType())
	assert.Equal(t, "PROJ", issue.Fields.Project.Key)
	assert.Equal(t, []string{"4.3.18", "5.1.4"}, issue.FixVersionNames())
}

func TestFetchIssueBearerAuth(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(issueJSON))
	}))
	defer srv.Close()

	// Self-hosted instances authenticate with a personal access token, no username.
	c := jira.NewClient(srv.URL, "", "pat-token")
	_, err := c.FetchIssue(context.Background(), "PROJ-1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer pat-token", gotAuth)
}

func TestFetchIssueErrors(t *testing.T) {
	t.Run("http error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"errorMessages":["Issue does not exist"]}`, http.StatusNotFound)
		}))
		defer srv.Close()

		c := jira.NewClient(srv.URL, "alice", "secret")
		_, err := c.FetchIssue(context.Background(), "PROJ-404")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("missing configuration", func(t *testing.T) {
		_, err := jira.NewClient("", "", "").FetchIssue(context.Background(), "PROJ-1")
		assert.ErrorContains(t, err, "not configured")

		_, err = jira.NewClient("https://jira.example.com", "alice", "").FetchIssue(context.Background(), "PROJ-1")
		assert.ErrorContains(t, err, "token not configured")
	})

	t.Run("issue type unset", func(t *testing.T) {
		issue := &jira.Issue{Key: "PROJ-2"}
		assert.Empty(t, issue.IssueType())
		assert.Empty(t, issue.FixVersionNames())
	})
}
