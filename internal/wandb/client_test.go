package wandb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	c := NewClient("secret")
	c.baseURL = ts.URL
	c.cl = ts.Client()
	c.retryInterval = time.Millisecond
	return c
}

func TestListRunsPaginates(t *testing.T) {
	var calls []graphQLRequest
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "api", user)
		require.Equal(t, "secret", pass)

		req := graphQLRequest{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		calls = append(calls, req)

		if len(calls) == 1 {
			fmt.Fprint(w, `{"data": {"project": {"runs": {
				"edges": [{"node": {"id": "r1", "name": "one"}}, {"node": {"id": "r2", "name": "two"}}],
				"pageInfo": {"endCursor": "c1", "hasNextPage": true}}}}}`)
			return
		}
		fmt.Fprint(w, `{"data": {"project": {"runs": {
			"edges": [{"node": {"id": "r3", "name": "three"}}],
			"pageInfo": {"endCursor": "c2", "hasNextPage": false}}}}}`)
	})

	runs, err := c.ListRuns(context.Background(), "gladia", "benchmarks")
	require.NoError(t, err)
	require.Equal(t, []Run{{ID: "r1", Name: "one"}, {ID: "r2", Name: "two"}, {ID: "r3", Name: "three"}}, runs)

	require.Len(t, calls, 2)
	require.Equal(t, "gladia", calls[0].Variables["entity"])
	require.Equal(t, "benchmarks", calls[0].Variables["project"])
	require.Nil(t, calls[0].Variables["cursor"])
	require.Equal(t, "c1", calls[1].Variables["cursor"])
}

func TestListRunsProjectMissing(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": {"project": null}}`)
	})

	_, err := c.ListRuns(context.Background(), "gladia", "nope")
	require.Error(t, err)
	require.Contains(t, err.Error(), "project gladia/nope not found")
}

func TestDoRetriesServerErrors(t *testing.T) {
	calls := 0
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"data": {"deleteRun": {"clientMutationId": null}}}`)
	})

	require.NoError(t, c.DeleteRun(context.Background(), "r1"))
	require.Equal(t, 2, calls)
}

func TestDoClientErrorsArePermanent(t *testing.T) {
	calls := 0
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	})

	err := c.DeleteRun(context.Background(), "r1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "api returned 403")
	require.Equal(t, 1, calls, "client errors must not be retried")
}

func TestDoSurfacesGraphQLErrors(t *testing.T) {
	calls := 0
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"errors": [{"message": "run not found"}]}`)
	})

	err := c.DeleteRun(context.Background(), "gone")
	require.Error(t, err)
	require.Contains(t, err.Error(), "run not found")
	require.Equal(t, 1, calls)
}

func TestDeleteRunSendsMutation(t *testing.T) {
	var req graphQLRequest
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		fmt.Fprint(w, `{"data": {"deleteRun": {"clientMutationId": null}}}`)
	})

	require.NoError(t, c.DeleteRun(context.Background(), "r42"))
	require.Contains(t, req.Query, "deleteRun")
	require.Equal(t, "r42", req.Variables["id"])
}
