// Package wandb talks to the Weights & Biases GraphQL API, which tracks
// benchmark runs. Its only write operation is deleting runs, used to sweep a
// project clean between benchmark campaigns.
package wandb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	back "github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	defaultBaseURL = "https://api.wandb.ai/graphql"
	pageSize       = 100

	backoffAttempts = 2
	backoffInterval = time.Second
	backoffMax      = time.Minute
)

var listRunsQuery = fmt.Sprintf(`query Runs($entity: String!, $project: String!, $cursor: String) {
  project(name: $project, entityName: $entity) {
    runs(first: %d, after: $cursor) {
      edges { node { id name } }
      pageInfo { endCursor hasNextPage }
    }
  }
}`, pageSize)

const deleteRunMutation = `mutation DeleteRun($id: ID!) {
  deleteRun(input: {id: $id}) { clientMutationId }
}`

// Run identifies one tracked run.
type Run struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Client is an authenticated Weights & Biases API client.
type Client struct {
	// System dependencies.
	log *log.Entry
	cl  *http.Client

	baseURL       string
	key           string
	retryInterval time.Duration
}

// NewClient returns a Client authenticating with the given API key.
func NewClient(key string) *Client {
	return &Client{
		log:           log.WithField("component", "wandb"),
		cl:            cleanhttp.DefaultClient(),
		baseURL:       defaultBaseURL,
		key:           key,
		retryInterval: backoffInterval,
	}
}

// ListRuns returns every run of the given project, following pagination to
// the end.
func (c *Client) ListRuns(ctx context.Context, entity, project string) ([]Run, error) {
	var runs []Run
	var cursor *string
	for {
		page := runsPage{}
		variables := map[string]interface{}{
			"entity":  entity,
			"project": project,
			"cursor":  cursor,
		}
		if err := c.do(ctx, listRunsQuery, variables, &page); err != nil {
			return nil, errors.Wrapf(err, "listing runs of %s/%s", entity, project)
		}
		if page.Project == nil {
			return nil, errors.Errorf("project %s/%s not found", entity, project)
		}

		for _, edge := range page.Project.Runs.Edges {
			runs = append(runs, edge.Node)
		}
		info := page.Project.Runs.PageInfo
		if !info.HasNextPage {
			return runs, nil
		}
		cursor = &info.EndCursor
	}
}

// DeleteRun deletes one run by its API identifier.
func (c *Client) DeleteRun(ctx context.Context, id string) error {
	if err := c.do(ctx, deleteRunMutation, map[string]interface{}{"id": id}, nil); err != nil {
		return errors.Wrapf(err, "deleting run %s", id)
	}
	return nil
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type runsPage struct {
	Project *struct {
		Runs struct {
			Edges []struct {
				Node Run `json:"node"`
			} `json:"edges"`
			PageInfo struct {
				EndCursor   string `json:"endCursor"`
				HasNextPage bool   `json:"hasNextPage"`
			} `json:"pageInfo"`
		} `json:"runs"`
	} `json:"project"`
}

// do posts one GraphQL document and decodes the data envelope into out.
// Transport errors and server errors are retried; client errors and errors
// reported in the GraphQL envelope are not.
func (c *Client) do(
	ctx context.Context, query string, variables map[string]interface{}, out interface{},
) error {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return errors.Wrap(err, "cannot marshal api request")
	}

	var body []byte
	if err := back.Retry(func() error {
		var postErr error
		body, postErr = c.post(ctx, payload)
		return postErr
	}, back.WithContext(c.backoff(), ctx)); err != nil {
		return err
	}

	resp := graphQLResponse{}
	if err := json.Unmarshal(body, &resp); err != nil {
		return errors.Wrap(err, "cannot unmarshal api response")
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, gqlErr := range resp.Errors {
			msgs = append(msgs, gqlErr.Message)
		}
		return errors.Errorf("api request failed: %s", strings.Join(msgs, "; "))
	}
	if out == nil {
		return nil
	}
	return errors.Wrap(json.Unmarshal(resp.Data, out), "cannot unmarshal api response data")
}

func (c *Client) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, back.Permanent(fmt.Errorf("failed creating api request: %w", err))
	}
	req.SetBasicAuth("api", c.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.cl.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending api request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log.WithError(err).Warn("failed to close response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading api response: %w", err)
	}
	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("api returned %v", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, back.Permanent(fmt.Errorf("api returned %v", resp.StatusCode))
	default:
		return body, nil
	}
}

func (c *Client) backoff() back.BackOff {
	bf := back.NewExponentialBackOff()
	bf.InitialInterval = c.retryInterval
	bf.MaxInterval = backoffMax
	return back.WithMaxRetries(bf, backoffAttempts)
}
