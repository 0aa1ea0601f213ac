// Package workload provides the client for the workload ledger exposed by the control plane.
// The ledger is the source of truth for which workloads exist and which dataplane owns them.
package workload

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/stacklok/workload-launcher/internal/httpclient"
)

const (
	listPath       = "/api/v1/workload/list"
	pollPath       = "/api/v1/workload/queue/poll"
	claimPath      = "/api/v1/workload/claim"
	launchedPath   = "/api/v1/workload/launched"
	failurePath    = "/api/v1/workload/failure"
	initializePath = "/api/v1/dataplanes/initialize"

	// failureSource identifies this component in failure reports
	failureSource = "launcher"
)

// Client talks to the workload ledger and the dataplane registration endpoint
//
//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=client.go Client
type Client interface {
	// ListWorkloads returns the workloads owned by any of the dataplanes in one of the statuses
	ListWorkloads(ctx context.Context, dataplaneIDs []string, statuses []Status) ([]Workload, error)

	// PollQueue returns up to quantity pending workloads for the dataplane group
	PollQueue(ctx context.Context, groupID, priority string, quantity int) ([]Workload, error)

	// Claim attempts to take ownership of a workload. It returns false if another plane won.
	Claim(ctx context.Context, workloadID, dataplaneID string) (bool, error)

	// Launched records that the workload's pods were created
	Launched(ctx context.Context, workloadID string) error

	// Failure records that the workload could not be launched
	Failure(ctx context.Context, workloadID, reason string) error

	// InitializeDataplane registers this plane and returns its identity
	InitializeDataplane(ctx context.Context, clientID string) (*DataplaneInitResponse, error)
}

// HTTPClient implements Client on top of the control plane REST API
type HTTPClient struct {
	baseURL string
	http    httpclient.Client
}

// NewHTTPClient creates a ledger client rooted at baseURL
func NewHTTPClient(baseURL string, client httpclient.Client) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
	}
}

func (c *HTTPClient) url(path string) string {
	return c.baseURL + path
}

// ListWorkloads implements Client.ListWorkloads
func (c *HTTPClient) ListWorkloads(ctx context.Context, dataplaneIDs []string, statuses []Status) ([]Workload, error) {
	var resp listResponse
	req := listRequest{Dataplane: dataplaneIDs, Status: statuses}
	if err := c.http.Do(ctx, http.MethodPost, c.url(listPath), req, &resp); err != nil {
		return nil, fmt.Errorf("failed to list workloads: %w", err)
	}
	return resp.Workloads, nil
}

// PollQueue implements Client.PollQueue
func (c *HTTPClient) PollQueue(ctx context.Context, groupID, priority string, quantity int) ([]Workload, error) {
	var resp listResponse
	req := pollRequest{DataplaneGroup: groupID, Priority: priority, Quantity: quantity}
	if err := c.http.Do(ctx, http.MethodPost, c.url(pollPath), req, &resp); err != nil {
		return nil, fmt.Errorf("failed to poll workload queue: %w", err)
	}
	return resp.Workloads, nil
}

// Claim implements Client.Claim
func (c *HTTPClient) Claim(ctx context.Context, workloadID, dataplaneID string) (bool, error) {
	var resp claimResponse
	req := claimRequest{WorkloadID: workloadID, DataplaneID: dataplaneID}
	if err := c.http.Do(ctx, http.MethodPut, c.url(claimPath), req, &resp); err != nil {
		return false, fmt.Errorf("failed to claim workload %s: %w", workloadID, err)
	}
	return resp.Claimed, nil
}

// Launched implements Client.Launched
func (c *HTTPClient) Launched(ctx context.Context, workloadID string) error {
	if err := c.http.Do(ctx, http.MethodPost, c.url(launchedPath), launchedRequest{WorkloadID: workloadID}, nil); err != nil {
		return fmt.Errorf("failed to mark workload %s launched: %w", workloadID, err)
	}
	return nil
}

// Failure implements Client.Failure
func (c *HTTPClient) Failure(ctx context.Context, workloadID, reason string) error {
	req := failureRequest{WorkloadID: workloadID, Reason: reason, Source: failureSource}
	if err := c.http.Do(ctx, http.MethodPost, c.url(failurePath), req, nil); err != nil {
		return fmt.Errorf("failed to mark workload %s failed: %w", workloadID, err)
	}
	return nil
}

// InitializeDataplane implements Client.InitializeDataplane
func (c *HTTPClient) InitializeDataplane(ctx context.Context, clientID string) (*DataplaneInitResponse, error) {
	var resp DataplaneInitResponse
	if err := c.http.Do(ctx, http.MethodPost, c.url(initializePath), initializeRequest{ClientID: clientID}, &resp); err != nil {
		return nil, fmt.Errorf("failed to initialize dataplane: %w", err)
	}
	return &resp, nil
}
