package workload

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a workload as recorded by the ledger
type Status string

const (
	// StatusPending means the workload is queued and not yet claimed by any dataplane
	StatusPending Status = "pending"
	// StatusClaimed means a dataplane took ownership but has not launched it yet
	StatusClaimed Status = "claimed"
	// StatusLaunched means the pods were created
	StatusLaunched Status = "launched"
	// StatusRunning means the workload reported a heartbeat
	StatusRunning Status = "running"
	// StatusSuccess is terminal
	StatusSuccess Status = "success"
	// StatusFailure is terminal
	StatusFailure Status = "failure"
	// StatusCancelled is terminal
	StatusCancelled Status = "cancelled"
)

// ActiveStatuses are the non-terminal statuses a workload can be in
var ActiveStatuses = []Status{StatusPending, StatusClaimed, StatusLaunched, StatusRunning}

// IsTerminal reports whether no further transitions are expected
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusCancelled:
		return true
	default:
		return false
	}
}

// Type is the kind of work a workload performs
type Type string

const (
	// TypeSync replicates data between a source and a destination
	TypeSync Type = "sync"
	// TypeCheck validates a connector configuration
	TypeCheck Type = "check"
	// TypeDiscover discovers a source's catalog
	TypeDiscover Type = "discover"
	// TypeSpec fetches a connector's specification
	TypeSpec Type = "spec"
)

// Workload is a unit of connector-execution work tracked by the ledger
type Workload struct {
	ID           string            `json:"id"`
	Status       Status            `json:"status"`
	DataplaneID  string            `json:"dataplaneId,omitempty"`
	AutoID       string            `json:"autoId"`
	Type         Type              `json:"type"`
	Labels       map[string]string `json:"labels,omitempty"`
	InputPayload json.RawMessage   `json:"inputPayload,omitempty"`
	MutexKey     string            `json:"mutexKey,omitempty"`
	CreatedAt    *time.Time        `json:"createdAt,omitempty"`
}

// DataplaneInitResponse is the identity assigned to this plane by the control plane
type DataplaneInitResponse struct {
	DataplaneID        string `json:"dataplaneId"`
	DataplaneName      string `json:"dataplaneName"`
	DataplaneEnabled   bool   `json:"dataplaneEnabled"`
	DataplaneGroupID   string `json:"dataplaneGroupId"`
	DataplaneGroupName string `json:"dataplaneGroupName"`
}

type listRequest struct {
	Dataplane []string `json:"dataplane,omitempty"`
	Status    []Status `json:"status,omitempty"`
}

type listResponse struct {
	Workloads []Workload `json:"workloads"`
}

type pollRequest struct {
	DataplaneGroup string `json:"dataplaneGroup"`
	Priority       string `json:"priority,omitempty"`
	Quantity       int    `json:"quantity"`
}

type claimRequest struct {
	WorkloadID  string `json:"workloadId"`
	DataplaneID string `json:"dataplaneId"`
}

type claimResponse struct {
	Claimed bool `json:"claimed"`
}

type launchedRequest struct {
	WorkloadID string `json:"workloadId"`
}

type failureRequest struct {
	WorkloadID string `json:"workloadId"`
	Reason     string `json:"reason,omitempty"`
	Source     string `json:"source"`
}

type initializeRequest struct {
	ClientID string `json:"clientId"`
}
