package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/stacklok/workload-launcher/internal/negotiation"
	"github.com/stacklok/workload-launcher/internal/workload"
)

// LaunchInput is one workload entering the launch pipeline
type LaunchInput struct {
	WorkloadID string
	AutoID     string
	Type       workload.Type
	Labels     map[string]string
	MutexKey   string
	Payload    json.RawMessage

	// Resumed is set for claims picked up again after a restart
	Resumed bool
}

// NewLaunchInput converts a ledger record into a pipeline input
func NewLaunchInput(w workload.Workload, resumed bool) LaunchInput {
	return LaunchInput{
		WorkloadID: w.ID,
		AutoID:     w.AutoID,
		Type:       w.Type,
		Labels:     w.Labels,
		MutexKey:   w.MutexKey,
		Payload:    w.InputPayload,
		Resumed:    resumed,
	}
}

// connectorPayload is the input of check, discover and spec workloads
type connectorPayload struct {
	Image     string                `json:"image"`
	Resources negotiation.Resources `json:"resources"`
	Args      []string              `json:"args,omitempty"`
}

func (in LaunchInput) syncPayload() (*negotiation.Input, error) {
	var p negotiation.Input
	if err := json.Unmarshal(in.Payload, &p); err != nil {
		return nil, fmt.Errorf("invalid sync input for workload %s: %w", in.WorkloadID, err)
	}
	if p.Source.Image == "" || p.Destination.Image == "" {
		return nil, fmt.Errorf("sync input for workload %s is missing a connector image", in.WorkloadID)
	}
	p.WorkloadID = in.WorkloadID
	return &p, nil
}

func (in LaunchInput) connectorPayload() (*connectorPayload, error) {
	var p connectorPayload
	if err := json.Unmarshal(in.Payload, &p); err != nil {
		return nil, fmt.Errorf("invalid %s input for workload %s: %w", in.Type, in.WorkloadID, err)
	}
	if p.Image == "" {
		return nil, fmt.Errorf("%s input for workload %s is missing the connector image", in.Type, in.WorkloadID)
	}
	return &p, nil
}
