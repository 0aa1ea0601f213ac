// Package featureflag provides typed feature flags evaluated against contextual scopes
// such as a workspace, a connection or a dataplane.
package featureflag

import "context"

// Kinds of evaluation contexts
const (
	KindWorkspace     = "workspace"
	KindConnection    = "connection"
	KindDataplane     = "dataplane"
	KindDataplaneName = "dataplane-name"
	KindWorkload      = "workload"
)

// Context is one scope a flag can be overridden for
type Context struct {
	Kind string
	Key  string
}

// String renders the context the way override keys are written in flag files
func (c Context) String() string {
	return c.Kind + ":" + c.Key
}

// Workspace returns a workspace context
func Workspace(id string) Context { return Context{Kind: KindWorkspace, Key: id} }

// Connection returns a connection context
func Connection(id string) Context { return Context{Kind: KindConnection, Key: id} }

// Dataplane returns a dataplane id context
func Dataplane(id string) Context { return Context{Kind: KindDataplane, Key: id} }

// DataplaneName returns a dataplane name context
func DataplaneName(name string) Context { return Context{Kind: KindDataplaneName, Key: name} }

// Flag is a named flag with a typed built-in default
type Flag[T bool | int | string] struct {
	Name    string
	Default T
}

// Flags consulted by the launcher
var (
	// ForceLegacyDataChannel is a kill-switch forcing stdio/jsonl between connector containers
	ForceLegacyDataChannel = Flag[bool]{Name: "platform.force-legacy-data-channel", Default: false}

	// UseSocketDataChannel skips capability negotiation and always builds the socket environment
	UseSocketDataChannel = Flag[bool]{Name: "platform.use-socket-data-channel", Default: false}

	// DataChannelSerializationOverride replaces the negotiated serialization when it names a known format
	DataChannelSerializationOverride = Flag[string]{Name: "platform.data-channel-serialization-override", Default: ""}

	// DataChannelSocketCount overrides the computed socket count when > 0
	DataChannelSocketCount = Flag[int]{Name: "platform.data-channel-socket-count", Default: 0}

	// DisableIdentityHandshake keeps the statically configured dataplane identity
	DisableIdentityHandshake = Flag[bool]{Name: "dataplane.disable-identity-handshake", Default: false}

	// RunawayPodDetection enables marking pods that have no active workload
	RunawayPodDetection = Flag[bool]{Name: "runaway-pods.detection-enabled", Default: false}

	// RunawayPodDeletion allows the sweep to actually delete marked pods
	RunawayPodDeletion = Flag[bool]{Name: "runaway-pods.deletion-enabled", Default: false}
)

// Client evaluates flags
type Client interface {
	BoolVariation(ctx context.Context, flag Flag[bool], contexts ...Context) bool
	IntVariation(ctx context.Context, flag Flag[int], contexts ...Context) int
	StringVariation(ctx context.Context, flag Flag[string], contexts ...Context) string
}
