// Package negotiation decides how a sync job's execution containers exchange records:
// which serialization, which transport, and how many sockets.
package negotiation

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/stacklok/workload-launcher/internal/featureflag"
	"github.com/stacklok/workload-launcher/internal/versions"
)

// Negotiator computes the data channel environment for sync jobs.
// It holds no mutable state and is safe for concurrent use.
type Negotiator struct {
	flags    featureflag.Client
	catalogs CatalogFetcher
}

// New creates a Negotiator
func New(flags featureflag.Client, catalogs CatalogFetcher) *Negotiator {
	return &Negotiator{flags: flags, catalogs: catalogs}
}

// Decide returns the per-role environment for the job.
// The only error it returns is *Error, when the connectors share no serialization or transport;
// every other problem yields the legacy environment.
func (n *Negotiator) Decide(ctx context.Context, in *Input) (*ArchitectureEnvironmentVariables, error) {
	logger := slog.With("workload_id", in.WorkloadID, "connection_id", in.ConnectionID)
	contexts := []featureflag.Context{
		featureflag.Workspace(in.WorkspaceID),
		featureflag.Connection(in.ConnectionID),
	}

	if in.FileTransfer || in.Reset || n.flags.BoolVariation(ctx, featureflag.ForceLegacyDataChannel, contexts...) {
		logger.Debug("Using legacy data channel",
			"file_transfer", in.FileTransfer,
			"reset", in.Reset)
		return LegacyEnvironment(), nil
	}

	if n.flags.BoolVariation(ctx, featureflag.UseSocketDataChannel, contexts...) {
		logger.Debug("Socket data channel forced by flag")
		return n.socketEnvironment(ctx, in, SerializationProtobuf, nil, contexts), nil
	}

	srcOpts, err := ParseIPCOptions(in.Source.IPCOptions)
	if err != nil {
		logger.Debug("Source ipc options unavailable, using legacy data channel", "error", err)
		return LegacyEnvironment(), nil
	}
	dstOpts, err := ParseIPCOptions(in.Destination.IPCOptions)
	if err != nil {
		logger.Debug("Destination ipc options unavailable, using legacy data channel", "error", err)
		return LegacyEnvironment(), nil
	}

	catalog, err := n.fetchCatalog(ctx, in.ConnectionID)
	if err != nil {
		logger.Warn("Failed to fetch catalog, using legacy data channel", "error", err)
		return LegacyEnvironment(), nil
	}
	if catalog.HasMappingFeatures() {
		logger.Debug("Catalog uses hashing or mappers, using legacy data channel")
		return LegacyEnvironment(), nil
	}

	if !versions.Same(srcOpts.DataChannel.Version, dstOpts.DataChannel.Version) {
		logger.Debug("Data channel versions differ, using legacy data channel",
			"source_version", srcOpts.DataChannel.Version,
			"destination_version", dstOpts.DataChannel.Version,
			"equivalent", versions.Equivalent(srcOpts.DataChannel.Version, dstOpts.DataChannel.Version))
		return LegacyEnvironment(), nil
	}

	serialization, ok := pick(
		srcOpts.DataChannel.SupportedSerialization,
		dstOpts.DataChannel.SupportedSerialization,
		SerializationProtobuf, SerializationJSONL)
	if !ok {
		return nil, newSerializationError(srcOpts.DataChannel.SupportedSerialization, dstOpts.DataChannel.SupportedSerialization)
	}

	transport, ok := pick(
		srcOpts.DataChannel.SupportedTransport,
		dstOpts.DataChannel.SupportedTransport,
		TransportSocket, TransportStdio)
	if !ok {
		return nil, newTransportError(srcOpts.DataChannel.SupportedTransport, dstOpts.DataChannel.SupportedTransport)
	}

	logger.Debug("Negotiated data channel",
		"serialization", serialization,
		"transport", transport)

	if transport == TransportSocket {
		return n.socketEnvironment(ctx, in, serialization, catalog, contexts), nil
	}
	return plainEnvironment(serialization), nil
}

func (n *Negotiator) fetchCatalog(ctx context.Context, connectionID string) (*Catalog, error) {
	if n.catalogs == nil {
		return &Catalog{}, nil
	}
	catalog, err := n.catalogs.FetchCatalog(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if catalog == nil {
		return &Catalog{}, nil
	}
	return catalog, nil
}

// socketEnvironment builds the socket environment. A nil catalog is fetched only if the socket
// count depends on it, and an unreadable one yields a single socket.
func (n *Negotiator) socketEnvironment(
	ctx context.Context,
	in *Input,
	serialization Serialization,
	catalog *Catalog,
	contexts []featureflag.Context,
) *ArchitectureEnvironmentVariables {
	if override := n.flags.StringVariation(ctx, featureflag.DataChannelSerializationOverride, contexts...); override != "" {
		if s, ok := ParseSerialization(override); ok {
			serialization = s
		} else {
			slog.Warn("Ignoring unknown serialization override",
				"workload_id", in.WorkloadID,
				"override", override)
		}
	}

	count := n.socketCount(ctx, in, catalog, contexts)
	return socketEnvironmentFor(serialization, count)
}

func (n *Negotiator) socketCount(
	ctx context.Context,
	in *Input,
	catalog *Catalog,
	contexts []featureflag.Context,
) int {
	if override := n.flags.IntVariation(ctx, featureflag.DataChannelSocketCount, contexts...); override > 0 {
		return override
	}

	if IsIcebergDestination(in.Destination) {
		if catalog == nil {
			fetched, err := n.fetchCatalog(ctx, in.ConnectionID)
			if err != nil {
				slog.Warn("Failed to fetch catalog for iceberg destination, using a single socket",
					"workload_id", in.WorkloadID,
					"error", err)
				return 1
			}
			catalog = fetched
		}
		if catalog.HasDedupStream() {
			return 1
		}
	}

	return cpuHeuristicSocketCount(in.Source, in.Destination)
}

// pick returns the first preferred value both sides support
func pick[T comparable](src, dst []T, preference ...T) (T, bool) {
	srcSet := make(map[T]struct{}, len(src))
	for _, v := range src {
		srcSet[v] = struct{}{}
	}
	dstSet := make(map[T]struct{}, len(dst))
	for _, v := range dst {
		dstSet[v] = struct{}{}
	}

	for _, p := range preference {
		_, inSrc := srcSet[p]
		_, inDst := dstSet[p]
		if inSrc && inDst {
			return p, true
		}
	}
	var zero T
	return zero, false
}

// LegacyEnvironment is the conservative JSONL over stdio environment
func LegacyEnvironment() *ArchitectureEnvironmentVariables {
	return plainEnvironment(SerializationJSONL)
}

func plainEnvironment(serialization Serialization) *ArchitectureEnvironmentVariables {
	connector := func() []EnvVar {
		return []EnvVar{
			{Name: EnvDataChannelFormat, Value: string(serialization)},
			{Name: EnvDataChannelMedium, Value: string(TransportStdio)},
		}
	}
	return &ArchitectureEnvironmentVariables{
		SourceEnvVars:      connector(),
		DestinationEnvVars: connector(),
		PlatformEnvVars:    []EnvVar{{Name: EnvPlatformMode, Value: string(PlatformModeOrchestrator)}},
	}
}

func socketEnvironmentFor(serialization Serialization, count int) *ArchitectureEnvironmentVariables {
	paths := SocketPaths(count)
	connector := func() []EnvVar {
		return []EnvVar{
			{Name: EnvDataChannelFormat, Value: string(serialization)},
			{Name: EnvDataChannelMedium, Value: string(TransportSocket)},
			{Name: EnvDataChannelSocketPaths, Value: paths},
		}
	}
	return &ArchitectureEnvironmentVariables{
		SourceEnvVars:      connector(),
		DestinationEnvVars: connector(),
		PlatformEnvVars:    []EnvVar{{Name: EnvPlatformMode, Value: string(PlatformModeBookkeeper)}},
	}
}

// SocketCount returns the number of socket paths in an environment, zero for non-socket environments
func (e *ArchitectureEnvironmentVariables) SocketCount() int {
	paths, ok := Lookup(e.SourceEnvVars, EnvDataChannelSocketPaths)
	if !ok || paths == "" {
		return 0
	}
	return strings.Count(paths, ",") + 1
}

// String summarises the environment for logs
func (e *ArchitectureEnvironmentVariables) String() string {
	format, _ := Lookup(e.SourceEnvVars, EnvDataChannelFormat)
	medium, _ := Lookup(e.SourceEnvVars, EnvDataChannelMedium)
	return format + "/" + medium + "/sockets=" + strconv.Itoa(e.SocketCount())
}
