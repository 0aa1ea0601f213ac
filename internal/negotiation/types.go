package negotiation

import (
	"encoding/json"
	"strings"
)

// Serialization is the record encoding used on the data channel
type Serialization string

const (
	// SerializationProtobuf is the binary columnar encoding
	SerializationProtobuf Serialization = "PROTOBUF"
	// SerializationJSONL is line-delimited JSON
	SerializationJSONL Serialization = "JSONL"
)

// ParseSerialization returns the known serialization named by s, ignoring case and whitespace
func ParseSerialization(s string) (Serialization, bool) {
	switch Serialization(strings.ToUpper(strings.TrimSpace(s))) {
	case SerializationProtobuf:
		return SerializationProtobuf, true
	case SerializationJSONL:
		return SerializationJSONL, true
	default:
		return "", false
	}
}

// Transport is the medium carrying the data channel between containers
type Transport string

const (
	// TransportSocket uses unix domain sockets on a shared volume
	TransportSocket Transport = "SOCKET"
	// TransportStdio pipes records through standard streams
	TransportStdio Transport = "STDIO"
)

// PlatformMode tells the orchestrating container which bookkeeping component to run
type PlatformMode string

const (
	// PlatformModeOrchestrator relays records between source and destination
	PlatformModeOrchestrator PlatformMode = "ORCHESTRATOR"
	// PlatformModeBookkeeper only tracks state while connectors talk over sockets
	PlatformModeBookkeeper PlatformMode = "BOOKKEEPER"
)

// Environment variable names handed to the execution containers
const (
	EnvDataChannelFormat      = "DATA_CHANNEL_FORMAT"
	EnvDataChannelMedium      = "DATA_CHANNEL_MEDIUM"
	EnvDataChannelSocketPaths = "DATA_CHANNEL_SOCKET_PATHS"
	EnvPlatformMode           = "PLATFORM_MODE"
)

// EnvVar is one key/value pair of a container environment
type EnvVar struct {
	Name  string
	Value string
}

// ArchitectureEnvironmentVariables is the negotiation result, one list per execution role
type ArchitectureEnvironmentVariables struct {
	SourceEnvVars      []EnvVar
	DestinationEnvVars []EnvVar
	PlatformEnvVars    []EnvVar
}

// Lookup returns the value of name in vars
func Lookup(vars []EnvVar, name string) (string, bool) {
	for _, v := range vars {
		if v.Name == name {
			return v.Value, true
		}
	}
	return "", false
}

// DataChannel is a connector's declared data channel capabilities
type DataChannel struct {
	Version                string
	SupportedSerialization []Serialization
	SupportedTransport     []Transport
}

// IPCOptions is the per-connector capability declaration
type IPCOptions struct {
	DataChannel DataChannel
}

// Resources are the declared resource requirements of one connector container
type Resources struct {
	// CPULimit is a Kubernetes quantity such as "2" or "500m"
	CPULimit string `json:"cpuLimit,omitempty"`
}

// Connector describes one side of a sync
type Connector struct {
	DefinitionID string          `json:"definitionId"`
	Image        string          `json:"image"`
	IPCOptions   json.RawMessage `json:"ipcOptions,omitempty"`
	Resources    Resources       `json:"resources"`
}

// Input is everything negotiation needs to know about a sync job
type Input struct {
	WorkloadID   string    `json:"workloadId"`
	WorkspaceID  string    `json:"workspaceId"`
	ConnectionID string    `json:"connectionId"`
	FileTransfer bool      `json:"fileTransfer"`
	Reset        bool      `json:"reset"`
	Source       Connector `json:"source"`
	Destination  Connector `json:"destination"`
}
