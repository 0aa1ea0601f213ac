package negotiation

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"k8s.io/apimachinery/pkg/api/resource"
)

// Socket path layout shared with the connector containers
const (
	SocketDirectory = "/var/run/sockets"
	socketPrefix    = "socket_"
	socketSuffix    = ".sock"
)

// icebergDefinitionIDs are connector definitions writing to Iceberg-backed data lakes
var icebergDefinitionIDs = map[string]struct{}{
	"716ca874-520b-4902-9f80-9fad66754b89": {}, // s3 data lake
	"df65a8f3-9908-451b-aa9b-445462803560": {}, // iceberg
	"37a928c1-2d5c-431a-a97d-ae236bd1ea0c": {}, // polaris
}

// icebergRepositories are the image repositories of the same connectors
var icebergRepositories = map[string]struct{}{
	"airbyte/destination-s3-data-lake": {},
	"airbyte/destination-iceberg":      {},
	"airbyte/destination-polaris":      {},
}

// IsIcebergDestination reports whether the connector is on the Iceberg allow-list
func IsIcebergDestination(c Connector) bool {
	if _, ok := icebergDefinitionIDs[strings.ToLower(c.DefinitionID)]; ok {
		return true
	}
	if c.Image == "" {
		return false
	}
	ref, err := name.ParseReference(c.Image)
	if err != nil {
		return false
	}
	_, ok := icebergRepositories[ref.Context().RepositoryStr()]
	return ok
}

// SocketPaths returns the deterministic, comma-joined list of count socket paths
func SocketPaths(count int) string {
	paths := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		paths = append(paths, fmt.Sprintf("%s/%s%d%s", SocketDirectory, socketPrefix, i, socketSuffix))
	}
	return strings.Join(paths, ",")
}

// cpuHeuristicSocketCount is 2 × min(source, destination) cpu, floored, never below 1
func cpuHeuristicSocketCount(src, dst Connector) int {
	count := int(math.Floor(2 * math.Min(cpuLimit(src), cpuLimit(dst))))
	if count < 1 {
		return 1
	}
	return count
}

// cpuLimit parses the declared limit; unset, unparseable or non-positive values count as one core
func cpuLimit(c Connector) float64 {
	if c.Resources.CPULimit == "" {
		return 1
	}
	q, err := resource.ParseQuantity(c.Resources.CPULimit)
	if err != nil {
		return 1
	}
	v := q.AsApproximateFloat64()
	if v <= 0 {
		return 1
	}
	return v
}
