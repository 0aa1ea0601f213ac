package negotiation

import "context"

// DestinationSyncMode controls how the destination writes a stream
type DestinationSyncMode string

// Destination sync modes
const (
	SyncModeAppend         DestinationSyncMode = "append"
	SyncModeOverwrite      DestinationSyncMode = "overwrite"
	SyncModeAppendDedup    DestinationSyncMode = "append_dedup"
	SyncModeOverwriteDedup DestinationSyncMode = "overwrite_dedup"
)

// IsDedup reports whether the mode deduplicates on primary key
func (m DestinationSyncMode) IsDedup() bool {
	return m == SyncModeAppendDedup || m == SyncModeOverwriteDedup
}

// Stream is one configured stream of a connection's catalog
type Stream struct {
	Name                string              `json:"name"`
	Namespace           string              `json:"namespace,omitempty"`
	DestinationSyncMode DestinationSyncMode `json:"destinationSyncMode"`
	HashedFields        []string            `json:"hashedFields,omitempty"`
	Mappers             []string            `json:"mappers,omitempty"`
}

// Catalog is the live configured catalog of a connection
type Catalog struct {
	Streams []Stream `json:"streams"`
}

// HasMappingFeatures reports whether any stream hashes fields or applies mappers
func (c *Catalog) HasMappingFeatures() bool {
	for _, s := range c.Streams {
		if len(s.HashedFields) > 0 || len(s.Mappers) > 0 {
			return true
		}
	}
	return false
}

// HasDedupStream reports whether any stream uses a deduplicating sync mode
func (c *Catalog) HasDedupStream() bool {
	for _, s := range c.Streams {
		if s.DestinationSyncMode.IsDedup() {
			return true
		}
	}
	return false
}

//go:generate mockgen -destination=mocks/mock_catalog.go -package=mocks -source=catalog.go CatalogFetcher

// CatalogFetcher reads a connection's live catalog
type CatalogFetcher interface {
	FetchCatalog(ctx context.Context, connectionID string) (*Catalog, error)
}
