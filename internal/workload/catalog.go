package workload

import (
	"context"
	"fmt"
	"net/http"

	"github.com/stacklok/workload-launcher/internal/negotiation"
)

const catalogPath = "/api/v1/connections/catalog"

type catalogRequest struct {
	ConnectionID string `json:"connectionId"`
}

// FetchCatalog returns the connection's configured catalog.
// It satisfies negotiation.CatalogFetcher.
func (c *HTTPClient) FetchCatalog(ctx context.Context, connectionID string) (*negotiation.Catalog, error) {
	var catalog negotiation.Catalog
	if err := c.http.Do(ctx, http.MethodPost, c.url(catalogPath), catalogRequest{ConnectionID: connectionID}, &catalog); err != nil {
		return nil, fmt.Errorf("failed to fetch catalog for connection %s: %w", connectionID, err)
	}
	return &catalog, nil
}

var _ negotiation.CatalogFetcher = (*HTTPClient)(nil)
