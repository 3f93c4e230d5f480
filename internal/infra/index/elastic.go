// Package index publishes aggregated profile documents to a full-text
// search index for discovery.
package index

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/stackfolio/stackfolio/internal/domain/profile"
)

var _ profile.SearchIndex = (*ElasticIndex)(nil)

// ElasticConfig holds the Elasticsearch connection settings.
type ElasticConfig struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
}

// ElasticIndex publishes profiles to an Elasticsearch index, one document
// per owner keyed by owner ID.
type ElasticIndex struct {
	client *elasticsearch.Client
	index  string
}

// NewElasticIndex connects to the cluster and verifies it responds.
func NewElasticIndex(ctx context.Context, cfg ElasticConfig) (*ElasticIndex, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("creating search client: %w", err)
	}

	res, err := client.Ping(client.Ping.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("pinging search cluster: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("pinging search cluster: %s", res.String())
	}

	return &ElasticIndex{client: client, index: cfg.Index}, nil
}

// UpsertProfile indexes the profile document under the owner's ID,
// replacing any previous version.
func (e *ElasticIndex) UpsertProfile(ctx context.Context, ownerID string, body []byte) error {
	req := esapi.IndexRequest{
		Index:      e.index,
		DocumentID: ownerID,
		Body:       bytes.NewReader(body),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("indexing profile %s: %w", ownerID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return fmt.Errorf("indexing profile %s: %s: %s", ownerID, res.Status(), msg)
	}
	return nil
}
