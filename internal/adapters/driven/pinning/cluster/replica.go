// Package cluster provides a pinning replica backed by the REST API of an
// IPFS Cluster peer.
package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/mahuta/internal/core/domain"
	"github.com/custodia-labs/mahuta/internal/core/ports/driven"
)

// Ensure Replica implements the interface.
var _ driven.PinningReplica = (*Replica)(nil)

// Default configuration values.
const (
	DefaultEndpoint = "http://localhost:9094"
	DefaultTimeout  = 30 * time.Second
)

// Config holds configuration for the cluster replica.
type Config struct {
	// Name identifies the replica (default: ipfs_cluster).
	Name string
	// Endpoint is the cluster REST API base URL.
	Endpoint string
	// Timeout is the request timeout (default: 30s).
	Timeout time.Duration
}

// Replica pins through an IPFS Cluster peer.
type Replica struct {
	client   *http.Client
	name     string
	endpoint string
}

// NewReplica creates a cluster replica.
func NewReplica(cfg Config) *Replica {
	if cfg.Name == "" {
		cfg.Name = string(domain.ReplicaCluster)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Replica{
		client:   &http.Client{Timeout: cfg.Timeout},
		name:     cfg.Name,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
	}
}

// Name returns the replica name.
func (r *Replica) Name() string {
	return r.name
}

// Pin asks the cluster to pin id on its peers.
func (r *Replica) Pin(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: content id is empty", domain.ErrInvalidArgument)
	}
	resp, err := r.do(ctx, http.MethodPost, "/pins/"+id)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp, "pin")
}

// Unpin asks the cluster to drop id. Unknown pins are not an error.
func (r *Replica) Unpin(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: content id is empty", domain.ErrInvalidArgument)
	}
	resp, err := r.do(ctx, http.MethodDelete, "/pins/"+id)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return checkStatus(resp, "unpin")
}

// pinEntry is one element of GET /pins. Older peers render the cid as
// {"/": "..."}, newer ones as a plain string.
type pinEntry struct {
	CID json.RawMessage `json:"cid"`
}

func (e pinEntry) id() string {
	var s string
	if err := json.Unmarshal(e.CID, &s); err == nil {
		return s
	}
	var link struct {
		Root string `json:"/"`
	}
	if err := json.Unmarshal(e.CID, &link); err == nil {
		return link.Root
	}
	return ""
}

// Tracked lists the pins in the cluster's shared state, sorted.
func (r *Replica) Tracked(ctx context.Context) ([]string, error) {
	resp, err := r.do(ctx, http.MethodGet, "/pins")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, "list pins"); err != nil {
		return nil, err
	}

	entries, err := decodePins(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: decode cluster pins: %v", domain.ErrTechnical, err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if id := e.id(); id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// decodePins accepts a JSON array or newline delimited JSON objects.
func decodePins(body io.Reader) ([]pinEntry, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var entries []pinEntry
	if data[0] == '[' {
		err := json.Unmarshal(data, &entries)
		return entries, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var e pinEntry
		if err := dec.Decode(&e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *Replica) do(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, r.endpoint+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: cluster %s: %v", domain.ErrConnection, r.endpoint, err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response, action string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("%w: cluster %s (status %d): %s",
		domain.ErrTechnical, action, resp.StatusCode, strings.TrimSpace(string(body)))
}
