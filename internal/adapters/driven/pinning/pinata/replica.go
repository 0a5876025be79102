// Package pinata provides a pinning replica backed by the Pinata API.
package pinata

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

	"golang.org/x/time/rate"

	"github.com/custodia-labs/mahuta/internal/core/domain"
	"github.com/custodia-labs/mahuta/internal/core/ports/driven"
)

// Ensure Replica implements the interface.
var _ driven.PinningReplica = (*Replica)(nil)

// Default configuration values.
const (
	DefaultEndpoint          = "https://api.pinata.cloud"
	DefaultTimeout           = 30 * time.Second
	DefaultRequestsPerSecond = 3.0
	DefaultBurst             = 5

	headerAPIKey    = "pinata_api_key"
	headerSecretKey = "pinata_secret_api_key"
	pinListLimit    = 1000
)

// Config holds configuration for the Pinata replica.
type Config struct {
	Name      string
	Endpoint  string
	APIKey    string
	SecretKey string
	// HostNodes are multiaddrs of nodes already holding the content.
	HostNodes []string
	Timeout   time.Duration

	RequestsPerSecond float64
	Burst             int
}

// Replica pins through Pinata.
type Replica struct {
	client    *http.Client
	limiter   *rate.Limiter
	name      string
	endpoint  string
	apiKey    string
	secretKey string
	hostNodes []string
}

type pinRequest struct {
	HashToPin string   `json:"hashToPin"`
	HostNodes []string `json:"host_nodes,omitempty"`
}

type unpinRequest struct {
	Hash string `json:"ipfs_pin_hash"`
}

type pinListResponse struct {
	Count int `json:"count"`
	Rows  []struct {
		ID   string `json:"id"`
		Hash string `json:"ipfs_pin_hash"`
	} `json:"rows"`
}

// NewReplica creates a Pinata replica. Both keys are required.
func NewReplica(cfg Config) (*Replica, error) {
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: pinata api key and secret key are required", domain.ErrNotConfigured)
	}
	if cfg.Name == "" {
		cfg.Name = string(domain.ReplicaPinata)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}

	return &Replica{
		client:    &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		name:      cfg.Name,
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:    cfg.APIKey,
		secretKey: cfg.SecretKey,
		hostNodes: cfg.HostNodes,
	}, nil
}

// Name returns the replica name.
func (r *Replica) Name() string {
	return r.name
}

// String describes the replica without leaking the secret key.
func (r *Replica) String() string {
	return fmt.Sprintf("pinata [endpoint: %s, apiKey: %s, secretKey: %s]",
		r.endpoint, r.apiKey, obfuscate(r.secretKey))
}

// Authenticate checks the keys against the API.
func (r *Replica) Authenticate(ctx context.Context) error {
	resp, err := r.do(ctx, http.MethodGet, "/data/testAuthentication", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %s rejected credentials", domain.ErrConnection, r)
	}
	return checkStatus(resp, "authenticate")
}

// Pin asks Pinata to pin id by hash.
func (r *Replica) Pin(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: content id is empty", domain.ErrInvalidArgument)
	}
	resp, err := r.do(ctx, http.MethodPost, "/pinning/pinHashToIPFS", pinRequest{HashToPin: id, HostNodes: r.hostNodes})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp, "pin "+id)
}

// Unpin asks Pinata to drop id.
func (r *Replica) Unpin(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: content id is empty", domain.ErrInvalidArgument)
	}
	resp, err := r.do(ctx, http.MethodPost, "/pinning/removePinFromIPFS", unpinRequest{Hash: id})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp, "unpin "+id)
}

// Tracked returns up to the first thousand pinned ids, sorted.
func (r *Replica) Tracked(ctx context.Context) ([]string, error) {
	path := fmt.Sprintf("/data/pinList?status=pinned&pageLimit=%d", pinListLimit)
	resp, err := r.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, "list pins"); err != nil {
		return nil, err
	}

	var list pinListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("%w: decode pin list: %v", domain.ErrTechnical, err)
	}
	ids := make([]string, 0, len(list.Rows))
	for _, row := range list.Rows {
		if row.Hash != "" {
			ids = append(ids, row.Hash)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *Replica) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.endpoint+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(headerAPIKey, r.apiKey)
	req.Header.Set(headerSecretKey, r.secretKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: pinata %s: %v", domain.ErrConnection, r.endpoint, err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response, action string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("%w: pinata %s (status %d): %s",
		domain.ErrTechnical, action, resp.StatusCode, strings.TrimSpace(string(body)))
}

func obfuscate(key string) string {
	if len(key) < 5 {
		return "*********"
	}
	return key[:5] + "***********"
}
