// Package ipfs provides a content store over the HTTP API of an IPFS node.
package ipfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/custodia-labs/mahuta/internal/core/domain"
	"github.com/custodia-labs/mahuta/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.StorageBackend = (*Store)(nil)

// Store talks to a single IPFS node.
type Store struct {
	sh  *shell.Shell
	url string
}

// NewStore returns a store for the node API at url, e.g. "localhost:5001".
func NewStore(url string) (*Store, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: ipfs api url is empty", domain.ErrNotConfigured)
	}
	return &Store{sh: shell.NewShell(url), url: url}, nil
}

// Name returns "ipfs".
func (s *Store) Name() string {
	return "ipfs"
}

// Write adds data to the node without pinning it.
func (s *Store) Write(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty payload", domain.ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, err := s.sh.Add(bytes.NewReader(data), shell.Pin(false))
	if err != nil {
		return "", apiError("add", err)
	}
	return id, nil
}

// Read fetches the payload of id. The node may search the network for
// content it does not hold, so callers bound Read with a deadline.
func (s *Store) Read(ctx context.Context, id string) ([]byte, error) {
	resp, err := s.sh.Request("cat", id).Send(ctx)
	if err != nil {
		return nil, apiError("cat", err)
	}
	defer resp.Close()
	if resp.Error != nil {
		return nil, apiError("cat", resp.Error)
	}

	data, err := io.ReadAll(resp.Output)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: read cat output: %v", domain.ErrTechnical, err)
	}
	return data, nil
}

// Pin pins id recursively.
func (s *Store) Pin(ctx context.Context, id string) error {
	if err := s.sh.Request("pin/add", id).Option("recursive", true).Exec(ctx, nil); err != nil {
		return apiError("pin/add", err)
	}
	return nil
}

// Unpin removes the recursive pin of id. Content that is not pinned is
// left alone.
func (s *Store) Unpin(ctx context.Context, id string) error {
	err := s.sh.Request("pin/rm", id).Option("recursive", true).Exec(ctx, nil)
	if err != nil && !isNotPinned(err) {
		return apiError("pin/rm", err)
	}
	return nil
}

type pinList struct {
	Keys map[string]struct {
		Type string
	}
}

// ListPinned returns the recursively pinned ids, sorted.
func (s *Store) ListPinned(ctx context.Context) ([]string, error) {
	var out pinList
	if err := s.sh.Request("pin/ls").Option("type", "recursive").Exec(ctx, &out); err != nil {
		return nil, apiError("pin/ls", err)
	}
	ids := make([]string, 0, len(out.Keys))
	for id := range out.Keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Ping asks the node for its identity.
func (s *Store) Ping(ctx context.Context) error {
	var out struct {
		ID string
	}
	if err := s.sh.Request("id").Exec(ctx, &out); err != nil {
		return fmt.Errorf("%w: ipfs node %s: %v", domain.ErrConnection, s.url, err)
	}
	return nil
}

// Close is a no-op; the shell holds no resources beyond its http client.
func (s *Store) Close() error {
	return nil
}

func isNotPinned(err error) bool {
	return strings.Contains(err.Error(), "not pinned")
}

// apiError maps shell errors onto domain errors.
func apiError(cmd string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var shellErr *shell.Error
	if errors.As(err, &shellErr) {
		if strings.Contains(shellErr.Message, "not found") {
			return fmt.Errorf("%w: ipfs %s: %s", domain.ErrNotFound, cmd, shellErr.Message)
		}
		return fmt.Errorf("%w: ipfs %s: %s", domain.ErrTechnical, cmd, shellErr.Message)
	}
	return fmt.Errorf("%w: ipfs %s: %v", domain.ErrTechnical, cmd, err)
}
