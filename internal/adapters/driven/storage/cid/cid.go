// Package cid computes content ids for the local content stores.
//
// Ids are base58 encoded sha2-256 multihashes, the same shape an IPFS
// node reports for raw leaves, so ids minted locally can be handed to a
// pinning replica unchanged.
package cid

import (
	"fmt"

	"github.com/multiformats/go-multihash"

	"github.com/custodia-labs/mahuta/internal/core/domain"
)

// Sum returns the content id of data.
func Sum(data []byte) (string, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return mh.B58String(), nil
}

// Validate reports whether id decodes as a multihash.
func Validate(id string) error {
	if id == "" {
		return fmt.Errorf("%w: content id is empty", domain.ErrInvalidArgument)
	}
	if _, err := multihash.FromB58String(id); err != nil {
		return fmt.Errorf("%w: content id %q: %v", domain.ErrInvalidArgument, id, err)
	}
	return nil
}
