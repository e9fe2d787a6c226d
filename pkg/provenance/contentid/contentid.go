// Package contentid derives content-addressed identifiers for blobs.
// Identifiers are CIDv1 strings using the "raw" multicodec and a
// sha2-256 multihash, so any IPFS-compatible tool resolves them.
package contentid

import (
	"io"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/medchain/provenance/pkg/provenance"
)

// FromBytes returns the CIDv1 (raw + sha2-256) for data.
func FromBytes(data []byte) (provenance.ContentID, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	return provenance.ContentID(cid.NewCidV1(cid.Raw, sum).String()), nil
}

// FromReader drains r and returns the CIDv1 for its contents along
// with the bytes read, so callers can hash and store in one pass.
func FromReader(r io.Reader) (provenance.ContentID, []byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", nil, err
	}
	id, err := FromBytes(data)
	if err != nil {
		return "", nil, err
	}
	return id, data, nil
}

// Parse validates that s is a well-formed CID.
func Parse(s string) (provenance.ContentID, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return "", err
	}
	return provenance.ContentID(c.String()), nil
}
