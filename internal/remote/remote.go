// Package remote abstracts the single remote replica: an opaque blob
// store holding at most one sealed snapshot document. There is no live
// protocol; every upload replaces the whole blob.
package remote

import (
	"context"
	"time"
)

// Metadata describes the stored snapshot blob.
type Metadata struct {
	ModifiedAt time.Time
	Size       int64
}

// Transport is the blob store the sync cycle pulls from and pushes to.
// Download and Metadata return errors.ErrNoSnapshot when the remote
// holds no document yet.
type Transport interface {
	Upload(ctx context.Context, data []byte) error
	Download(ctx context.Context) ([]byte, error)
	Metadata(ctx context.Context) (*Metadata, error)
}
