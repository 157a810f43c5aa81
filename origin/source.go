// Package origin abstracts the remote side of a cached resource: a HEAD
// for length/attributes, a Range GET for bytes, and cancellation.
// Generalizes the teacher's dlClient/httpReader connection handling
// (client.go) into a per-call interface instead of a pooled-reader one,
// since the hybrid server's own chunk-by-chunk mutex release already
// provides the interleaving the teacher used pooled connections for.
package origin

import (
	"context"
	"io"
)

// Stat is what a HEAD can learn about a resource.
type Stat struct {
	TotalSize int64
	MimeType  string
	FileName  string // parsed from Content-Disposition, if present
}

// FileStat is published on a resource's file-stat event hub the first
// time Head resolves interesting attributes.
type FileStat struct {
	OriginURL string
	FileName  string
	TotalSize int64
	MimeType  string
	Extension string
}

// Source is the abstract capability spec.md §4.C requires of the
// remote side of a resource.
type Source interface {
	// Head issues (or returns the cached result of) an upstream HEAD.
	// Safe to call more than once; only the first successful call does
	// network I/O.
	Head(ctx context.Context) (Stat, error)

	// Fetch opens an upstream byte-range GET for [start,end] inclusive.
	// The returned stream must be closed by the caller to release the
	// connection; closing it early cancels the fetch.
	Fetch(ctx context.Context, start, end int64) (io.ReadCloser, error)

	// Cancel aborts any fetch currently in flight.
	Cancel()

	// Dispose releases the underlying client. The Source must not be
	// used after Dispose.
	Dispose()
}
