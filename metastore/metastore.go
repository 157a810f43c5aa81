// Package metastore saves and loads a Resource's durable attributes and
// cached-byte-set to/from a single ".meta" file per resource. It is a
// pure codec: debouncing and scheduling live on resource.Resource,
// mirroring the teacher's part.go being a codec called by File's
// higher-level SavePart/idleTaskRun logic.
package metastore

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/haldorio/rangeproxy/rangeset"
)

// Attrs holds the resource attributes stored alongside the cached-byte-set.
type Attrs struct {
	ID         string
	OriginURL  string
	TotalSize  int64
	MimeType   string // empty = absent
	FileName   string // empty = absent
	TargetPath string // empty = absent
}

// header is the JSON shape shared by both on-disk variants; the list
// variant adds a "ranges" field, the bitmap variant omits it and writes
// the raw bitmap bytes immediately after the header.
type header struct {
	ID         string            `json:"id"`
	TotalSize  int64             `json:"totalSize"`
	OriginURL  string            `json:"originalUrl"`
	MimeType   *string           `json:"mimeType"`
	FileName   *string           `json:"fileName"`
	TargetPath *string           `json:"targetPath"`
	Ranges     []rangeset.Interval `json:"ranges,omitempty"`
}

func strOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Save writes attrs and set to path, atomically: it writes to a
// sibling ".tmp" file and renames over path, following the teacher's
// write-to-.wpart-then-rename pattern in part.go.
func Save(path string, attrs Attrs, set rangeset.Set) error {
	tmp := path + ".tmp"

	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("metastore: create temp file: %w", err)
	}

	if err := writeTo(out, attrs, set); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}

	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("metastore: close temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("metastore: rename temp file: %w", err)
	}
	return nil
}

func writeTo(out io.Writer, attrs Attrs, set rangeset.Set) error {
	h := header{
		ID:         attrs.ID,
		TotalSize:  attrs.TotalSize,
		OriginURL:  attrs.OriginURL,
		MimeType:   strOrNil(attrs.MimeType),
		FileName:   strOrNil(attrs.FileName),
		TargetPath: strOrNil(attrs.TargetPath),
	}

	switch set.Kind() {
	case rangeset.KindList:
		is, ok := set.(*rangeset.IntervalSet)
		if !ok {
			return fmt.Errorf("metastore: KindList set is not an *IntervalSet")
		}
		h.Ranges = is.Intervals()

		enc := json.NewEncoder(out)
		return enc.Encode(h)

	case rangeset.KindBitmap:
		bm, ok := set.(*rangeset.BlockBitmap)
		if !ok {
			return fmt.Errorf("metastore: KindBitmap set is not a *BlockBitmap")
		}

		body, err := json.Marshal(h)
		if err != nil {
			return fmt.Errorf("metastore: marshal header: %w", err)
		}

		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
		if _, err := out.Write(lenBuf[:]); err != nil {
			return err
		}
		if _, err := out.Write(body); err != nil {
			return err
		}
		_, err = bm.Bitmap().WriteTo(out)
		return err

	default:
		return fmt.Errorf("metastore: unknown set kind %v", set.Kind())
	}
}

// Load reads path and reconstructs the Attrs and rangeset.Set it holds.
// A parse failure returns a non-nil error and a nil set; callers must
// treat that as MetaCorrupt — log it and fall back to an empty set
// rather than crash.
func Load(path string) (Attrs, rangeset.Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return Attrs{}, nil, fmt.Errorf("metastore: open: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	peek, err := r.Peek(4)
	if err != nil && err != io.EOF {
		return Attrs{}, nil, fmt.Errorf("metastore: peek: %w", err)
	}

	// The list variant is a bare JSON object starting with '{'; the
	// bitmap variant starts with a 4-byte big-endian length that is
	// never the ASCII byte '{' for any real header size.
	if len(peek) > 0 && peek[0] == '{' {
		return loadList(r)
	}
	return loadBitmap(r)
}

func loadList(r *bufio.Reader) (Attrs, rangeset.Set, error) {
	var h header
	if err := json.NewDecoder(r).Decode(&h); err != nil {
		return Attrs{}, nil, fmt.Errorf("metastore: decode list variant: %w", err)
	}

	attrs := Attrs{
		ID:         h.ID,
		OriginURL:  h.OriginURL,
		TotalSize:  h.TotalSize,
		MimeType:   derefOr(h.MimeType),
		FileName:   derefOr(h.FileName),
		TargetPath: derefOr(h.TargetPath),
	}
	set := rangeset.NewIntervalSetFromIntervals(h.TotalSize, h.Ranges)
	return attrs, set, nil
}

func loadBitmap(r *bufio.Reader) (Attrs, rangeset.Set, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Attrs{}, nil, fmt.Errorf("metastore: read header length: %w", err)
	}
	headerLen := binary.BigEndian.Uint32(lenBuf[:])

	body := make([]byte, headerLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return Attrs{}, nil, fmt.Errorf("metastore: read header: %w", err)
	}

	var h header
	if err := json.Unmarshal(body, &h); err != nil {
		return Attrs{}, nil, fmt.Errorf("metastore: decode bitmap header: %w", err)
	}

	attrs := Attrs{
		ID:         h.ID,
		OriginURL:  h.OriginURL,
		TotalSize:  h.TotalSize,
		MimeType:   derefOr(h.MimeType),
		FileName:   derefOr(h.FileName),
		TargetPath: derefOr(h.TargetPath),
	}

	set, err := rangeset.NewBlockBitmapFromReader(h.TotalSize, r)
	if err != nil {
		return Attrs{}, nil, fmt.Errorf("metastore: read bitmap body: %w", err)
	}
	return attrs, set, nil
}
