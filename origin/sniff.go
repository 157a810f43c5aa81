package origin

import "bytes"

// isoBrands are the ISO base media file format major-brand prefixes
// (found at offset 8, right after the "ftyp" box type at offset 4) that
// identify an MP4-family container, per spec.md §6.
var isoBrands = []string{"iso", "mp4", "avc", "M4V", "qt"}

// signature is one entry of the non-ftyp portion of the MIME signature
// table from spec.md §6.
type signature struct {
	offset int
	magic  []byte
	mime   string
}

var signatures = []signature{
	{0, []byte{0x1A, 0x45, 0xDF, 0xA3}, "video/webm"},
	{0, []byte{0x46, 0x4C, 0x56}, "video/x-flv"},
	{0, []byte{0xFF, 0xD8, 0xFF}, "image/jpeg"},
	{0, []byte{0x89, 0x50, 0x4E, 0x47}, "image/png"},
	{0, []byte{0x47, 0x49, 0x46, 0x38}, "image/gif"},
	{0, []byte{0x50, 0x4B, 0x03, 0x04}, "application/zip"},
	{0, []byte{0x52, 0x61, 0x72, 0x21}, "application/x-rar-compressed"},
	{0, []byte{0x25, 0x50, 0x44, 0x46}, "application/pdf"},
}

const ftypOffset = 4
const brandOffset = 8

// Sniff inspects the leading bytes of a resource (16 bytes suffice) and
// returns the matching MIME type, or "" if none of the signatures match.
func Sniff(head []byte) string {
	if len(head) >= brandOffset+3 && bytes.Equal(head[ftypOffset:ftypOffset+4], []byte("ftyp")) {
		brand := head[brandOffset : brandOffset+3]
		for _, prefix := range isoBrands {
			if bytes.HasPrefix(brand, []byte(prefix)) {
				return "video/mp4"
			}
		}
	}

	for _, sig := range signatures {
		end := sig.offset + len(sig.magic)
		if end > len(head) {
			continue
		}
		if bytes.Equal(head[sig.offset:end], sig.magic) {
			return sig.mime
		}
	}
	return ""
}
