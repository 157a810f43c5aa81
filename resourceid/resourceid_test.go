package resourceid

import "testing"

func TestForIsStableAndSixteenChars(t *testing.T) {
	id1 := For("http://example.test/a.bin")
	id2 := For("http://example.test/a.bin")
	if id1 != id2 {
		t.Fatalf("expected stable id, got %q and %q", id1, id2)
	}
	if len(id1) != Length {
		t.Fatalf("expected %d chars, got %d (%q)", Length, len(id1), id1)
	}
}

func TestForDiffersByURL(t *testing.T) {
	a := For("http://example.test/a.bin")
	b := For("http://example.test/b.bin")
	if a == b {
		t.Fatalf("expected different ids for different urls, got %q", a)
	}
}

func TestExtensionPrecedence(t *testing.T) {
	cases := []struct {
		fileName, originURL, mimeType, want string
	}{
		{"movie.mkv", "http://x/a.mp4", "video/mp4", ".mkv"},
		{"", "http://x/clip.webm", "video/mp4", ".webm"},
		{"", "http://x/stream", "video/webm", ".webm"},
		{"", "http://x/stream", "", ".mp4"},
	}
	for _, c := range cases {
		if got := Extension(c.fileName, c.originURL, c.mimeType); got != c.want {
			t.Errorf("Extension(%q,%q,%q) = %q, want %q", c.fileName, c.originURL, c.mimeType, got, c.want)
		}
	}
}
