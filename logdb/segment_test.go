package logdb

import (
	"os"
	"testing"
)

func TestLoadIndexTruncatesTrailingPartialWrite(t *testing.T) {
	dir := t.TempDir()
	seg, err := openSegment(dir, 0, "a")
	if err != nil {
		t.Fatalf("open segment: %v", err)
	}

	first, err := seg.append(newEntry([]byte("k1"), []byte("v1")))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	goodSize := seg.size

	// Simulate a crash mid-write: a second entry whose header claims more
	// body bytes than actually got flushed to disk.
	partial := newEntry([]byte("k2"), []byte("v2")).encode()
	truncated := partial[:len(partial)-3]
	if _, err := seg.file.WriteAt(truncated, goodSize); err != nil {
		t.Fatalf("write partial: %v", err)
	}
	seg.close()

	reopened, err := openSegment(dir, 0, "a")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.close()

	into := make(map[string]IndexEntry)
	if err := reopened.loadIndex(into); err != nil {
		t.Fatalf("load index: %v", err)
	}

	if len(into) != 1 {
		t.Fatalf("expected only the well-formed entry indexed, got %d", len(into))
	}
	if ie, ok := into["k1"]; !ok || ie.Offset != first.Offset {
		t.Fatalf("expected k1 indexed at offset %d, got %+v (ok=%v)", first.Offset, ie, ok)
	}
	if reopened.size != goodSize {
		t.Fatalf("expected size truncated back to %d, got %d", goodSize, reopened.size)
	}

	// A fresh append must land at goodSize, overwriting the garbage tail
	// rather than appending after it.
	ie, err := reopened.append(newEntry([]byte("k3"), []byte("v3")))
	if err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	if ie.Offset != goodSize {
		t.Fatalf("expected new entry at offset %d, got %d", goodSize, ie.Offset)
	}

	info, err := os.Stat(reopened.path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != reopened.size {
		t.Fatalf("file size %d does not match segment size %d", info.Size(), reopened.size)
	}
}
