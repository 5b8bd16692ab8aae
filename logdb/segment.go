package logdb

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"duskdb"
)

// Segment is one data file on disk: either the single active (appendable)
// segment or one of the archived, immutable segments rotated out of it.
type Segment struct {
	id   uint32
	path string

	mu   sync.Mutex
	file *os.File
	size int64
}

func openSegment(dir string, id uint32, tag string) (*Segment, error) {
	path := filepath.Join(dir, fmt.Sprintf("%d.%s", id, tag))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, duskdb.NewError("open_segment", duskdb.KindIoError, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, duskdb.NewError("open_segment", duskdb.KindIoError, err)
	}
	return &Segment{id: id, path: path, file: f, size: info.Size()}, nil
}

func (s *Segment) append(e Entry) (IndexEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := e.encode()
	off := s.size
	if _, err := s.file.WriteAt(buf, off); err != nil {
		return IndexEntry{}, duskdb.NewError("append", duskdb.KindIoError, err)
	}
	s.size += int64(len(buf))
	return IndexEntry{FileID: s.id, Offset: off, ValueSize: uint32(len(e.Value))}, nil
}

func (s *Segment) readAt(off int64) (Entry, error) {
	return decodeEntry(s.file, off)
}

func (s *Segment) sync() error {
	if err := s.file.Sync(); err != nil {
		return duskdb.NewError("sync", duskdb.KindIoError, err)
	}
	return nil
}

func (s *Segment) close() error {
	return s.file.Close()
}

// loadIndex scans the segment sequentially, recording each key's newest
// offset within this file. Used to rebuild the in-memory index for
// segments found already on disk at open. A trailing short read or
// checksum failure -- a crash mid-write -- stops the scan there rather
// than erroring; s.size is set to exactly that offset so the next
// append overwrites the truncated record instead of leaving it as
// garbage in the middle of the file.
func (s *Segment) loadIndex(into map[string]IndexEntry) error {
	var off int64
	for {
		e, err := decodeEntry(s.file, off)
		if err != nil {
			break
		}
		into[string(e.Key)] = IndexEntry{FileID: s.id, Offset: off, ValueSize: uint32(len(e.Value))}
		off += entryHeaderSize + int64(len(e.Key)) + int64(len(e.Value))
	}
	s.size = off
	return nil
}
