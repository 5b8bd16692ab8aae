package logdb

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"duskdb"
)

// compactionBatch is the output of folding a set of frozen segments out
// of ActiveUnit: the segments themselves, to append to Levels.archived
// for direct newest-first lookups, plus the exact newest-value index
// entries ActiveUnit still had for keys living in those segments, used
// to seed both Levels.archived's index and the merge below.
type compactionBatch struct {
	segments []*Segment
	entries  map[string]IndexEntry
}

// IndexEntry locates a key's newest value: which segment file and byte
// offset within it.
type IndexEntry struct {
	FileID    uint32
	Offset    int64
	ValueSize uint32
}

// ActiveUnit owns the one appendable segment plus the archived segments
// rotated out of it since the last freeze. Grounded on nikidb's
// ActiveUnit/ActiveLevel: store() rotates to a new file once the next
// entry would exceed fileSize, and freezes (signals the compaction worker) once
// archivedLimit archived files have piled up.
type ActiveUnit struct {
	dataDir       string
	fileSize      int64
	archivedLimit int
	signal        chan struct{}
	metrics       *metrics
	logger        zerolog.Logger

	mu                 sync.RWMutex
	active             *Segment
	archivedFiles      []*Segment
	frozeArchivedFiles []*Segment
	indexes            map[string]IndexEntry
}

// buildActiveUnit scans dataDir for existing segment files named
// "<id>.a", the way nikidb's build_data_file does: the highest id is the
// active segment, every other id is already-archived.
func buildActiveUnit(dir string, fileSize int64, archivedLimit int, signal chan struct{}, m *metrics, lg zerolog.Logger) (*ActiveUnit, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, duskdb.NewError("open", duskdb.KindDBOpenFail, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, duskdb.NewError("open", duskdb.KindDBOpenFail, err)
	}

	var ids []uint32
	for _, de := range entries {
		name := de.Name()
		if !strings.HasSuffix(name, ".a") {
			continue
		}
		idStr := strings.TrimSuffix(name, ".a")
		id, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil {
			continue
		}
		ids = append(ids, uint32(id))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	u := &ActiveUnit{
		dataDir:       dir,
		fileSize:      fileSize,
		archivedLimit: archivedLimit,
		signal:        signal,
		metrics:       m,
		logger:        lg,
		indexes:       make(map[string]IndexEntry),
	}

	if len(ids) == 0 {
		seg, err := openSegment(dir, 0, "a")
		if err != nil {
			return nil, err
		}
		u.active = seg
		return u, nil
	}
	for _, id := range ids[:len(ids)-1] {
		seg, err := openSegment(dir, id, "a")
		if err != nil {
			return nil, err
		}
		if err := seg.loadIndex(u.indexes); err != nil {
			return nil, err
		}
		u.archivedFiles = append(u.archivedFiles, seg)
	}
	seg, err := openSegment(dir, ids[len(ids)-1], "a")
	if err != nil {
		return nil, err
	}
	if err := seg.loadIndex(u.indexes); err != nil {
		return nil, err
	}
	u.active = seg
	return u, nil
}

func (u *ActiveUnit) put(key, value []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	e := newEntry(key, value)
	ie, err := u.store(e)
	if err != nil {
		return err
	}
	u.indexes[string(key)] = ie
	return nil
}

// store appends e to the active segment, rotating to a fresh segment
// first if it would overflow fileSize. Mirrors ActiveUnit::store in the
// original source.
func (u *ActiveUnit) store(e Entry) (IndexEntry, error) {
	buf := e.encode()
	if u.active.size+int64(len(buf)) > u.fileSize {
		if err := u.active.sync(); err != nil {
			return IndexEntry{}, err
		}
		u.archivedFiles = append(u.archivedFiles, u.active)
		seg, err := openSegment(u.dataDir, u.active.id+1, "a")
		if err != nil {
			return IndexEntry{}, err
		}
		u.active = seg
		u.metrics.rotations.Inc()
		u.logger.Debug().Uint32("segment", seg.id).Msg("log segment rotated")
		if len(u.archivedFiles) >= u.archivedLimit {
			u.freeze()
		}
	}
	return u.active.append(e)
}

// freeze moves the accumulated archived files into the frozen set and
// signals the compaction worker, non-blockingly: a signal already queued
// means a merge is already pending.
func (u *ActiveUnit) freeze() {
	u.frozeArchivedFiles = append(u.frozeArchivedFiles, u.archivedFiles...)
	u.archivedFiles = nil
	select {
	case u.signal <- struct{}{}:
	default:
	}
}

func (u *ActiveUnit) getFromActive(key []byte) (Entry, bool, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	ie, ok := u.indexes[string(key)]
	if !ok {
		return Entry{}, false, nil
	}
	if u.active.id == ie.FileID {
		e, err := u.active.readAt(ie.Offset)
		return e, true, err
	}
	for _, seg := range u.archivedFiles {
		if seg.id == ie.FileID {
			e, err := seg.readAt(ie.Offset)
			return e, true, err
		}
	}
	return Entry{}, false, nil
}

// getFromFroze searches segments ActiveUnit has frozen but the
// compaction worker hasn't yet folded into Levels: the narrow window
// between freeze() queuing a signal and the worker's next compact()
// pass. Without this, a key whose only copy lived in a just-frozen
// segment would be unreachable for however long the worker takes to
// wake up, which fails law 1 deterministically rather than just in
// theory.
func (u *ActiveUnit) getFromFroze(key []byte) (Entry, bool, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	ie, ok := u.indexes[string(key)]
	if !ok {
		return Entry{}, false, nil
	}
	for _, seg := range u.frozeArchivedFiles {
		if seg.id == ie.FileID {
			e, err := seg.readAt(ie.Offset)
			return e, true, err
		}
	}
	return Entry{}, false, nil
}

// takeFrozen detaches the segments frozen since the last fold, together
// with the newest-value index entries that still point at them, and
// hands both to the caller (the compaction worker) to promote into
// Levels. Keys re-written after freeze() but before this call already
// point back at the active segment in u.indexes, so they are correctly
// left behind rather than folded in stale.
func (u *ActiveUnit) takeFrozen() *compactionBatch {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.frozeArchivedFiles) == 0 {
		return nil
	}
	segs := u.frozeArchivedFiles
	u.frozeArchivedFiles = nil

	frozenIDs := make(map[uint32]bool, len(segs))
	for _, s := range segs {
		frozenIDs[s.id] = true
	}
	entries := make(map[string]IndexEntry)
	for k, ie := range u.indexes {
		if frozenIDs[ie.FileID] {
			entries[k] = ie
			delete(u.indexes, k)
		}
	}
	return &compactionBatch{segments: segs, entries: entries}
}

func (u *ActiveUnit) get(key []byte) (Entry, bool, error) {
	if e, ok, err := u.getFromActive(key); ok || err != nil {
		return e, ok, err
	}
	return u.getFromFroze(key)
}

func (u *ActiveUnit) close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.active.close(); err != nil {
		return err
	}
	for _, seg := range u.archivedFiles {
		seg.close()
	}
	for _, seg := range u.frozeArchivedFiles {
		seg.close()
	}
	return nil
}

// ArchivedUnit holds segments permanently rotated out of ActiveUnit,
// queried newest-first so the most recent write for a key always wins.
type ArchivedUnit struct {
	mu       sync.RWMutex
	segments []*Segment
	indexes  map[string]IndexEntry
}

func newArchivedUnit() *ArchivedUnit {
	return &ArchivedUnit{indexes: make(map[string]IndexEntry)}
}

func (a *ArchivedUnit) get(key []byte) (Entry, bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ie, ok := a.indexes[string(key)]
	if !ok {
		return Entry{}, false, nil
	}
	for i := len(a.segments) - 1; i >= 0; i-- {
		if a.segments[i].id == ie.FileID {
			e, err := a.segments[i].readAt(ie.Offset)
			return e, true, err
		}
	}
	return Entry{}, false, nil
}

// add appends newly-frozen segments and merges their newest-value
// entries in: keys already present are overwritten, since a later fold
// is by construction newer than anything recorded in an earlier one.
func (a *ArchivedUnit) add(segs []*Segment, entries map[string]IndexEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.segments = append(a.segments, segs...)
	for k, ie := range entries {
		a.indexes[k] = ie
	}
}

// MergeUnit holds the output of compaction: deduplicated entries packed
// into a single fresh segment per fold.
type MergeUnit struct {
	mu       sync.RWMutex
	segments []*Segment
	indexes  map[string]IndexEntry
}

func newMergeUnit() *MergeUnit {
	return &MergeUnit{indexes: make(map[string]IndexEntry)}
}

func (m *MergeUnit) get(key []byte) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ie, ok := m.indexes[string(key)]
	if !ok {
		return Entry{}, false, nil
	}
	for i := len(m.segments) - 1; i >= 0; i-- {
		if m.segments[i].id == ie.FileID {
			e, err := m.segments[i].readAt(ie.Offset)
			return e, true, err
		}
	}
	return Entry{}, false, nil
}

func (m *MergeUnit) add(seg *Segment, entries map[string]IndexEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.segments = append(m.segments, seg)
	for k, ie := range entries {
		m.indexes[k] = ie
	}
}

// mergeSegments packs the winning entries of a frozen batch into one
// fresh segment tagged "m" (merged), the actual compaction step spec
// §4.C assigns to the worker the original source leaves a stub for.
// Entries are written in sorted key order so the merged file's layout is
// reproducible across runs rather than depending on map iteration order.
func mergeSegments(dir string, segs []*Segment, entries map[string]IndexEntry) (*Segment, map[string]IndexEntry, error) {
	id := uint32(0)
	for _, s := range segs {
		if s.id > id {
			id = s.id
		}
	}
	merged, err := openSegment(dir, id, "m")
	if err != nil {
		return nil, nil, err
	}

	byID := make(map[uint32]*Segment, len(segs))
	for _, s := range segs {
		byID[s.id] = s
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]IndexEntry, len(entries))
	for _, k := range keys {
		ie := entries[k]
		src, ok := byID[ie.FileID]
		if !ok {
			continue
		}
		e, err := src.readAt(ie.Offset)
		if err != nil {
			merged.close()
			return nil, nil, err
		}
		newIE, err := merged.append(e)
		if err != nil {
			merged.close()
			return nil, nil, err
		}
		out[k] = newIE
	}
	if err := merged.sync(); err != nil {
		merged.close()
		return nil, nil, err
	}
	return merged, out, nil
}

// Levels is the fall-through read path below ActiveUnit: archived
// (newest segment first), then merged.
type Levels struct {
	archived *ArchivedUnit
	merged   *MergeUnit
}

func (l *Levels) get(key []byte) (Entry, bool, error) {
	if e, ok, err := l.archived.get(key); ok || err != nil {
		return e, ok, err
	}
	return l.merged.get(key)
}
