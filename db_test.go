package duskdb

import (
	"path/filepath"
	"testing"
)

func TestPutGet(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	if err := db.Put([]byte("hello"), []byte("world")); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, err := db.Get([]byte("hello"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(v) != "world" {
		t.Fatalf("unexpected value: %s", v)
	}
}

func TestGetMissingKey(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	if _, err := db.Get([]byte("nope")); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReopenPreservesData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reopen.db")

	db, err := Open(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Put([]byte("k"), []byte("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	v, err := db2.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if string(v) != "v1" {
		t.Fatalf("unexpected value after reopen: %s", v)
	}
}

func TestMetaAlternatesAcrossCommits(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	firstTxid := db.meta.txid
	if err := db.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("put 1: %v", err)
	}
	secondTxid := db.meta.txid
	if secondTxid != firstTxid+1 {
		t.Fatalf("expected txid to advance by 1, got %d -> %d", firstTxid, secondTxid)
	}
	if err := db.Put([]byte("b"), []byte("2")); err != nil {
		t.Fatalf("put 2: %v", err)
	}
	if db.meta.txid != secondTxid+1 {
		t.Fatalf("expected txid to advance again")
	}
}

// TestMetaWrittenToCorrectAlternatingSlot pins down the slot convention
// commit() and bootstrap() must agree on: the meta for txid N lands at
// page N%2, and the other slot stays byte-identical to its pre-commit
// value. Getting this inverted makes the very first write transaction
// overwrite the still-current meta instead of the stale slot.
func TestMetaWrittenToCorrectAlternatingSlot(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	readMetaAt := func(slot pgid) meta {
		m, err := readMeta(db.page(slot))
		if err != nil {
			t.Fatalf("read meta at slot %d: %v", slot, err)
		}
		return m
	}

	before0 := readMetaAt(metaPage0)
	before1 := readMetaAt(metaPage1)

	if err := db.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}

	txid := db.meta.txid
	wantSlot, otherSlot, otherBefore := metaPage0, metaPage1, before1
	if txid%2 == 1 {
		wantSlot, otherSlot, otherBefore = metaPage1, metaPage0, before0
	}

	got := readMetaAt(wantSlot)
	if got.txid != txid {
		t.Fatalf("expected slot %d to hold txid %d, got %d", wantSlot, txid, got.txid)
	}
	otherNow := readMetaAt(otherSlot)
	if otherNow != otherBefore {
		t.Fatalf("expected untouched slot %d to stay byte-identical, got %+v want %+v", otherSlot, otherNow, otherBefore)
	}
}

func TestOverwriteAndDelete(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	if err := db.Update(func(tx *Tx) error {
		b, err := tx.CreateBucketIfNotExists(defaultBucketName)
		if err != nil {
			return err
		}
		if err := b.Put([]byte("k"), []byte("v1")); err != nil {
			return err
		}
		return b.Put([]byte("k"), []byte("v2"))
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	v, err := db.Get([]byte("k"))
	if err != nil || string(v) != "v2" {
		t.Fatalf("expected v2, got %q err=%v", v, err)
	}

	if err := db.Update(func(tx *Tx) error {
		b := tx.Bucket(defaultBucketName)
		return b.Delete([]byte("k"))
	}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get([]byte("k")); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestManyKeysForceSplit(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	const n = 500
	if err := db.Update(func(tx *Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte("big"))
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			k := []byte{byte(i >> 8), byte(i)}
			if err := b.Put(k, make([]byte, 64)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := db.View(func(tx *Tx) error {
		b := tx.Bucket([]byte("big"))
		for i := 0; i < n; i++ {
			k := []byte{byte(i >> 8), byte(i)}
			if v := b.Get(k); v == nil {
				t.Fatalf("missing key %d after split", i)
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}
