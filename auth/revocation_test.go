package auth

import (
	"testing"
	"time"

	"libweave/errcode"
)

type fakeBlobStore struct {
	blobs map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore { return &fakeBlobStore{blobs: map[string][]byte{}} }

func (f *fakeBlobStore) LoadBlob(key string) ([]byte, bool, error) {
	b, ok := f.blobs[key]
	return b, ok, nil
}

func (f *fakeBlobStore) SaveBlob(key string, data []byte) error {
	f.blobs[key] = append([]byte(nil), data...)
	return nil
}

func TestRevocationManager_BlockThenIsBlocked(t *testing.T) {
	m, err := NewRevocationManager(newFakeBlobStore())
	if err != nil {
		t.Fatalf("NewRevocationManager: %v", err)
	}
	now := time.Unix(1000, 0)
	if err := m.Block([]byte("u1"), []byte("a1"), now.Add(time.Hour), now); err != nil {
		t.Fatalf("Block: %v", err)
	}
	if !m.IsBlocked([]byte("u1"), []byte("a1"), now) {
		t.Fatal("expected token issued at block time to be blocked")
	}
	if !m.IsBlocked([]byte("u1"), []byte("a1"), now.Add(-time.Minute)) {
		t.Fatal("expected token issued before block time to be blocked")
	}
	if m.IsBlocked([]byte("u1"), []byte("a1"), now.Add(time.Minute)) {
		t.Fatal("token issued after block time should not be blocked")
	}
}

func TestRevocationManager_UnblockRemovesEntry(t *testing.T) {
	m, _ := NewRevocationManager(newFakeBlobStore())
	now := time.Unix(1000, 0)
	_ = m.Block([]byte("u1"), []byte("a1"), now.Add(time.Hour), now)
	if err := m.Unblock([]byte("u1"), []byte("a1")); err != nil {
		t.Fatalf("Unblock: %v", err)
	}
	if m.IsBlocked([]byte("u1"), []byte("a1"), now) {
		t.Fatal("expected entry to be gone after Unblock")
	}
}

func TestRevocationManager_EvictsExpiredOnInsert(t *testing.T) {
	m, _ := NewRevocationManager(newFakeBlobStore())
	now := time.Unix(1000, 0)
	_ = m.Block([]byte("old"), []byte("a1"), now.Add(time.Second), now)
	_ = m.Block([]byte("new"), []byte("a1"), now.Add(time.Hour), now.Add(time.Minute))

	entries := m.GetEntries()
	if len(entries) != 1 || string(entries[0].UserID) != "new" {
		t.Fatalf("entries = %+v, want only the still-live one", entries)
	}
}

func TestRevocationManager_FullListRejectsInsert(t *testing.T) {
	m, _ := NewRevocationManager(newFakeBlobStore())
	now := time.Unix(1000, 0)
	for i := 0; i < m.GetCapacity(); i++ {
		if err := m.Block([]byte{byte(i), byte(i >> 8)}, []byte("a1"), now.Add(time.Hour), now); err != nil {
			t.Fatalf("Block #%d: %v", i, err)
		}
	}
	err := m.Block([]byte("overflow"), []byte("a1"), now.Add(time.Hour), now)
	if errcode.Of(err) != errcode.ListFull {
		t.Fatalf("err = %v, want list_full", err)
	}
}

func TestRevocationManager_PersistsAcrossReload(t *testing.T) {
	backend := newFakeBlobStore()
	m, _ := NewRevocationManager(backend)
	now := time.Unix(1000, 0)
	_ = m.Block([]byte("u1"), []byte("a1"), now.Add(time.Hour), now)

	reloaded, err := NewRevocationManager(backend)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.IsBlocked([]byte("u1"), []byte("a1"), now) {
		t.Fatal("expected reloaded manager to see the persisted entry")
	}
}
