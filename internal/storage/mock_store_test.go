package storage

import (
	"context"
	"testing"
	"time"
)

func TestMockStore(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	hash, err := store.Put(ctx, &Object{Hash: testKey, Type: ObjectTypeBundle, Data: []byte("a"),
		Metadata: Metadata{Custom: map[string]string{"name": "x"}}})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	obj, err := store.Get(ctx, hash)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	obj.Data[0] = 'z'
	obj.Metadata.Custom["name"] = "mutated"

	again, _ := store.Get(ctx, hash)
	if string(again.Data) != "a" || again.Metadata.Custom["name"] != "x" {
		t.Error("Get must return copies")
	}

	now = now.Add(2 * time.Hour)
	if _, err := store.Put(ctx, &Object{Hash: "fff000", Data: []byte("b")}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	removed, _ := store.Prune(ctx, now.Add(-time.Hour))
	if removed != 1 || store.Size() != 1 {
		t.Errorf("Prune removed %d, size %d", removed, store.Size())
	}

	calls := store.GetCalls()
	if calls.Put != 2 || calls.Get != 2 || calls.Prune != 1 {
		t.Errorf("unexpected calls %+v", calls)
	}
}
