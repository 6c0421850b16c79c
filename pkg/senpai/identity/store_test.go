package identity

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "senpai-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := Open(filepath.Join(tmpDir, "test.db"), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func TestGetOrCreate_FirstContact(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	profile, created, err := store.GetOrCreate(ctx, 100, "alice", "Alice")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if !created {
		t.Error("expected created=true on first contact")
	}
	if profile.ID != 100 || profile.Name != "alice" || profile.DisplayName != "Alice" {
		t.Errorf("unexpected profile: %+v", profile)
	}

	// Second contact with identical attributes: no new row, no change.
	again, created, err := store.GetOrCreate(ctx, 100, "alice", "Alice")
	if err != nil {
		t.Fatalf("second GetOrCreate failed: %v", err)
	}
	if created {
		t.Error("expected created=false on second contact")
	}
	if again.Name != "alice" || again.DisplayName != "Alice" {
		t.Errorf("profile changed unexpectedly: %+v", again)
	}
}

func TestGetOrCreate_ResyncOnDrift(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, _, err := store.GetOrCreate(ctx, 200, "bob", "Bob"); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	profile, created, err := store.GetOrCreate(ctx, 200, "bob", "Bobby")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if created {
		t.Error("expected created=false for existing member")
	}
	if profile.DisplayName != "Bobby" {
		t.Errorf("display name not re-synced: %q", profile.DisplayName)
	}

	// The update must happen in place: still exactly one row.
	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}

	stored, err := store.Get(ctx, 200)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.DisplayName != "Bobby" {
		t.Errorf("stored row not updated: %q", stored.DisplayName)
	}
}

func TestGetOrCreate_DisplayNameDefaultsToName(t *testing.T) {
	store := openTestStore(t)

	profile, _, err := store.GetOrCreate(context.Background(), 300, "carol", "")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if profile.DisplayName != "carol" {
		t.Errorf("expected display name to default to name, got %q", profile.DisplayName)
	}
}

func TestGetOrCreate_RejectsInvalidID(t *testing.T) {
	store := openTestStore(t)

	if _, _, err := store.GetOrCreate(context.Background(), 0, "x", "x"); err == nil {
		t.Error("expected error for id 0")
	}
	if _, _, err := store.GetOrCreate(context.Background(), -5, "x", "x"); err == nil {
		t.Error("expected error for negative id")
	}
}

func TestGetOrCreate_ConcurrentFirstContact(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	const workers = 8
	createdCount := make(chan bool, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := store.GetOrCreate(ctx, 400, "dave", "Dave")
			if err != nil {
				t.Errorf("concurrent GetOrCreate failed: %v", err)
				return
			}
			createdCount <- created
		}()
	}
	wg.Wait()
	close(createdCount)

	var creations int
	for created := range createdCount {
		if created {
			creations++
		}
	}
	if creations != 1 {
		t.Errorf("expected exactly one creation, got %d", creations)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 row after concurrent first contact, got %d", count)
	}
}
