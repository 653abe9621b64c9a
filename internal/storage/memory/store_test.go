package memory

import (
	"context"
	"testing"

	"github.com/fidde/oxminer/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	store := New()
	defer store.Close()

	storagetest.Run(t, store)
}

func TestStore_ReturnsCopies(t *testing.T) {
	store := New()
	ctx := context.Background()

	run := storagetest.NewRun("s1", 0)
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	run.EventTypes[0] = "changed"

	got, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.EventTypes[0] != "place order" {
		t.Errorf("stored run aliases caller data: %v", got.EventTypes)
	}

	got.PatternCounts["place order"] = 99
	again, _ := store.GetRun(ctx, run.ID)
	if again.PatternCounts["place order"] != 4 {
		t.Errorf("returned run aliases stored data")
	}
}
