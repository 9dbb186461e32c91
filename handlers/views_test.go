package handlers

import (
	"testing"
)

func TestViewStoreRecordAndCount(t *testing.T) {
	vs, err := OpenViewStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenViewStore: %v", err)
	}
	defer vs.Close()

	if n := vs.Count("sub-001.html"); n != 0 {
		t.Errorf("fresh count = %d, want 0", n)
	}

	vs.Record("sub-001.html")
	vs.Record("sub-001.html")
	vs.Record("group_bold.html")

	if n := vs.Count("sub-001.html"); n != 2 {
		t.Errorf("count = %d, want 2", n)
	}

	counts := vs.Counts()
	if counts["sub-001.html"] != 2 || counts["group_bold.html"] != 1 {
		t.Errorf("Counts = %v", counts)
	}
}

func TestViewStoreNilSafe(t *testing.T) {
	var vs *ViewStore
	vs.Record("sub-001.html") // must not panic
	if n := vs.Count("sub-001.html"); n != 0 {
		t.Errorf("nil store count = %d, want 0", n)
	}
	if err := vs.Close(); err != nil {
		t.Errorf("nil store close: %v", err)
	}
}

func TestViewStoreReopenPersists(t *testing.T) {
	dir := t.TempDir()

	vs, err := OpenViewStore(dir)
	if err != nil {
		t.Fatalf("OpenViewStore: %v", err)
	}
	vs.Record("sub-001.html")
	if err := vs.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	vs, err = OpenViewStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer vs.Close()
	if n := vs.Count("sub-001.html"); n != 1 {
		t.Errorf("count after reopen = %d, want 1", n)
	}
}
