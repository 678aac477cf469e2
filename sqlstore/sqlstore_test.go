package sqlstore

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "viewer.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})
	return db
}

func TestOcrPages(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if has, err := db.HasOcrForDocument(ctx, "ms-7"); err != nil || has {
		t.Fatalf("empty db: %v %v", has, err)
	}
	if err := db.PutOcrText(ctx, "ms-7", 2, "first"); err != nil {
		t.Fatal(err)
	}
	if err := db.PutOcrText(ctx, "ms-7", 2, "second"); err != nil {
		t.Fatal(err)
	}
	if has, err := db.HasOcrForDocument(ctx, "ms-7"); err != nil || !has {
		t.Fatalf("has = %v %v", has, err)
	}
	text, ok, err := db.OcrText(ctx, "ms-7", 2)
	if err != nil || !ok || text != "second" {
		t.Fatalf("got %q %v %v", text, ok, err)
	}
	if _, ok, err := db.OcrText(ctx, "ms-7", 3); err != nil || ok {
		t.Fatalf("missing page: %v %v", ok, err)
	}
	if err := db.PutOcrText(ctx, "ms-7", 0, "bad"); err == nil {
		t.Fatalf("page 0 accepted")
	}
}

func TestBookmarks(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	set, err := db.BookmarkSet(ctx, "reader-1", "ms-7")
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []int{12, 3, 40} {
		if _, err := set.Toggle(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := set.Toggle(ctx, 40); err != nil {
		t.Fatal(err)
	}

	pages, err := db.Bookmarks(ctx, "reader-1", "ms-7")
	if err != nil || !reflect.DeepEqual(pages, []int{3, 12}) {
		t.Fatalf("pages = %v, %v", pages, err)
	}
	reloaded, err := db.BookmarkSet(ctx, "reader-1", "ms-7")
	if err != nil || !reflect.DeepEqual(reloaded.Pages(), []int{3, 12}) {
		t.Fatalf("reloaded = %v, %v", reloaded.Pages(), err)
	}
	if other, _ := db.Bookmarks(ctx, "reader-2", "ms-7"); len(other) != 0 {
		t.Fatalf("bookmarks leaked across users: %v", other)
	}
}

func TestSchemaVersion(t *testing.T) {
	db := openTestDB(t)
	var version int
	if err := db.Conn.QueryRow("SELECT version FROM schema_version").Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version != SchemaVersion {
		t.Fatalf("version = %d", version)
	}
}
