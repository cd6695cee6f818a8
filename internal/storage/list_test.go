package storage

import (
	"context"
	"testing"

	"github.com/featherstore/featherstore/internal/s3test"
)

func TestListingCursorSinglePage(t *testing.T) {
	store, srv := newTestStore(t, nil)
	srv.SetObject("p/a", []byte("1"))
	srv.SetObject("p/b", []byte("2"))
	ctx := context.Background()

	cursor := NewListingCursor(store.client, "p/")

	page, err := cursor.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if page == nil || len(page.Keys) != 2 {
		t.Fatalf("page = %+v", page)
	}

	// Exhausted: subsequent calls return no page and no request.
	calls := len(srv.Calls())
	for i := 0; i < 2; i++ {
		page, err = cursor.Next(ctx)
		if page != nil || err != nil {
			t.Errorf("Next after exhaustion = %+v, %v", page, err)
		}
	}
	if len(srv.Calls()) != calls {
		t.Error("exhausted cursor issued requests")
	}
}

func TestListingCursorPagination(t *testing.T) {
	store, srv := newTestStore(t, nil, s3test.WithPageSize(1))
	srv.SetObject("p/a", []byte("1"))
	srv.SetObject("p/b", []byte("2"))
	srv.SetObject("p/c", []byte("3"))
	ctx := context.Background()

	cursor := NewListingCursor(store.client, "p/")

	var keys []string
	pages := 0
	for {
		page, err := cursor.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if page == nil {
			break
		}
		pages++
		keys = append(keys, page.Keys...)
	}

	if pages != 3 {
		t.Errorf("pages = %d, want 3", pages)
	}
	want := []string{"p/a", "p/b", "p/c"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}

	// The second and third requests must carry the continuation token.
	gets := srv.CallsFor("GET")
	if len(gets) != 3 {
		t.Fatalf("GET calls = %d", len(gets))
	}
	if gets[0].Query["continuation-token"] != "" {
		t.Error("first page carried a continuation token")
	}
	for i := 1; i < 3; i++ {
		if gets[i].Query["continuation-token"] == "" {
			t.Errorf("page %d missing continuation token", i+1)
		}
	}
}

func TestListingCursorDelimiterGrouping(t *testing.T) {
	store, srv := newTestStore(t, nil)
	srv.SetObject("p/file", []byte("1"))
	srv.SetObject("p/dir/x", []byte("2"))
	srv.SetObject("p/dir/y", []byte("3"))

	cursor := NewListingCursor(store.client, "p/")
	page, err := cursor.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	if len(page.Keys) != 1 || page.Keys[0] != "p/file" {
		t.Errorf("keys = %v", page.Keys)
	}
	// dir/x and dir/y roll up into one de-duplicated prefix.
	if len(page.Prefixes) != 1 || page.Prefixes[0] != "p/dir/" {
		t.Errorf("prefixes = %v", page.Prefixes)
	}
}
