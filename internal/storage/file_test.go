package storage

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"strings"
	"testing"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/featherstore/featherstore/internal/errors"
)

func TestFileReadAdvancesCursor(t *testing.T) {
	store, srv := newTestStore(t, nil)
	srv.SetObject("f.bin", []byte("abcdefghij"))

	f := store.Open(context.Background(), "f.bin")
	defer f.Close()

	buf := make([]byte, 4)
	n, err := f.Read(buf)
	if err != nil || n != 4 || string(buf[:n]) != "abcd" {
		t.Fatalf("first read = %q, %d, %v", buf[:n], n, err)
	}
	n, err = f.Read(buf)
	if err != nil || n != 4 || string(buf[:n]) != "efgh" {
		t.Fatalf("second read = %q, %d, %v", buf[:n], n, err)
	}

	gets := srv.CallsFor("GET")
	if len(gets) != 2 {
		t.Fatalf("GET calls = %d, want 2", len(gets))
	}
	if gets[0].Range != "bytes=0-3" || gets[1].Range != "bytes=4-7" {
		t.Errorf("ranges = %q, %q", gets[0].Range, gets[1].Range)
	}
}

func TestFileReadClampsToSize(t *testing.T) {
	store, srv := newTestStore(t, nil)
	srv.SetObject("f.bin", []byte("abcdefghij"))

	f := store.Open(context.Background(), "f.bin")
	defer f.Close()

	if _, err := f.Seek(5, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 10)
	n, err := f.Read(buf)
	if err != nil || n != 5 || string(buf[:n]) != "fghij" {
		t.Fatalf("read = %q, %d, %v", buf[:n], n, err)
	}

	gets := srv.CallsFor("GET")
	if len(gets) != 1 || gets[0].Range != "bytes=5-9" {
		t.Errorf("range = %q, want bytes=5-9 (clamped)", gets[0].Range)
	}
}

func TestFileReadAtEndNoRequest(t *testing.T) {
	store, srv := newTestStore(t, nil)
	srv.SetObject("f.bin", []byte("abcdefghij"))

	f := store.Open(context.Background(), "f.bin")
	defer f.Close()

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		t.Fatal(err)
	}
	n, err := f.Read(make([]byte, 8))
	if n != 0 || err != io.EOF {
		t.Errorf("read at end = %d, %v, want 0, EOF", n, err)
	}
	data, err := f.ReadAll()
	if err != nil || len(data) != 0 {
		t.Errorf("ReadAll at end = %q, %v, want empty", data, err)
	}

	// A degenerate range must never hit the wire.
	if gets := srv.CallsFor("GET"); len(gets) != 0 {
		t.Errorf("GET calls = %d, want 0", len(gets))
	}
}

func TestFileZeroLengthRead(t *testing.T) {
	store, srv := newTestStore(t, nil)
	srv.SetObject("f.bin", []byte("abc"))

	f := store.Open(context.Background(), "f.bin")
	defer f.Close()

	n, err := f.Read(nil)
	if n != 0 || err != nil {
		t.Errorf("zero-length read = %d, %v", n, err)
	}
	if len(srv.Calls()) != 0 {
		t.Errorf("calls = %d, want 0", len(srv.Calls()))
	}
}

func TestFileSeekBeforeStart(t *testing.T) {
	store, _ := newTestStore(t, nil)
	f := store.Open(context.Background(), "f.bin")
	defer f.Close()

	if _, err := f.Seek(-1, io.SeekStart); !stderrors.Is(err, errors.ErrNegativeOffset) {
		t.Errorf("Seek(-1, start) = %v, want ErrNegativeOffset", err)
	}
	if _, err := f.Seek(-5, io.SeekCurrent); !stderrors.Is(err, errors.ErrNegativeOffset) {
		t.Errorf("Seek(-5, current) = %v, want ErrNegativeOffset", err)
	}
}

func TestFileSeekBeyondEndReadsEmpty(t *testing.T) {
	store, srv := newTestStore(t, nil)
	srv.SetObject("f.bin", []byte("abc"))

	f := store.Open(context.Background(), "f.bin")
	defer f.Close()

	// Seeking past the end is not validated; the read returns nothing.
	if _, err := f.Seek(100, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if n, err := f.Read(make([]byte, 4)); n != 0 || err != io.EOF {
		t.Errorf("read past end = %d, %v, want 0, EOF", n, err)
	}
}

func TestFileSizeMemoized(t *testing.T) {
	store, srv := newTestStore(t, nil)
	srv.SetObject("f.bin", make([]byte, 42))

	f := store.Open(context.Background(), "f.bin")
	defer f.Close()

	for i := 0; i < 3; i++ {
		size, err := f.Size()
		if err != nil || size != 42 {
			t.Fatalf("Size = %d, %v", size, err)
		}
	}
	if heads := srv.CallsFor("HEAD"); len(heads) != 1 {
		t.Errorf("HEAD calls = %d, want 1", len(heads))
	}
}

func TestFileNotFound(t *testing.T) {
	store, _ := newTestStore(t, nil)
	f := store.Open(context.Background(), "missing.bin")
	defer f.Close()

	if _, err := f.Size(); !errors.IsNotFound(err) {
		t.Errorf("Size = %v, want not-found", err)
	}
}

func TestFileClosed(t *testing.T) {
	store, srv := newTestStore(t, nil)
	srv.SetObject("f.bin", []byte("abc"))

	f := store.Open(context.Background(), "f.bin")
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := f.Read(make([]byte, 1)); !stderrors.Is(err, errors.ErrClosed) {
		t.Errorf("Read after close = %v", err)
	}
	if _, err := f.Seek(0, io.SeekStart); !stderrors.Is(err, errors.ErrClosed) {
		t.Errorf("Seek after close = %v", err)
	}
	if _, err := f.Size(); !stderrors.Is(err, errors.ErrClosed) {
		t.Errorf("Size after close = %v", err)
	}
	if err := f.Close(); !stderrors.Is(err, errors.ErrClosed) {
		t.Errorf("second Close = %v", err)
	}
}

func TestOpenTextDecodesLatin1(t *testing.T) {
	store, srv := newTestStore(t, nil)
	// "café" in ISO 8859-1: é is the single byte 0xE9.
	srv.SetObject("t.txt", []byte{'c', 'a', 'f', 0xE9})

	r := store.OpenText(context.Background(), "t.txt", charmap.ISO8859_1)
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "café" {
		t.Errorf("decoded = %q, want %q", data, "café")
	}
}

func TestOpenTextMultibyteAcrossChunkBoundary(t *testing.T) {
	store, srv := newTestStore(t, nil)

	// 3-byte runes ensure that some ranged fetch boundary falls inside a
	// character; the decoder must carry the partial sequence over.
	text := strings.Repeat("€", 3000) // 9000 bytes of UTF-8
	srv.SetObject("t.txt", []byte(text))

	r := store.OpenText(context.Background(), "t.txt", unicode.UTF8)
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != text {
		t.Fatalf("decoded text corrupted: %d bytes, want %d", len(data), len(text))
	}

	// The content must have been fetched in more than one range for the
	// boundary case to be exercised at all.
	if gets := srv.CallsFor("GET"); len(gets) < 2 {
		t.Errorf("GET calls = %d, want at least 2", len(gets))
	}
}

func TestFileReadAllFromOffset(t *testing.T) {
	store, srv := newTestStore(t, nil)
	srv.SetObject("f.bin", []byte("abcdefghij"))

	f := store.Open(context.Background(), "f.bin")
	defer f.Close()

	if _, err := f.Seek(6, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	data, err := f.ReadAll()
	if err != nil || !bytes.Equal(data, []byte("ghij")) {
		t.Fatalf("ReadAll = %q, %v", data, err)
	}

	gets := srv.CallsFor("GET")
	if len(gets) != 1 || gets[0].Range != "bytes=6-9" {
		t.Errorf("range = %q, want bytes=6-9", gets[0].Range)
	}
}
