package storage

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	"github.com/featherstore/featherstore/internal/errors"
	"github.com/featherstore/featherstore/internal/metrics"
	"github.com/featherstore/featherstore/internal/transport"
)

// File is a read-only, seekable view of one remote object, serving reads
// through ranged GETs. The object size is discovered lazily with a single
// HEAD request and memoized.
//
// File deliberately exposes only random-access reads: there is no line
// iteration, no writing, and no file descriptor, because the remote API
// has none of those notions. It implements io.Reader, io.Seeker, and
// io.Closer.
//
// A File is not safe for concurrent use: the cursor is unsynchronized
// state. Wrap it in a lock if shared across goroutines.
type File struct {
	ctx    context.Context
	client *transport.Client
	path   string

	cursor    int64
	size      int64
	sizeKnown bool
	closed    bool
}

// Size returns the object's size, issuing a HEAD request on first call.
func (f *File) Size() (int64, error) {
	if f.closed {
		return 0, errors.ErrClosed
	}
	if f.sizeKnown {
		return f.size, nil
	}

	resp, err := f.client.Do(f.ctx, &transport.Request{Method: "HEAD", Path: f.path})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return 0, &errors.StatusError{Method: "HEAD", Path: f.path, Status: resp.StatusCode}
	}

	size, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing Content-Length: %w", err)
	}
	f.size = size
	f.sizeKnown = true
	return size, nil
}

// Seek moves the read cursor per the io.Seeker contract. Seeking from the
// end fetches the size if not yet known. The new cursor may lie beyond the
// object's end: reads there simply return io.EOF. A cursor before the
// start is an error.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, errors.ErrClosed
	}

	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = f.cursor
	case io.SeekEnd:
		size, err := f.Size()
		if err != nil {
			return 0, err
		}
		base = size
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}

	next := base + offset
	if next < 0 {
		return 0, errors.ErrNegativeOffset
	}
	f.cursor = next
	return next, nil
}

// Read fills p from the cursor with one ranged GET and advances the
// cursor. At or past the end of the object it returns io.EOF without
// issuing a request; a zero-length p reads nothing. Both cases avoid the
// degenerate "bytes=n-(n-1)" range the API would reject.
func (f *File) Read(p []byte) (int, error) {
	if f.closed {
		return 0, errors.ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	size, err := f.Size()
	if err != nil {
		return 0, err
	}
	if f.cursor >= size {
		return 0, io.EOF
	}

	end := f.cursor + int64(len(p))
	if end > size {
		end = size
	}
	data, err := f.fetchRange(f.cursor, end)
	if err != nil {
		return 0, err
	}
	n := copy(p, data)
	f.cursor += int64(n)
	return n, nil
}

// ReadAll returns everything from the cursor to the end of the object in
// one ranged GET, leaving the cursor at the end.
func (f *File) ReadAll() ([]byte, error) {
	if f.closed {
		return nil, errors.ErrClosed
	}

	size, err := f.Size()
	if err != nil {
		return nil, err
	}
	if f.cursor >= size {
		return nil, nil
	}

	data, err := f.fetchRange(f.cursor, size)
	if err != nil {
		return nil, err
	}
	f.cursor += int64(len(data))
	return data, nil
}

// fetchRange issues GET Range: bytes=start-(end-1) and returns the body.
// Callers guarantee start < end <= size.
func (f *File) fetchRange(start, end int64) ([]byte, error) {
	resp, err := f.client.Do(f.ctx, &transport.Request{
		Method: "GET",
		Path:   f.path,
		Header: map[string]string{
			"Range": fmt.Sprintf("bytes=%d-%d", start, end-1),
		},
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 && resp.StatusCode != 206 {
		return nil, &errors.StatusError{Method: "GET", Path: f.path, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading ranged response: %w", err)
	}
	metrics.BytesReceivedTotal.Add(float64(len(data)))
	return data, nil
}

// Close marks the file closed. All further operations, including a second
// Close, fail with the closed-resource error.
func (f *File) Close() error {
	if f.closed {
		return errors.ErrClosed
	}
	f.closed = true
	return nil
}

// textFile decodes a File's bytes through a stateful character decoder.
// The transform reader carries partial multi-byte sequences across ranged
// fetches, so characters straddling a chunk boundary decode correctly.
type textFile struct {
	r io.Reader
	f *File
}

// newTextFile wraps f in enc's decoder.
func newTextFile(f *File, enc encoding.Encoding) io.ReadCloser {
	return &textFile{
		r: transform.NewReader(f, enc.NewDecoder()),
		f: f,
	}
}

func (t *textFile) Read(p []byte) (int, error) { return t.r.Read(p) }

func (t *textFile) Close() error { return t.f.Close() }
