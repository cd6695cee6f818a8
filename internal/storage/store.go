// Package storage implements the FeatherStore façade over an S3-compatible
// API: seekable remote reads, single-shot and multipart uploads, existence
// and size checks, and delimiter-based directory listing.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"

	"github.com/featherstore/featherstore/internal/config"
	"github.com/featherstore/featherstore/internal/errors"
	"github.com/featherstore/featherstore/internal/transport"
)

// Store exposes the storage operations consumed by collaborators such as a
// web framework's storage adapter. All configuration is explicit and fixed
// at construction. A Store is safe for concurrent use; the Files it opens
// are not.
type Store struct {
	cfg    *config.Config
	client *transport.Client
}

// NewStore builds a Store from explicit configuration.
func NewStore(cfg *config.Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := transport.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{cfg: cfg, client: client}, nil
}

// objectPath maps a stored name to its bucket-rooted request path.
func objectPath(name string) string {
	return "/" + strings.TrimPrefix(name, "/")
}

// readBodyBrief drains and closes resp.Body, returning at most 2 KiB of it
// for error reporting.
func readBodyBrief(resp *http.Response) string {
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return string(data)
}

// statusError builds a StatusError from an unexpected response, consuming
// its body.
func statusError(method, path string, resp *http.Response) error {
	return &errors.StatusError{
		Method: method,
		Path:   path,
		Status: resp.StatusCode,
		Body:   readBodyBrief(resp),
	}
}

// Open returns a lazily-fetching random-access view of the named object.
// No request is issued until the first read, seek-from-end, or Size call.
func (s *Store) Open(ctx context.Context, name string) *File {
	return &File{
		ctx:    ctx,
		client: s.client,
		path:   objectPath(name),
	}
}

// OpenText opens the named object for decoded text reading. Bytes are
// decoded with enc's stateful decoder after assembly, so multi-byte
// characters split across ranged fetches survive intact. Closing the
// returned reader closes the underlying file.
func (s *Store) OpenText(ctx context.Context, name string, enc encoding.Encoding) io.ReadCloser {
	return newTextFile(s.Open(ctx, name), enc)
}

// Save uploads content under the given name and returns the stored name.
// Bodies below the configured multipart threshold go up in a single PUT;
// larger bodies use a multipart upload with the configured part size.
//
// On a mid-upload failure any initiated multipart upload is left open on
// the backend, matching the original implementation; callers wanting
// cleanup can run an UploadSession themselves and Abort on error.
func (s *Store) Save(ctx context.Context, name string, content io.ReadSeeker) (string, error) {
	size, err := content.Seek(0, io.SeekEnd)
	if err != nil {
		return "", fmt.Errorf("measuring content: %w", err)
	}
	if _, err := content.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewinding content: %w", err)
	}

	if size < s.cfg.MultipartThreshold {
		if err := s.saveSingle(ctx, name, content); err != nil {
			return "", err
		}
		return name, nil
	}

	if err := s.saveMultipart(ctx, name, content); err != nil {
		return "", err
	}
	return name, nil
}

// saveSingle issues one PUT for the whole body.
func (s *Store) saveSingle(ctx context.Context, name string, content io.ReadSeeker) error {
	path := objectPath(name)
	resp, err := s.client.Do(ctx, &transport.Request{
		Method: "PUT",
		Path:   path,
		Body:   content,
	})
	if err != nil {
		return err
	}
	if resp.StatusCode != 200 {
		return statusError("PUT", path, resp)
	}
	resp.Body.Close()
	return nil
}

// saveMultipart streams the body through an upload session in part-size
// chunks.
func (s *Store) saveMultipart(ctx context.Context, name string, content io.Reader) error {
	session := NewUploadSession(s.client, objectPath(name))
	if err := session.Initiate(ctx); err != nil {
		return err
	}

	buf := make([]byte, s.cfg.PartSize)
	for {
		n, readErr := io.ReadFull(content, buf)
		if n > 0 {
			if _, err := session.UploadPart(ctx, buf[:n]); err != nil {
				slog.Warn("multipart upload left unfinished on backend",
					"name", name, "uploadID", session.UploadID())
				return err
			}
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("reading content: %w", readErr)
		}
	}

	return session.Complete(ctx)
}

// Delete removes the named object. A 204 response is the only success.
func (s *Store) Delete(ctx context.Context, name string) error {
	path := objectPath(name)
	resp, err := s.client.Do(ctx, &transport.Request{Method: "DELETE", Path: path})
	if err != nil {
		return err
	}
	if resp.StatusCode != 204 {
		return statusError("DELETE", path, resp)
	}
	resp.Body.Close()
	return nil
}

// Exists reports whether the named object is present. Statuses other than
// 200 and 404 are errors.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	path := objectPath(name)
	resp, err := s.client.Do(ctx, &transport.Request{Method: "HEAD", Path: path})
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case 200:
		return true, nil
	case 404:
		return false, nil
	default:
		return false, &errors.StatusError{Method: "HEAD", Path: path, Status: resp.StatusCode}
	}
}

// Size returns the named object's size in bytes from a HEAD request.
func (s *Store) Size(ctx context.Context, name string) (int64, error) {
	path := objectPath(name)
	resp, err := s.client.Do(ctx, &transport.Request{Method: "HEAD", Path: path})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return 0, &errors.StatusError{Method: "HEAD", Path: path, Status: resp.StatusCode}
	}
	size, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing Content-Length: %w", err)
	}
	return size, nil
}

// List returns the directory-like prefixes and object names directly under
// the given path, following continuation tokens until the listing is
// complete. Names are returned with the path prefix stripped; directories
// carry no trailing delimiter.
func (s *Store) List(ctx context.Context, path string) (directories, files []string, err error) {
	prefix := path
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	cursor := NewListingCursor(s.client, prefix)
	for {
		page, err := cursor.Next(ctx)
		if err != nil {
			return nil, nil, err
		}
		if page == nil {
			break
		}
		for _, key := range page.Keys {
			files = append(files, strings.TrimPrefix(key, prefix))
		}
		for _, cp := range page.Prefixes {
			dir := strings.TrimPrefix(cp, prefix)
			directories = append(directories, strings.TrimSuffix(dir, "/"))
		}
	}
	return directories, files, nil
}

// URL returns the display URL for the named object, joined from the
// configured public base URL.
func (s *Store) URL(name string) string {
	return strings.TrimSuffix(s.cfg.PublicBaseURL, "/") + "/" + strings.TrimPrefix(name, "/")
}
