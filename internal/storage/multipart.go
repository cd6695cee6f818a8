package storage

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strconv"
	"sync"

	"github.com/featherstore/featherstore/internal/errors"
	"github.com/featherstore/featherstore/internal/metrics"
	"github.com/featherstore/featherstore/internal/transport"
	"github.com/featherstore/featherstore/internal/xmlwire"
)

// Session states. A session moves uninitiated → active → completed, or
// active → aborted when the caller gives up.
const (
	stateUninitiated = iota
	stateActive
	stateCompleted
	stateAborted
)

// UploadSession orchestrates one multipart upload: initiate, part PUTs,
// completion. Parts may be uploaded concurrently; the parts list is
// mutated under a lock and sorted by part number before completion, so
// append order never matters. Re-uploading an existing part number
// replaces that part, which is how callers retry a failed part.
type UploadSession struct {
	client *transport.Client
	path   string

	mu       sync.Mutex
	state    int
	uploadID string
	nextPart int
	parts    []xmlwire.Part
}

// NewUploadSession prepares an upload session for the given object path.
// Nothing is sent until Initiate.
func NewUploadSession(client *transport.Client, path string) *UploadSession {
	return &UploadSession{
		client:   client,
		path:     path,
		nextPart: 1,
	}
}

// UploadID returns the backend's upload identifier, empty before Initiate.
func (s *UploadSession) UploadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploadID
}

// Initiate starts the multipart upload and captures its upload ID.
func (s *UploadSession) Initiate(ctx context.Context) error {
	s.mu.Lock()
	if s.state != stateUninitiated {
		s.mu.Unlock()
		return errors.ErrUploadState
	}
	s.mu.Unlock()

	resp, err := s.client.Do(ctx, &transport.Request{
		Method: "POST",
		Path:   s.path,
		Query:  map[string]string{"uploads": ""},
	})
	if err != nil {
		return err
	}
	if resp.StatusCode != 200 {
		return statusError("POST", s.path, resp)
	}
	defer resp.Body.Close()

	var result xmlwire.InitiateMultipartUploadResult
	if err := xmlwire.Decode(resp.Body, &result); err != nil {
		return err
	}
	if result.UploadID == "" {
		return &errors.ProtocolError{Element: "UploadId"}
	}

	s.mu.Lock()
	s.uploadID = result.UploadID
	s.state = stateActive
	s.mu.Unlock()
	return nil
}

// UploadPart uploads data as the next part in sequence and returns its
// part number.
func (s *UploadSession) UploadPart(ctx context.Context, data []byte) (int, error) {
	s.mu.Lock()
	if s.state != stateActive {
		s.mu.Unlock()
		return 0, errors.ErrUploadState
	}
	partNumber := s.nextPart
	s.nextPart++
	s.mu.Unlock()

	if err := s.UploadPartNumber(ctx, partNumber, data); err != nil {
		return 0, err
	}
	return partNumber, nil
}

// UploadPartNumber uploads data as the given part number. Uploading a part
// number that was already sent replaces it, both here and on the backend,
// so the call is retry-idempotent.
func (s *UploadSession) UploadPartNumber(ctx context.Context, partNumber int, data []byte) error {
	s.mu.Lock()
	if s.state != stateActive {
		s.mu.Unlock()
		return errors.ErrUploadState
	}
	uploadID := s.uploadID
	s.mu.Unlock()

	resp, err := s.client.Do(ctx, &transport.Request{
		Method: "PUT",
		Path:   s.path,
		Query: map[string]string{
			"partNumber": strconv.Itoa(partNumber),
			"uploadId":   uploadID,
		},
		Body: bytes.NewReader(data),
	})
	if err != nil {
		return err
	}
	if resp.StatusCode != 200 {
		return statusError("PUT", s.path, resp)
	}
	etag := resp.Header.Get("ETag")
	resp.Body.Close()

	s.mu.Lock()
	replaced := false
	for i := range s.parts {
		if s.parts[i].PartNumber == partNumber {
			s.parts[i].ETag = etag
			replaced = true
			break
		}
	}
	if !replaced {
		s.parts = append(s.parts, xmlwire.Part{ETag: etag, PartNumber: partNumber})
	}
	s.mu.Unlock()

	metrics.MultipartPartsTotal.Inc()
	return nil
}

// Complete stitches the uploaded parts together. The part list is sent in
// ascending part-number order regardless of upload order. Success is
// determined by the presence of a Location element in the response XML,
// not by the HTTP status: backends can answer 200 with an embedded error
// payload. After Complete the session accepts no further operations.
func (s *UploadSession) Complete(ctx context.Context) error {
	s.mu.Lock()
	if s.state != stateActive {
		s.mu.Unlock()
		return errors.ErrUploadState
	}
	uploadID := s.uploadID
	parts := append([]xmlwire.Part(nil), s.parts...)
	s.mu.Unlock()

	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })

	body, err := xmlwire.Encode(&xmlwire.CompleteMultipartUpload{
		Xmlns: xmlwire.S3NS,
		Parts: parts,
	})
	if err != nil {
		return err
	}

	resp, err := s.client.Do(ctx, &transport.Request{
		Method: "POST",
		Path:   s.path,
		Query:  map[string]string{"uploadId": uploadID},
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var result xmlwire.CompleteMultipartUploadResult
	if err := xmlwire.Decode(bytes.NewReader(respBody), &result); err != nil || result.Location == nil {
		if resp.StatusCode != 200 {
			return &errors.StatusError{
				Method: "POST",
				Path:   s.path,
				Status: resp.StatusCode,
				Body:   string(respBody),
			}
		}
		return &errors.ProtocolError{Element: "Location"}
	}

	s.mu.Lock()
	s.state = stateCompleted
	s.mu.Unlock()
	return nil
}

// Abort discards the upload on the backend. The façade never calls this
// automatically on failure; it exists for callers that want cleanup
// instead of the inherited leave-it-open behavior.
func (s *UploadSession) Abort(ctx context.Context) error {
	s.mu.Lock()
	if s.state != stateActive {
		s.mu.Unlock()
		return errors.ErrUploadState
	}
	uploadID := s.uploadID
	s.mu.Unlock()

	resp, err := s.client.Do(ctx, &transport.Request{
		Method: "DELETE",
		Path:   s.path,
		Query:  map[string]string{"uploadId": uploadID},
	})
	if err != nil {
		return err
	}
	if resp.StatusCode != 204 {
		return statusError("DELETE", s.path, resp)
	}
	resp.Body.Close()

	s.mu.Lock()
	s.state = stateAborted
	s.mu.Unlock()
	return nil
}
