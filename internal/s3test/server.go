// Package s3test provides an in-process fake of the S3 HTTP API for tests.
//
// The fake stores objects in memory, implements ranged GETs, the multipart
// upload trio, and paginated ListObjectsV2, and verifies the SigV4
// signature of every request by recomputing it with the signer under test.
// A journal of handled calls supports request-level assertions.
package s3test

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/featherstore/featherstore/internal/sigv4"
	"github.com/featherstore/featherstore/internal/uid"
	"github.com/featherstore/featherstore/internal/xmlwire"
)

// Call records one handled request for test assertions.
type Call struct {
	Method string
	Path   string
	Query  map[string]string
	// Range is the Range header, if any.
	Range string
}

// upload tracks one in-progress multipart upload.
type upload struct {
	key   string
	parts map[int][]byte
	etags map[int]string
}

// Server is an in-memory S3-compatible fake bound to one bucket.
type Server struct {
	creds    sigv4.Credentials
	pageSize int
	// omitLocation makes multipart completion answer 200 with an error
	// payload instead of a Location element.
	omitLocation bool
	// skipAuth disables signature verification.
	skipAuth bool

	mu      sync.Mutex
	objects map[string][]byte
	uploads map[string]*upload
	journal []Call

	httpSrv *httptest.Server
}

// Option configures a Server.
type Option func(*Server)

// WithPageSize caps ListObjectsV2 pages at n entries, forcing pagination.
func WithPageSize(n int) Option {
	return func(s *Server) { s.pageSize = n }
}

// WithOmitCompleteLocation makes multipart completion return HTTP 200 with
// an embedded error body and no Location element.
func WithOmitCompleteLocation() Option {
	return func(s *Server) { s.omitLocation = true }
}

// WithoutAuth disables SigV4 verification.
func WithoutAuth() Option {
	return func(s *Server) { s.skipAuth = true }
}

// NewServer starts a fake S3 server that accepts requests signed with the
// given credentials. Callers must Close it.
func NewServer(creds sigv4.Credentials, opts ...Option) *Server {
	s := &Server{
		creds:    creds,
		pageSize: 1000,
		objects:  make(map[string][]byte),
		uploads:  make(map[string]*upload),
	}
	for _, opt := range opts {
		opt(s)
	}

	router := chi.NewMux()
	router.Use(s.authMiddleware)
	router.Get("/*", s.handleGet)
	router.Head("/*", s.handleHead)
	router.Put("/*", s.handlePut)
	router.Post("/*", s.handlePost)
	router.Delete("/*", s.handleDelete)

	s.httpSrv = httptest.NewServer(router)
	return s
}

// URL returns the scheme://host:port endpoint of the fake.
func (s *Server) URL() string { return s.httpSrv.URL }

// Close shuts the fake down.
func (s *Server) Close() { s.httpSrv.Close() }

// SetObject seeds an object.
func (s *Server) SetObject(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
}

// Object returns a stored object's bytes.
func (s *Server) Object(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return data, ok
}

// OpenUploads reports the number of initiated-but-unfinished uploads.
func (s *Server) OpenUploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

// Calls returns a copy of the request journal.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.journal...)
}

// CallsFor returns the journal entries with the given method.
func (s *Server) CallsFor(method string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// record appends a journal entry for r.
func (s *Server) record(r *http.Request) {
	query := make(map[string]string)
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			query[k] = vs[0]
		}
	}
	s.mu.Lock()
	s.journal = append(s.journal, Call{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  query,
		Range:  r.Header.Get("Range"),
	})
	s.mu.Unlock()
}

// authMiddleware journals the call and verifies its SigV4 signature by
// recomputing the Authorization header from the request.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		if !s.skipAuth {
			if err := s.verify(r); err != nil {
				writeError(w, 403, "SignatureDoesNotMatch", err.Error())
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// verify recomputes the request signature and checks the payload hash.
func (s *Server) verify(r *http.Request) error {
	got := r.Header.Get("Authorization")
	if !strings.HasPrefix(got, sigv4.Algorithm+" ") {
		return fmt.Errorf("missing or malformed Authorization header")
	}

	idx := strings.Index(got, "SignedHeaders=")
	if idx < 0 {
		return fmt.Errorf("missing SignedHeaders")
	}
	names := got[idx+len("SignedHeaders="):]
	if comma := strings.IndexByte(names, ','); comma >= 0 {
		names = names[:comma]
	}

	// Rebuild the extra-header set the client signed: everything except
	// the three the signer adds itself.
	extra := make(map[string]string)
	for _, name := range strings.Split(names, ";") {
		switch name {
		case "host", "x-amz-date", "x-amz-content-sha256":
			continue
		}
		extra[name] = r.Header.Get(name)
	}

	payloadHash := r.Header.Get("x-amz-content-sha256")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	r.Body = io.NopCloser(strings.NewReader(string(body)))
	sum := sha256.Sum256(body)
	if payloadHash != hex.EncodeToString(sum[:]) {
		return fmt.Errorf("payload hash mismatch")
	}

	signTime, err := time.Parse("20060102T150405Z", r.Header.Get("x-amz-date"))
	if err != nil {
		return fmt.Errorf("parsing x-amz-date: %w", err)
	}

	query := make(map[string]string)
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			query[k] = vs[0]
		}
	}

	want := sigv4.Sign(sigv4.SignInput{
		Method:      r.Method,
		Path:        r.URL.Path,
		Query:       query,
		Headers:     extra,
		Host:        r.Host,
		PayloadHash: payloadHash,
		Time:        signTime,
	}, s.creds)

	if want["Authorization"] != got {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// key maps a request path to an object key.
func key(r *http.Request) string {
	return strings.TrimPrefix(r.URL.Path, "/")
}

func etagFor(data []byte) string {
	sum := md5.Sum(data)
	return fmt.Sprintf("%q", hex.EncodeToString(sum[:]))
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	body, _ := xmlwire.Encode(&xmlwire.ErrorResponse{Code: code, Message: message})
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	w.Write(body)
}

func writeXML(w http.ResponseWriter, status int, v any) {
	body, err := xmlwire.Encode(v)
	if err != nil {
		writeError(w, 500, "InternalError", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	w.Write(body)
}

func (s *Server) handleHead(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	data, ok := s.objects[key(r)]
	s.mu.Unlock()
	if !ok {
		w.WriteHeader(404)
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("ETag", etagFor(data))
	w.WriteHeader(200)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" && r.URL.Query().Get("list-type") == "2" {
		s.handleList(w, r)
		return
	}

	s.mu.Lock()
	data, ok := s.objects[key(r)]
	s.mu.Unlock()
	if !ok {
		writeError(w, 404, "NoSuchKey", "The specified key does not exist")
		return
	}

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(200)
		w.Write(data)
		return
	}

	start, end, err := parseRange(rangeHeader, len(data))
	if err != nil {
		writeError(w, 416, "InvalidRange", err.Error())
		return
	}
	chunk := data[start : end+1]
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(data)))
	w.Header().Set("Content-Length", strconv.Itoa(len(chunk)))
	w.WriteHeader(206)
	w.Write(chunk)
}

// parseRange parses "bytes=a-b" against an object of the given size.
func parseRange(header string, size int) (start, end int, err error) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, 0, fmt.Errorf("unsupported range unit in %q", header)
	}
	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return 0, 0, fmt.Errorf("malformed range %q", header)
	}
	start, err = strconv.Atoi(spec[:dash])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed range %q", header)
	}
	end, err = strconv.Atoi(spec[dash+1:])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed range %q", header)
	}
	if start > end || start >= size {
		return 0, 0, fmt.Errorf("range %q not satisfiable for size %d", header, size)
	}
	if end >= size {
		end = size - 1
	}
	return start, end, nil
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, 500, "InternalError", err.Error())
		return
	}

	q := r.URL.Query()
	if q.Get("uploadId") != "" {
		s.handleUploadPart(w, r, q.Get("uploadId"), q.Get("partNumber"), data)
		return
	}

	s.mu.Lock()
	s.objects[key(r)] = data
	s.mu.Unlock()
	w.Header().Set("ETag", etagFor(data))
	w.WriteHeader(200)
}

func (s *Server) handleUploadPart(w http.ResponseWriter, r *http.Request, uploadID, partStr string, data []byte) {
	partNumber, err := strconv.Atoi(partStr)
	if err != nil || partNumber < 1 {
		writeError(w, 400, "InvalidArgument", "invalid partNumber")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	up, ok := s.uploads[uploadID]
	if !ok {
		writeError(w, 404, "NoSuchUpload", "The specified multipart upload does not exist")
		return
	}
	etag := etagFor(data)
	up.parts[partNumber] = data
	up.etags[partNumber] = etag
	w.Header().Set("ETag", etag)
	w.WriteHeader(200)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Has("uploads"):
		s.handleInitiate(w, r)
	case q.Get("uploadId") != "":
		s.handleComplete(w, r, q.Get("uploadId"))
	default:
		writeError(w, 400, "InvalidRequest", "unsupported POST")
	}
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	uploadID := uid.New()
	s.mu.Lock()
	s.uploads[uploadID] = &upload{
		key:   key(r),
		parts: make(map[int][]byte),
		etags: make(map[int]string),
	}
	s.mu.Unlock()

	writeXML(w, 200, &xmlwire.InitiateMultipartUploadResult{
		Xmlns:    xmlwire.S3NS,
		Key:      key(r),
		UploadID: uploadID,
	})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request, uploadID string) {
	var req xmlwire.CompleteMultipartUpload
	if err := xmlwire.Decode(r.Body, &req); err != nil {
		writeError(w, 400, "MalformedXML", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	up, ok := s.uploads[uploadID]
	if !ok {
		writeError(w, 404, "NoSuchUpload", "The specified multipart upload does not exist")
		return
	}

	var assembled []byte
	prev := 0
	for _, part := range req.Parts {
		if part.PartNumber <= prev {
			writeError(w, 400, "InvalidPartOrder", "The list of parts was not in ascending order")
			return
		}
		data, ok := up.parts[part.PartNumber]
		if !ok || up.etags[part.PartNumber] != part.ETag {
			writeError(w, 400, "InvalidPart", "One or more of the specified parts could not be found")
			return
		}
		assembled = append(assembled, data...)
		prev = part.PartNumber
	}

	if s.omitLocation {
		// 200 with an embedded error and no Location element: the mode
		// real backends exhibit when completion fails late.
		writeXML(w, 200, &xmlwire.ErrorResponse{Code: "InternalError", Message: "completion failed"})
		return
	}

	s.objects[up.key] = assembled
	delete(s.uploads, uploadID)

	location := s.httpSrv.URL + "/" + up.key
	writeXML(w, 200, &xmlwire.CompleteMultipartUploadResult{
		Xmlns:    xmlwire.S3NS,
		Location: &location,
		Key:      up.key,
		ETag:     etagFor(assembled),
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.mu.Lock()
	defer s.mu.Unlock()

	if uploadID := q.Get("uploadId"); uploadID != "" {
		delete(s.uploads, uploadID)
		w.WriteHeader(204)
		return
	}

	delete(s.objects, key(r))
	w.WriteHeader(204)
}

// listEntry is one rolled-up listing row: an object key or a common prefix.
type listEntry struct {
	name     string
	isPrefix bool
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	prefix := q.Get("prefix")
	delimiter := q.Get("delimiter")
	token := q.Get("continuation-token")

	s.mu.Lock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	sort.Strings(keys)

	// Roll keys up by delimiter into ordered, de-duplicated entries.
	var entries []listEntry
	seen := make(map[string]bool)
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := k[len(prefix):]
		if delimiter != "" {
			if idx := strings.Index(rest, delimiter); idx >= 0 {
				cp := prefix + rest[:idx+len(delimiter)]
				if !seen[cp] {
					seen[cp] = true
					entries = append(entries, listEntry{name: cp, isPrefix: true})
				}
				continue
			}
		}
		entries = append(entries, listEntry{name: k})
	}

	// The continuation token is an opaque offset into the entry list.
	offset := 0
	if token != "" {
		n, err := strconv.Atoi(token)
		if err != nil || n < 0 || n > len(entries) {
			writeError(w, 400, "InvalidArgument", "invalid continuation token")
			return
		}
		offset = n
	}

	end := offset + s.pageSize
	if end > len(entries) {
		end = len(entries)
	}
	page := entries[offset:end]

	result := &xmlwire.ListBucketResult{
		Xmlns:     xmlwire.S3NS,
		Prefix:    prefix,
		Delimiter: delimiter,
		KeyCount:  len(page),
		MaxKeys:   s.pageSize,
	}
	for _, e := range page {
		if e.isPrefix {
			result.CommonPrefixes = append(result.CommonPrefixes, xmlwire.CommonPrefix{Prefix: e.name})
		} else {
			result.Contents = append(result.Contents, xmlwire.Object{Key: e.name})
		}
	}
	if end < len(entries) {
		result.IsTruncated = true
		result.NextContinuationToken = strconv.Itoa(end)
	}

	writeXML(w, 200, result)
}
