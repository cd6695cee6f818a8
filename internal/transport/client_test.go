package transport

import (
	"bytes"
	"context"
	stderrors "errors"
	"testing"

	"github.com/featherstore/featherstore/internal/config"
	"github.com/featherstore/featherstore/internal/errors"
	"github.com/featherstore/featherstore/internal/s3test"
	"github.com/featherstore/featherstore/internal/sigv4"
)

var testCreds = sigv4.Credentials{
	AccessKeyID: "AKIDEXAMPLE",
	SecretKey:   "secret",
	Region:      "us-east-1",
}

func testConfig(endpoint string) *config.Config {
	return &config.Config{
		Bucket:         "testbucket",
		Region:         testCreds.Region,
		AccessKey:      testCreds.AccessKeyID,
		SecretKey:      testCreds.SecretKey,
		Endpoint:       endpoint,
		EndpointDomain: config.DefaultEndpointDomain,
		TimeoutSeconds: 5,
	}
}

func TestHostDerivedFromBucketAndRegion(t *testing.T) {
	cfg := testConfig("")
	cfg.Region = "eu-central-1"
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if got := client.Host(); got != "testbucket.s3.eu-central-1.amazonaws.com" {
		t.Errorf("Host = %q", got)
	}
}

func TestHostCustomDomain(t *testing.T) {
	cfg := testConfig("")
	cfg.EndpointDomain = "example-storage.net"
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if got := client.Host(); got != "testbucket.s3.us-east-1.example-storage.net" {
		t.Errorf("Host = %q", got)
	}
}

func TestInvalidEndpointRejected(t *testing.T) {
	if _, err := NewClient(testConfig("not-a-url")); err == nil {
		t.Error("expected error for endpoint without scheme")
	}
}

func TestDoSignedRequestAccepted(t *testing.T) {
	srv := s3test.NewServer(testCreds)
	defer srv.Close()
	srv.SetObject("ping.txt", []byte("pong"))

	client, err := NewClient(testConfig(srv.URL()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	// The fake verifies the SigV4 signature before answering; a 200
	// therefore proves the round trip signed correctly.
	resp, err := client.Do(context.Background(), &Request{Method: "HEAD", Path: "/ping.txt"})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestDoSignsBodyAndQuery(t *testing.T) {
	srv := s3test.NewServer(testCreds)
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	// A PUT with a body and extra headers: the fake checks the payload
	// hash against the received bytes, so a 200 proves the body was
	// hashed, rewound, and sent intact.
	body := bytes.Repeat([]byte("data"), 100000)
	resp, err := client.Do(context.Background(), &Request{
		Method: "PUT",
		Path:   "/dir/file with spaces.bin",
		Header: map[string]string{"Content-Type": "application/octet-stream"},
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got, ok := srv.Object("dir/file with spaces.bin"); !ok || !bytes.Equal(got, body) {
		t.Errorf("stored %d bytes, ok=%v, want %d", len(got), ok, len(body))
	}
}

func TestDoStatusNotInterpreted(t *testing.T) {
	srv := s3test.NewServer(testCreds)
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	// 404 is a response, not an error: interpretation belongs to callers.
	resp, err := client.Do(context.Background(), &Request{Method: "GET", Path: "/absent"})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDoConnectionError(t *testing.T) {
	// A port nothing listens on.
	client, err := NewClient(testConfig("http://127.0.0.1:1"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.Do(context.Background(), &Request{Method: "GET", Path: "/x"})
	var ce *errors.ConnError
	if !stderrors.As(err, &ce) {
		t.Fatalf("error = %v, want *errors.ConnError", err)
	}
	if ce.Op != "GET /x" {
		t.Errorf("Op = %q", ce.Op)
	}
}
