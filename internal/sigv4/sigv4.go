// Package sigv4 implements AWS Signature Version 4 request signing.
//
// Signing is a pure function over the request descriptor, the credentials,
// and a timestamp: given identical inputs it reproduces the Authorization
// header bit-for-bit. All I/O and status handling live in the transport.
package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"
	"strings"
	"time"
)

const (
	// Algorithm is the signing algorithm identifier.
	Algorithm = "AWS4-HMAC-SHA256"

	// scopeTerminator is the fixed suffix of the credential scope.
	scopeTerminator = "aws4_request"

	// service is the service name for S3.
	service = "s3"

	// EmptyPayloadHash is the SHA-256 hash of an empty payload.
	EmptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	// amzDateFormat is the format for x-amz-date values.
	amzDateFormat = "20060102T150405Z"

	// amzDateShort is the format for the date portion of credential scope.
	amzDateShort = "20060102"

	// hashBlockSize is the read block size when hashing streaming bodies.
	hashBlockSize = 64 * 1024
)

// Credentials identifies the signing principal. Values are immutable once
// constructed and are never persisted by this package.
type Credentials struct {
	// AccessKeyID is the access key identifier placed in the credential scope.
	AccessKeyID string
	// SecretKey seeds the signing key derivation chain.
	SecretKey string
	// SessionToken, when non-empty, is attached as X-Amz-Security-Token.
	// It is appended after signing and is not part of the signed header set.
	SessionToken string
	// Region is the region used in the credential scope.
	Region string
}

// SignInput describes one request to be signed.
type SignInput struct {
	// Method is the HTTP method, upper case.
	Method string
	// Path is the absolute request path (e.g. "/test.txt"), unencoded.
	Path string
	// Query holds the request query parameters. May be nil.
	Query map[string]string
	// Headers holds caller-supplied headers to include in the signature
	// (e.g. Range, Content-Type). May be nil.
	Headers map[string]string
	// Host is the target host, signed as the host header.
	Host string
	// PayloadHash is the lowercase hex SHA-256 of the request body.
	// Use EmptyPayloadHash for absent bodies.
	PayloadHash string
	// Time is the signing timestamp. Converted to UTC internally.
	Time time.Time
}

// Sign computes the SigV4 authentication headers for the given request.
// The returned map contains x-amz-date, x-amz-content-sha256, Authorization,
// and X-Amz-Security-Token when the credentials carry a session token.
func Sign(in SignInput, creds Credentials) map[string]string {
	now := in.Time.UTC()
	amzDate := now.Format(amzDateFormat)
	dateStr := now.Format(amzDateShort)

	// Canonical header set: mandatory host, content hash, and date plus
	// all caller-supplied headers, lower-cased and trimmed, byte-sorted.
	type header struct{ name, value string }
	canonical := []header{
		{"host", in.Host},
		{"x-amz-content-sha256", in.PayloadHash},
		{"x-amz-date", amzDate},
	}
	for name, value := range in.Headers {
		canonical = append(canonical, header{strings.ToLower(name), strings.TrimSpace(value)})
	}
	sort.Slice(canonical, func(i, j int) bool { return canonical[i].name < canonical[j].name })

	var headerBlock strings.Builder
	names := make([]string, 0, len(canonical))
	for _, h := range canonical {
		headerBlock.WriteString(h.name)
		headerBlock.WriteByte(':')
		headerBlock.WriteString(h.value)
		headerBlock.WriteByte('\n')
		names = append(names, h.name)
	}
	signedHeaders := strings.Join(names, ";")

	// Canonical request: METHOD\nPATH\nQUERY\nHEADERS\n\nNAMES\nHASH.
	// The blank line is produced by the trailing \n of the header block.
	canonicalRequest := in.Method + "\n" +
		EncodePath(in.Path) + "\n" +
		CanonicalQueryString(in.Query) + "\n" +
		headerBlock.String() + "\n" +
		signedHeaders + "\n" +
		in.PayloadHash

	scope := dateStr + "/" + creds.Region + "/" + service + "/" + scopeTerminator
	stringToSign := buildStringToSign(amzDate, scope, canonicalRequest)

	signingKey := deriveSigningKey(creds.SecretKey, dateStr, creds.Region)
	signature := hex.EncodeToString(hmacSHA256(signingKey, stringToSign))

	out := map[string]string{
		"x-amz-date":           amzDate,
		"x-amz-content-sha256": in.PayloadHash,
		"Authorization": Algorithm +
			" Credential=" + creds.AccessKeyID + "/" + scope +
			",SignedHeaders=" + signedHeaders +
			",Signature=" + signature,
	}
	if creds.SessionToken != "" {
		out["X-Amz-Security-Token"] = creds.SessionToken
	}
	return out
}

// buildStringToSign builds the SigV4 string to sign.
func buildStringToSign(amzDate, scope, canonicalRequest string) string {
	hash := sha256.Sum256([]byte(canonicalRequest))
	return Algorithm + "\n" +
		amzDate + "\n" +
		scope + "\n" +
		hex.EncodeToString(hash[:])
}

// deriveSigningKey derives the request signing key using the HMAC chain:
// "AWS4"+secret seeds the date key, then region, service, and the scope
// terminator in turn, each output keying the next step.
func deriveSigningKey(secretKey, dateStr, region string) []byte {
	dateKey := hmacSHA256([]byte("AWS4"+secretKey), dateStr)
	regionKey := hmacSHA256(dateKey, region)
	serviceKey := hmacSHA256(regionKey, service)
	return hmacSHA256(serviceKey, scopeTerminator)
}

// hmacSHA256 computes HMAC-SHA256 of the data using the given key.
func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

// HashBytes returns the lowercase hex SHA-256 of b.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashReadSeeker hashes the full contents of rs in fixed-size blocks,
// counting bytes in the same pass, and rewinds rs to the start so the
// transport can send it unchanged. The final read position is unaltered
// relative to a fresh body: always the start.
func HashReadSeeker(rs io.ReadSeeker) (hash string, length int64, err error) {
	if _, err = rs.Seek(0, io.SeekStart); err != nil {
		return "", 0, err
	}
	h := sha256.New()
	buf := make([]byte, hashBlockSize)
	for {
		n, readErr := rs.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			length += int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", 0, readErr
		}
	}
	if _, err = rs.Seek(0, io.SeekStart); err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), length, nil
}

// CanonicalQueryString returns the sorted, URI-encoded query string, or ""
// when there are no parameters. The transport appends this exact string to
// the request path so the wire query always matches the signed query.
func CanonicalQueryString(query map[string]string) string {
	if len(query) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(query))
	for key, value := range query {
		pairs = append(pairs, URIEncode(key, true)+"="+URIEncode(value, true))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "&")
}

// EncodePath returns the URI-encoded absolute path. Forward slashes are
// NOT encoded. An empty path becomes "/". The transport sends this exact
// encoding so the wire path always matches the signed path.
func EncodePath(path string) string {
	if path == "" {
		return "/"
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = URIEncode(seg, false)
	}
	return strings.Join(segments, "/")
}

// URIEncode encodes a string per S3 URI encoding rules.
// Characters A-Z, a-z, 0-9, '-', '_', '.', '~' are NOT encoded.
// If encodeSlash is false, '/' is also NOT encoded.
// All other characters are percent-encoded with uppercase hex.
func URIEncode(s string, encodeSlash bool) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isURIUnreserved(c) || (!encodeSlash && c == '/') {
			sb.WriteByte(c)
		} else {
			sb.WriteByte('%')
			sb.WriteByte(hexDigit(c >> 4))
			sb.WriteByte(hexDigit(c & 0x0f))
		}
	}
	return sb.String()
}

// isURIUnreserved returns true if the byte is an unreserved URI character.
func isURIUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

// hexDigit returns the uppercase hex digit for a 4-bit value.
func hexDigit(b byte) byte {
	if b < 10 {
		return '0' + b
	}
	return 'A' + b - 10
}
