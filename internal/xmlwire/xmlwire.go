// Package xmlwire defines the S3 XML bodies FeatherStore reads and writes.
//
// Parsing is namespace-agnostic: fields match by local element name, so
// responses both with and without the S3 xmlns decode the same way.
package xmlwire

import (
	"encoding/xml"
	"fmt"
	"io"
)

// S3NS is the S3 XML namespace URI used in response root elements.
const S3NS = "http://s3.amazonaws.com/doc/2006-03-01/"

// Header is the XML declaration prepended to request bodies.
const Header = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// InitiateMultipartUploadResult is the response to POST ?uploads.
type InitiateMultipartUploadResult struct {
	XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
	Xmlns    string   `xml:"xmlns,attr,omitempty"`
	Bucket   string   `xml:"Bucket"`
	Key      string   `xml:"Key"`
	UploadID string   `xml:"UploadId"`
}

// Part is one (ETag, part number) pair in a completion request.
type Part struct {
	ETag       string `xml:"ETag"`
	PartNumber int    `xml:"PartNumber"`
}

// CompleteMultipartUpload is the request body for POST ?uploadId.
// Parts must be listed in ascending part-number order.
type CompleteMultipartUpload struct {
	XMLName xml.Name `xml:"CompleteMultipartUpload"`
	Xmlns   string   `xml:"xmlns,attr,omitempty"`
	Parts   []Part   `xml:"Part"`
}

// CompleteMultipartUploadResult is the response to POST ?uploadId.
// Location is a pointer because its presence, not the HTTP status, is what
// signals success: servers can return 200 with an embedded error payload.
type CompleteMultipartUploadResult struct {
	XMLName  xml.Name `xml:"CompleteMultipartUploadResult"`
	Xmlns    string   `xml:"xmlns,attr,omitempty"`
	Location *string  `xml:"Location"`
	Bucket   string   `xml:"Bucket"`
	Key      string   `xml:"Key"`
	ETag     string   `xml:"ETag"`
}

// Object is a single entry in a ListBucketResult.
type Object struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
}

// CommonPrefix is one delimiter-grouped prefix in a ListBucketResult.
type CommonPrefix struct {
	Prefix string `xml:"Prefix"`
}

// ListBucketResult is the response to GET /?list-type=2.
type ListBucketResult struct {
	XMLName               xml.Name       `xml:"ListBucketResult"`
	Xmlns                 string         `xml:"xmlns,attr,omitempty"`
	Name                  string         `xml:"Name"`
	Prefix                string         `xml:"Prefix"`
	Delimiter             string         `xml:"Delimiter,omitempty"`
	KeyCount              int            `xml:"KeyCount"`
	MaxKeys               int            `xml:"MaxKeys"`
	IsTruncated           bool           `xml:"IsTruncated"`
	ContinuationToken     string         `xml:"ContinuationToken,omitempty"`
	NextContinuationToken string         `xml:"NextContinuationToken,omitempty"`
	Contents              []Object       `xml:"Contents"`
	CommonPrefixes        []CommonPrefix `xml:"CommonPrefixes"`
}

// ErrorResponse is the S3 error body. Error XML carries no xmlns.
type ErrorResponse struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	Resource  string   `xml:"Resource,omitempty"`
	RequestID string   `xml:"RequestId,omitempty"`
}

// Encode marshals v with the XML declaration prepended, suitable as a
// request body.
func Encode(v any) ([]byte, error) {
	body, err := xml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding XML body: %w", err)
	}
	return append([]byte(Header), body...), nil
}

// Decode reads r fully and unmarshals it into v.
func Decode(r io.Reader, v any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading XML body: %w", err)
	}
	if err := xml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing XML body: %w", err)
	}
	return nil
}
