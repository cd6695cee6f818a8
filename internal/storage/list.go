package storage

import (
	"context"

	"github.com/featherstore/featherstore/internal/transport"
	"github.com/featherstore/featherstore/internal/xmlwire"
)

// Page is one page of listing results: object keys and delimiter-grouped
// prefixes, both as returned by the API (prefix not yet stripped).
type Page struct {
	Keys     []string
	Prefixes []string
}

// ListingCursor walks a paginated ListObjectsV2 listing for one prefix,
// delimiter "/". Each Next call fetches one page; the cursor keeps only
// the continuation token between calls, so listings of any length use
// constant memory here.
type ListingCursor struct {
	client *transport.Client
	prefix string

	token string
	done  bool
}

// NewListingCursor prepares a cursor over the given prefix.
func NewListingCursor(client *transport.Client, prefix string) *ListingCursor {
	return &ListingCursor{client: client, prefix: prefix}
}

// Next fetches the next page, or returns (nil, nil) once the listing is
// exhausted. A non-200 response is fatal.
func (c *ListingCursor) Next(ctx context.Context) (*Page, error) {
	if c.done {
		return nil, nil
	}

	query := map[string]string{
		"list-type": "2",
		"prefix":    c.prefix,
		"delimiter": "/",
	}
	if c.token != "" {
		query["continuation-token"] = c.token
	}

	resp, err := c.client.Do(ctx, &transport.Request{
		Method: "GET",
		Path:   "/",
		Query:  query,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, statusError("GET", "/", resp)
	}
	defer resp.Body.Close()

	var result xmlwire.ListBucketResult
	if err := xmlwire.Decode(resp.Body, &result); err != nil {
		return nil, err
	}

	page := &Page{}
	for _, obj := range result.Contents {
		page.Keys = append(page.Keys, obj.Key)
	}
	for _, cp := range result.CommonPrefixes {
		page.Prefixes = append(page.Prefixes, cp.Prefix)
	}

	c.token = result.NextContinuationToken
	if c.token == "" {
		c.done = true
	}
	return page, nil
}
