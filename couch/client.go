package couch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"slidenode/deck"
)

// ErrNotFound is returned when the store has no document or attachment
// under the requested id.
var ErrNotFound = errors.New("couch: not found")

// Client talks to the CouchDB-style document store.
type Client struct {
	base     string // e.g. http://host:5984
	database string
	http     http.Client
	feedHTTP http.Client // no timeout — used for the continuous changes feed
}

// NewClient creates a store client for one database.
func NewClient(baseURL, database string) *Client {
	return &Client{
		base:     baseURL,
		database: database,
		http:     http.Client{Timeout: 15 * time.Second},
		feedHTTP: http.Client{Timeout: 0},
	}
}

func (c *Client) docURL(id string) string {
	return fmt.Sprintf("%s/%s/%s", c.base, c.database, url.PathEscape(id))
}

// FetchDocument fetches the raw slide-deck document for a node.
func (c *Client) FetchDocument(ctx context.Context, id string) (*deck.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.docURL(id), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch document %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch document %s: status %d", id, resp.StatusCode)
	}

	var doc deck.Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	return &doc, nil
}

// FetchAttachment downloads an attachment's bytes and content type.
func (c *Client) FetchAttachment(ctx context.Context, docID, name string) ([]byte, string, error) {
	u := c.docURL(docID) + "/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch attachment %s/%s: %w", docID, name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, "", fmt.Errorf("attachment %s/%s: %w", docID, name, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, "", fmt.Errorf("fetch attachment %s/%s: status %d", docID, name, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read attachment %s/%s: %w", docID, name, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// DeleteAttachment removes an attachment from a document at the given
// revision. On success it returns the document's new revision so callers
// can chain further deletes.
func (c *Client) DeleteAttachment(ctx context.Context, docID, name, rev string) (string, error) {
	u := fmt.Sprintf("%s/%s?rev=%s", c.docURL(docID), url.PathEscape(name), url.QueryEscape(rev))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("delete attachment %s/%s: %w", docID, name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("delete attachment %s/%s: status %d", docID, name, resp.StatusCode)
	}
	var out struct {
		Rev string `json:"rev"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode delete response for %s/%s: %w", docID, name, err)
	}
	return out.Rev, nil
}

// StatusRecord is the outward-facing playback summary written upstream.
type StatusRecord struct {
	Type                 string `json:"type"`
	NodeUUID             string `json:"tv_uuid"`
	CurrentSlideID       string `json:"current_slide_id"`
	CurrentSlideFilename string `json:"current_slide_filename"`
	Timestamp            string `json:"timestamp"`
}

// PutStatus upserts the node's status document (status_<uuid>). The current
// revision, if any, is fetched first so the PUT replaces rather than
// conflicts; a missing or unparsable status doc is created fresh.
func (c *Client) PutStatus(ctx context.Context, nodeUUID string, rec StatusRecord) error {
	statusID := "status_" + nodeUUID
	rec.Type = "tv_status"
	rec.NodeUUID = nodeUUID
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	payload := map[string]any{
		"type":                   rec.Type,
		"tv_uuid":                rec.NodeUUID,
		"current_slide_id":       rec.CurrentSlideID,
		"current_slide_filename": rec.CurrentSlideFilename,
		"timestamp":              rec.Timestamp,
	}
	if rev, err := c.fetchRev(ctx, statusID); err == nil && rev != "" {
		payload["_rev"] = rev
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode status %s: %w", statusID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.docURL(statusID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("put status %s: %w", statusID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("put status %s: status %d", statusID, resp.StatusCode)
	}
	return nil
}

func (c *Client) fetchRev(ctx context.Context, id string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.docURL(id), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil
	}
	var out struct {
		Rev string `json:"_rev"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Rev, nil
}
