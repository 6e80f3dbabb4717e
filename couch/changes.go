package couch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Change is one entry from the store's continuous _changes feed.
type Change struct {
	ID  string `json:"id"`
	Seq any    `json:"seq"`
}

// ChangesReader parses the line-delimited JSON stream of a continuous
// changes feed. Heartbeat newlines and non-change lines are skipped.
type ChangesReader struct {
	scanner *bufio.Scanner
}

// NewChangesReader wraps a feed body.
func NewChangesReader(r io.Reader) *ChangesReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &ChangesReader{scanner: sc}
}

// Next blocks until the next change entry, io.EOF at end of stream, or a
// read error. Blank heartbeat lines and lines that are not change objects
// (e.g. the trailing last_seq summary) are consumed silently.
func (cr *ChangesReader) Next() (Change, error) {
	for cr.scanner.Scan() {
		line := cr.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ch Change
		if err := json.Unmarshal(line, &ch); err != nil {
			continue
		}
		if ch.ID == "" || ch.Seq == nil {
			continue
		}
		return ch, nil
	}
	if err := cr.scanner.Err(); err != nil {
		return Change{}, err
	}
	return Change{}, io.EOF
}

// OpenChanges opens a continuous changes feed scoped to a single document
// id. The returned body stays open until the server drops it or ctx is
// cancelled; read it with a ChangesReader and close it when done.
func (c *Client) OpenChanges(ctx context.Context, docID string, heartbeatMillis int) (io.ReadCloser, error) {
	u := fmt.Sprintf("%s/%s/_changes?feed=continuous&heartbeat=%d&since=now&filter=_doc_ids&doc_ids=%s",
		c.base, c.database, heartbeatMillis,
		url.QueryEscape(fmt.Sprintf(`["%s"]`, docID)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.feedHTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open changes feed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("changes feed: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
