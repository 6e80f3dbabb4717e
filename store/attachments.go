package store

import (
	"database/sql"
	"errors"
)

// Attachment is the index row for one cached media file.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Revision    string `json:"revision"`
	FetchedAt   string `json:"fetched_at"`
}

// UpsertAttachment records (or replaces) the index entry for a cached file.
func (db *DB) UpsertAttachment(name, contentType string, size int64, revision string) error {
	_, err := db.Exec(`
		INSERT INTO attachments (name, content_type, size, revision, fetched_at)
		VALUES (?, ?, ?, ?, datetime('now','localtime'))
		ON CONFLICT(name) DO UPDATE SET
			content_type = excluded.content_type,
			size = excluded.size,
			revision = excluded.revision,
			fetched_at = excluded.fetched_at`,
		name, contentType, size, revision)
	return err
}

// GetAttachment returns the index entry for name, or nil if absent.
func (db *DB) GetAttachment(name string) (*Attachment, error) {
	var a Attachment
	err := db.QueryRow(`
		SELECT name, content_type, size, revision, fetched_at
		FROM attachments WHERE name = ?`, name).
		Scan(&a.Name, &a.ContentType, &a.Size, &a.Revision, &a.FetchedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// DeleteAttachment removes an index entry. No-op if absent.
func (db *DB) DeleteAttachment(name string) error {
	_, err := db.Exec(`DELETE FROM attachments WHERE name = ?`, name)
	return err
}

// ListAttachmentNames returns every indexed name.
func (db *DB) ListAttachmentNames() ([]string, error) {
	rows, err := db.Query(`SELECT name FROM attachments ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
