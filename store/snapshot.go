package store

import (
	"database/sql"
	"errors"
)

// SaveDeckSnapshot persists the last known-good deck document so a node
// that reboots during a store outage can resume its previous content.
func (db *DB) SaveDeckSnapshot(docID, revision, body string) error {
	_, err := db.Exec(`
		INSERT INTO deck_snapshot (doc_id, revision, body, saved_at)
		VALUES (?, ?, ?, datetime('now','localtime'))
		ON CONFLICT(doc_id) DO UPDATE SET
			revision = excluded.revision,
			body = excluded.body,
			saved_at = excluded.saved_at`,
		docID, revision, body)
	return err
}

// LoadDeckSnapshot returns the persisted document body and revision for a
// node id, or ("", "", nil) when none has been saved yet.
func (db *DB) LoadDeckSnapshot(docID string) (body, revision string, err error) {
	err = db.QueryRow(`SELECT body, revision FROM deck_snapshot WHERE doc_id = ?`, docID).
		Scan(&body, &revision)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", nil
		}
		return "", "", err
	}
	return body, revision, nil
}
