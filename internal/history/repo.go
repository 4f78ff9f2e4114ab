package history

import (
	"fmt"
	"time"
)

// Operation kinds.
const (
	KindDisplayText = "display_text"
	KindDisplaySize = "display_size"
	KindRetarget    = "retarget"
	KindRename      = "rename"
	KindTrash       = "trash"
)

// Operation is one recorded change to an image reference. ImageHash is
// the hex MD5 of the image content when the caller could supply one; a
// hash-less operation is still valid and queryable by path.
type Operation struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	ImagePath string    `json:"image_path"`
	ImageHash string    `json:"image_hash,omitempty"`
	NotePath  string    `json:"note_path,omitempty"`
	Line      int       `json:"line,omitempty"`
	OldLine   string    `json:"old_line,omitempty"`
	NewLine   string    `json:"new_line,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Append inserts one operation. A zero CreatedAt is filled in with the
// current time.
func (db *DB) Append(op Operation) error {
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}
	_, err := db.conn.Exec(`
		INSERT INTO operations (kind, image_path, image_hash, note_path, line, old_line, new_line, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, op.Kind, op.ImagePath, op.ImageHash, op.NotePath, op.Line, op.OldLine, op.NewLine, op.CreatedAt)
	if err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

// ByImage returns operations for one image, newest first. Rows match on
// path, or on content hash when one is given — the hash survives
// renames, the path does not.
func (db *DB) ByImage(path, hash string, limit int) ([]Operation, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, kind, image_path, image_hash, note_path, line, old_line, new_line, created_at
		FROM operations WHERE image_path = ?`
	args := []any{path}
	if hash != "" {
		query += ` OR image_hash = ?`
		args = append(args, hash)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: by image: %w", err)
	}
	defer rows.Close()
	return scanOperations(rows)
}

// Recent returns the latest operations across all images, newest first.
func (db *DB) Recent(limit int) ([]Operation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.Query(`
		SELECT id, kind, image_path, image_hash, note_path, line, old_line, new_line, created_at
		FROM operations ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()
	return scanOperations(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanOperations(rows rowScanner) ([]Operation, error) {
	var out []Operation
	for rows.Next() {
		var op Operation
		if err := rows.Scan(&op.ID, &op.Kind, &op.ImagePath, &op.ImageHash,
			&op.NotePath, &op.Line, &op.OldLine, &op.NewLine, &op.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}
