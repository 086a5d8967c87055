// Package messages reads the desktop messaging app's chat database.
package messages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

// ErrUnavailable is returned when the message log cannot be read.
var ErrUnavailable = errors.New("message log unavailable")

const selectColumns = `
  SELECT
    message.ROWID,
    message.text,
    message.is_from_me,
    chat.display_name,
    handle.id,
    message.date
  FROM message
  JOIN chat_message_join ON message.ROWID = chat_message_join.message_id
  JOIN chat ON chat_message_join.chat_id = chat.ROWID`

const recentQuery = selectColumns + `
  LEFT JOIN handle ON message.handle_id = handle.ROWID
  ORDER BY message.date DESC
  LIMIT ? OFFSET ?`

const byPhoneQuery = selectColumns + `
  JOIN handle ON message.handle_id = handle.ROWID
  WHERE handle.id = ?
  ORDER BY message.date ASC`

// Reader queries the message log. It never writes to it.
type Reader struct {
	db    *sql.DB
	check func() error
}

// Open prepares a read-only reader for the database at path. The file does
// not need to exist yet; queries fail with ErrUnavailable until it does.
func Open(path string) (*Reader, error) {
	dsn := "file:" + (&url.URL{Path: path}).EscapedPath() + "?mode=ro&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open message log: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Reader{
		db: db,
		check: func() error {
			_, err := os.Stat(path)
			return err
		},
	}, nil
}

// NewWithDB wraps an existing handle (used in tests).
func NewWithDB(db *sql.DB) *Reader {
	return &Reader{db: db}
}

// Close releases the database handle.
func (r *Reader) Close() error {
	return r.db.Close()
}

// Recent returns up to limit rows, newest first, skipping offset rows.
func (r *Reader) Recent(ctx context.Context, limit, offset int) ([]Message, error) {
	return r.query(ctx, recentQuery, limit, offset)
}

// Latest returns the newest row, or false when the log is empty.
func (r *Reader) Latest(ctx context.Context) (Message, bool, error) {
	rows, err := r.Recent(ctx, 1, 0)
	if err != nil {
		return Message{}, false, err
	}
	if len(rows) == 0 {
		return Message{}, false, nil
	}
	return rows[0], true, nil
}

// ByPhone returns every row exchanged with phone, oldest first.
func (r *Reader) ByPhone(ctx context.Context, phone string) ([]Message, error) {
	return r.query(ctx, byPhoneQuery, phone)
}

// Ping reports whether the log can currently be queried.
func (r *Reader) Ping(ctx context.Context) error {
	if r.check != nil {
		if err := r.check(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *Reader) query(ctx context.Context, query string, args ...any) ([]Message, error) {
	if r.check != nil {
		if err := r.check(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m                    Message
			text, contact, phone sql.NullString
			fromMe               sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &text, &fromMe, &contact, &phone, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrUnavailable, err)
		}
		m.Text = text.String
		m.Contact = contact.String
		m.Phone = phone.String
		m.FromMe = fromMe.Int64 != 0
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}
