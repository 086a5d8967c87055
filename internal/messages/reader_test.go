package messages

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columns = []string{"ROWID", "text", "is_from_me", "display_name", "id", "date"}

func newMockReader(t *testing.T) (*Reader, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func TestRecentScansRows(t *testing.T) {
	r, mock := newMockReader(t)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY message.date DESC")).
		WithArgs(100, 0).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(2), "Balance", int64(0), nil, "+15550001", int64(700_000_000_000_000_000)).
			AddRow(int64(1), nil, int64(1), "Family", nil, int64(699_000_000_000_000_000)))

	rows, err := r.Recent(context.Background(), 100, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, Message{ID: 2, Text: "Balance", Phone: "+15550001", Timestamp: 700_000_000_000_000_000}, rows[0])
	assert.Equal(t, Incoming, rows[0].Direction())
	assert.Equal(t, Outgoing, rows[1].Direction())
	assert.Equal(t, "Family", rows[1].Contact)
	assert.Empty(t, rows[1].Text)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatest(t *testing.T) {
	r, mock := newMockReader(t)

	mock.ExpectQuery("SELECT").WithArgs(1, 0).WillReturnRows(sqlmock.NewRows(columns))
	_, ok, err := r.Latest(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectQuery("SELECT").WithArgs(1, 0).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(int64(9), "x", int64(0), nil, "+1", int64(42)))
	m, ok, err := r.Latest(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), m.Timestamp)
}

func TestByPhoneFiltersOnHandle(t *testing.T) {
	r, mock := newMockReader(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE handle.id = ?")).
		WithArgs("+15550001").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(int64(1), "register", int64(0), nil, "+15550001", int64(1)))

	rows, err := r.ByPhone(context.Background(), "+15550001")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryFailureIsUnavailable(t *testing.T) {
	r, mock := newMockReader(t)
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("database is locked"))

	_, err := r.Recent(context.Background(), 10, 0)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOpenMissingFileIsUnavailable(t *testing.T) {
	r, err := Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Recent(context.Background(), 1, 0)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, r.Ping(context.Background()), ErrUnavailable)
}

func TestMessageDate(t *testing.T) {
	m := Message{Timestamp: int64(time.Hour)}
	assert.Equal(t, time.Date(2001, 1, 1, 1, 0, 0, 0, time.UTC), m.Date())
}
