package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/brokenlinks/internal/crawler"
	"github.com/JakeFAU/brokenlinks/internal/report"
)

func TestSinkCopiesRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink, err := NewSinkWithPool(mock, "", nil)
	require.NoError(t, err)

	mock.ExpectCopyFrom(pgx.Identifier{DefaultTable}, columns).WillReturnResult(2)

	err = sink.Write(context.Background(), report.Meta{
		SessionID:  "s1",
		FinishedAt: time.Unix(1700000000, 0).UTC(),
	}, []crawler.ErrorRecord{
		{PageURL: "http://x.test/", ResourceURL: "http://x.test/a.png", ErrorCode: 404},
		{PageURL: "http://x.test/", ResourceURL: "http://x.test/b.css", ErrorCode: 500},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSinkCopyError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink, err := NewSinkWithPool(mock, "reports", nil)
	require.NoError(t, err)

	mock.ExpectCopyFrom(pgx.Identifier{"reports"}, columns).WillReturnError(errors.New("disk full"))

	err = sink.Write(context.Background(), report.Meta{SessionID: "s1"}, []crawler.ErrorRecord{
		{PageURL: "http://x.test/", ResourceURL: "http://x.test/a.png", ErrorCode: 404},
	})
	require.ErrorContains(t, err, "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSinkSkipsEmptyReport(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink, err := NewSinkWithPool(mock, "", nil)
	require.NoError(t, err)
	require.NoError(t, sink.Write(context.Background(), report.Meta{SessionID: "s1"}, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink, err := NewSinkWithPool(mock, "", nil)
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS broken_resources").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, sink.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidTableName(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewSinkWithPool(mock, "reports; DROP TABLE x", nil)
	require.ErrorContains(t, err, "invalid table name")

	_, err = NewSink(context.Background(), Config{}, nil)
	require.ErrorContains(t, err, "dsn is required")
}
