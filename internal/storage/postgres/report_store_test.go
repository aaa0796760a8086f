package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/opinion-crawler/internal/crawler"
)

func TestSaveReportUpsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewReportStoreWithPool(mock, "")
	require.NoError(t, err)

	started := time.Unix(1700000000, 0).UTC()
	rep := crawler.SessionReport{
		RunID:     "run-1",
		SessionID: "session-1",
		Target:    crawler.BrowserTarget{SessionName: "iPhone 14", BuildName: "ElPais Parallel Build"},
		Status:    crawler.SessionStatusSucceeded,
		Started:   started,
		Finished:  started.Add(time.Minute),
		Rows: []crawler.ReportRow{
			{Index: 1, TitleES: "Hola", TitleEN: "Hello", Content: "ignored", Type: crawler.ArticleTypeStandard},
		},
	}

	mock.ExpectExec("INSERT INTO session_reports").
		WithArgs(
			"session-1",
			"run-1",
			"iPhone 14",
			"ElPais Parallel Build",
			"succeeded",
			"",
			rep.Started,
			rep.Finished,
			[]byte(`[{"index":1,"title_es":"Hola","title_en":"Hello","article_type":"Standard Article"}]`),
			[]byte(`{}`),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.SaveReport(context.Background(), rep))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveReportErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewReportStoreWithPool(mock, "reports")
	require.NoError(t, err)

	require.Error(t, store.SaveReport(context.Background(), crawler.SessionReport{}))

	rep := crawler.SessionReport{SessionID: "s", RunID: "r", Status: crawler.SessionStatusFailed, ErrorText: "boom"}
	mock.ExpectExec("INSERT INTO reports").
		WithArgs(
			"s",
			"r",
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
			"failed",
			"boom",
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
			[]byte(`[]`),
			[]byte(`{}`),
		).
		WillReturnError(errors.New("connection reset"))
	err = store.SaveReport(context.Background(), rep)
	require.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewReportStoreWithPool(mock, "session_reports")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS session_reports").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewReportStoreWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewReportStoreWithPool(nil, "x")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewReportStoreWithPool(mock, "bad-name;")
	require.Error(t, err)

	_, err = NewReportStore(context.Background(), ReportStoreConfig{})
	require.Error(t, err)
}
