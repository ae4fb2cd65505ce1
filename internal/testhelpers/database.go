package testhelpers

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/promptops/insight-pipeline/internal/storage"
)

// NewMockStore returns a Store backed by a sqlmock connection. Queries are
// matched by regular expression; use regexp.QuoteMeta for literal SQL.
func NewMockStore(t *testing.T) (*storage.Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return storage.NewWithDB(sqlx.NewDb(db, "postgres"), NewTestLogger()), mock
}
