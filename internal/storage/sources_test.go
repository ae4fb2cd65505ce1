package storage_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptops/insight-pipeline/internal/domain"
	"github.com/promptops/insight-pipeline/internal/storage"
	"github.com/promptops/insight-pipeline/internal/testhelpers"
)

func TestGetSource(t *testing.T) {
	store, mock := testhelpers.NewMockStore(t)

	rows := sqlmock.NewRows([]string{
		"id", "project_id", "platform", "url", "config", "created_at", "updated_at",
	}).AddRow("src-1", "proj-1", "REDDIT", "https://www.reddit.com/r/golang", []byte(`{"limit": 100}`), time.Now(), time.Now())

	mock.ExpectQuery("SELECT .+ FROM sources WHERE id").
		WithArgs("src-1").
		WillReturnRows(rows)

	src, err := store.GetSource(context.Background(), "src-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PlatformReddit, src.Platform)

	cfg, err := src.ParseConfig()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Limit)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSourceNotFound(t *testing.T) {
	store, mock := testhelpers.NewMockStore(t)

	mock.ExpectQuery("SELECT .+ FROM sources WHERE id").
		WithArgs("src-gone").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetSource(context.Background(), "src-gone")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateSource(t *testing.T) {
	store, mock := testhelpers.NewMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sources")).
		WithArgs(
			sqlmock.AnyArg(), "proj-1", domain.PlatformGitHub, "etl export",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	src := &domain.Source{
		ProjectID: "proj-1",
		Platform:  domain.PlatformGitHub,
		URL:       "etl export",
		Config:    domain.JSONMap{"auto": true, "limit": 50},
	}
	require.NoError(t, store.CreateSource(context.Background(), src))
	assert.NotEmpty(t, src.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
