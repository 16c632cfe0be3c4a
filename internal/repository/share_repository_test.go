package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/docshare-api/internal/models"
)

var shareRowColumns = []string{"id", "document_id", "owner_id", "token", "share_type", "share_code", "expires_at", "access_count", "created_at", "updated_at"}

func TestShareUpsertCreates(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewShareRepository(db)

	now := time.Now()
	code := "1234"
	share := &models.Share{ID: "s1", Token: "tok", DocumentID: "d1", OwnerID: "u1", Type: models.ShareTypePassword, Code: &code}

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (document_id) DO UPDATE")).
		WithArgs("s1", "d1", "u1", "tok", "with_password", "1234", nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(shareRowColumns).AddRow("s1", "d1", "u1", "tok", "with_password", "1234", nil, int64(0), now, now))

	created, err := repo.Upsert(context.Background(), share)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "tok", share.Token)
	assert.Equal(t, "1234", *share.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShareUpsertKeepsExistingToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewShareRepository(db)

	now := time.Now()
	share := &models.Share{DocumentID: "d1", OwnerID: "u1", Type: models.ShareTypeOpen}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO document_shares")).
		WillReturnRows(sqlmock.NewRows(shareRowColumns).AddRow("existing", "d1", "u1", "old-token", "no_password", nil, nil, int64(7), now, now))

	created, err := repo.Upsert(context.Background(), share)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "old-token", share.Token)
	assert.Nil(t, share.Code)
	assert.Equal(t, int64(7), share.AccessCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShareGetByTokenJoinsDocument(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewShareRepository(db)

	now := time.Now()
	cols := append(append([]string{}, shareRowColumns...), "filename", "mime_type", "file_size", "storage_key")
	mock.ExpectQuery(regexp.QuoteMeta("JOIN documents d ON d.id = s.document_id WHERE s.token = $1")).
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("s1", "d1", "u1", "tok", "no_password", nil, now.Add(time.Hour), int64(0), now, now, "a.pdf", "application/pdf", int64(42), "u1/a.pdf"))

	shared, err := repo.GetByToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", shared.Filename)
	assert.Equal(t, "u1/a.pdf", shared.StorageKey)
	assert.Equal(t, models.ShareTypeOpen, shared.Type)
	require.NotNil(t, shared.ExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShareGetByTokenMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewShareRepository(db)

	mock.ExpectQuery("FROM document_shares s JOIN documents").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByToken(context.Background(), "nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestShareDeleteByDocumentIsIdempotent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewShareRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM document_shares WHERE document_id = $1")).
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM document_shares WHERE document_id = $1")).
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.DeleteByDocument(context.Background(), "d1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.DeleteByDocument(context.Background(), "d1")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShareDeleteExpiredBefore(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewShareRepository(db)

	cutoff := time.Now().Add(-time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM document_shares WHERE expires_at IS NOT NULL AND expires_at < $1 RETURNING token")).
		WithArgs(cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"token"}).AddRow("t1").AddRow("t2"))

	tokens, err := repo.DeleteExpiredBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, tokens)
	assert.NoError(t, mock.ExpectationsWereMet())
}
