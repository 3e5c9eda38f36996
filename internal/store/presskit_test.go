package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presskit-builder/apiserver/types"
)

var fullColumns = []string{
	"id", "user_id", "title", "slug", "template_id", "primary_color", "secondary_color",
	"font_choice", "custom_css", "meta_description", "is_published", "view_count", "created_at", "updated_at",
}

func pressKitRow(isPublished bool, viewCount int64) *sqlmock.Rows {
	return sqlmock.NewRows(fullColumns).AddRow(
		"pk-1", "user-1", "My Band EPK", "my-band-epk", "tpl-1",
		types.DefaultPrimaryColor, types.DefaultSecondaryColor, types.DefaultFontChoice,
		"", "Official press kit", isPublished, viewCount, fixedTime, fixedTime,
	)
}

func TestPressKitRepository_ListByOwner(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPressKitRepository(db)

	rows := sqlmock.NewRows([]string{"id", "title", "slug", "is_published", "view_count", "created_at", "updated_at"}).
		AddRow("pk-2", "Album Release EPK", "album-release-epk", false, 0, fixedTime, fixedTime).
		AddRow("pk-1", "My Band EPK", "my-band-epk", true, 125, fixedTime, fixedTime)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1")).
		WithArgs("user-1").
		WillReturnRows(rows)

	summaries, err := repo.ListByOwner(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "pk-2", summaries[0].ID)
	assert.Equal(t, int64(125), summaries[1].ViewCount)
	assert.True(t, summaries[1].IsPublished)
}

func TestPressKitRepository_ListByOwnerEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPressKitRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM press_kits")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "slug", "is_published", "view_count", "created_at", "updated_at"}))

	summaries, err := repo.ListByOwner(context.Background(), "user-1")
	require.NoError(t, err)
	assert.NotNil(t, summaries)
	assert.Empty(t, summaries)
}

func TestPressKitRepository_GetByOwner(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPressKitRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND user_id = $2")).
		WithArgs("pk-1", "user-1").
		WillReturnRows(pressKitRow(true, 125))

	kit, err := repo.GetByOwner(context.Background(), "user-1", "pk-1")
	require.NoError(t, err)
	assert.Equal(t, "my-band-epk", kit.Slug)
	assert.Equal(t, "user-1", kit.UserID)
	assert.Equal(t, int64(125), kit.ViewCount)
}

func TestPressKitRepository_GetByOwnerOtherUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPressKitRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND user_id = $2")).
		WithArgs("pk-1", "user-2").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByOwner(context.Background(), "user-2", "pk-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPressKitRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPressKitRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO press_kits")).
		WithArgs(
			"user-1", "My Band, EPK!!", "my-band-epk", "tpl-1",
			types.DefaultPrimaryColor, types.DefaultSecondaryColor, types.DefaultFontChoice,
			"", "", false, int64(0), sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("pk-new"))

	kit := types.PressKit{
		UserID:     "user-1",
		Title:      "My Band, EPK!!",
		Slug:       "my-band-epk",
		TemplateID: "tpl-1",
	}
	kit.ApplyDefaults()

	created, err := repo.Create(context.Background(), kit)
	require.NoError(t, err)
	assert.Equal(t, "pk-new", created.ID)
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)
	assert.Equal(t, created.CreatedAt.Truncate(time.Microsecond), created.CreatedAt)
}

func TestPressKitRepository_CreateDuplicateSlug(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPressKitRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO press_kits")).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := repo.Create(context.Background(), types.PressKit{UserID: "user-1", Title: "t", Slug: "t", TemplateID: "x"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestPressKitRepository_Update(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPressKitRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("pk-1", "user-1").
		WillReturnRows(pressKitRow(true, 125))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE press_kits")).
		WithArgs(
			"Renamed", "tpl-1", types.DefaultPrimaryColor, types.DefaultSecondaryColor, types.DefaultFontChoice,
			"", "", false, sqlmock.AnyArg(), "pk-1", "user-1",
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	kit, err := repo.Update(context.Background(), "user-1", "pk-1", types.PressKitPatch{
		Title:           types.SetTo("Renamed"),
		MetaDescription: types.SetTo(""),
		IsPublished:     types.SetTo(false),
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", kit.Title)
	assert.Equal(t, "my-band-epk", kit.Slug)
	assert.False(t, kit.IsPublished)
	assert.Equal(t, int64(125), kit.ViewCount)
	assert.True(t, kit.UpdatedAt.After(kit.CreatedAt))
	assert.Equal(t, kit.UpdatedAt.Truncate(time.Microsecond), kit.UpdatedAt)
}

func TestPressKitRepository_UpdateNotOwned(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPressKitRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("pk-1", "user-2").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), "user-2", "pk-1", types.PressKitPatch{Title: types.SetTo("x")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPressKitRepository_UpdateExecFailureRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPressKitRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("pk-1", "user-1").
		WillReturnRows(pressKitRow(false, 0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE press_kits")).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), "user-1", "pk-1", types.PressKitPatch{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestPressKitRepository_Delete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPressKitRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM press_kits WHERE id = $1 AND user_id = $2")).
		WithArgs("pk-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "user-1", "pk-1"))
}

func TestPressKitRepository_DeleteNotOwned(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPressKitRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM press_kits")).
		WithArgs("pk-1", "user-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "user-2", "pk-1"), ErrNotFound)
}

func TestPressKitRepository_RecordView(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPressKitRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SET view_count = view_count + 1")).
		WithArgs("pk-1").
		WillReturnRows(pressKitRow(true, 126))

	kit, err := repo.RecordView(context.Background(), "pk-1")
	require.NoError(t, err)
	assert.Equal(t, int64(126), kit.ViewCount)
}

func TestPressKitRepository_RecordViewUnpublished(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPressKitRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND is_published")).
		WithArgs("pk-1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.RecordView(context.Background(), "pk-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
