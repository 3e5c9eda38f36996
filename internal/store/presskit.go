package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/presskit-builder/apiserver/types"
)

const pressKitColumns = `id, user_id, title, slug, template_id, primary_color, secondary_color,
		font_choice, custom_css, meta_description, is_published, view_count, created_at, updated_at`

// PressKitRepository handles persistence for press kits. Every owner-facing
// query filters on user_id, so a kit owned by someone else reads as absent.
type PressKitRepository struct {
	db *sql.DB
}

func NewPressKitRepository(db *sql.DB) *PressKitRepository {
	return &PressKitRepository{db: db}
}

func (r *PressKitRepository) ListByOwner(ctx context.Context, ownerID string) ([]types.PressKitSummary, error) {
	const query = `
		SELECT id, title, slug, is_published, view_count, created_at, updated_at
		FROM press_kits
		WHERE user_id = $1
		ORDER BY created_at DESC, id`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]types.PressKitSummary, 0)
	for rows.Next() {
		var summary types.PressKitSummary
		if err := rows.Scan(
			&summary.ID,
			&summary.Title,
			&summary.Slug,
			&summary.IsPublished,
			&summary.ViewCount,
			&summary.CreatedAt,
			&summary.UpdatedAt,
		); err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

func (r *PressKitRepository) GetByOwner(ctx context.Context, ownerID, id string) (types.PressKit, error) {
	const query = `
		SELECT ` + pressKitColumns + `
		FROM press_kits
		WHERE id = $1 AND user_id = $2`
	return scanPressKit(r.db.QueryRowContext(ctx, query, id, ownerID))
}

// Create inserts a press kit. ErrConflict is returned when the owner already
// has a press kit with the same slug.
func (r *PressKitRepository) Create(ctx context.Context, kit types.PressKit) (types.PressKit, error) {
	createdAt := now()
	kit.CreatedAt = createdAt
	kit.UpdatedAt = createdAt

	const query = `
		INSERT INTO press_kits (
			user_id, title, slug, template_id, primary_color, secondary_color,
			font_choice, custom_css, meta_description, is_published, view_count,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		kit.UserID,
		kit.Title,
		kit.Slug,
		kit.TemplateID,
		kit.PrimaryColor,
		kit.SecondaryColor,
		kit.FontChoice,
		kit.CustomCSS,
		kit.MetaDescription,
		kit.IsPublished,
		kit.ViewCount,
		kit.CreatedAt,
		kit.UpdatedAt,
	).Scan(&kit.ID); err != nil {
		return types.PressKit{}, mapWriteError(err)
	}

	return kit, nil
}

// Update applies patch to the owner's press kit. The row is locked for the
// duration of the transaction so concurrent updates apply one after another.
func (r *PressKitRepository) Update(ctx context.Context, ownerID, id string, patch types.PressKitPatch) (types.PressKit, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.PressKit{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const selectQuery = `
		SELECT ` + pressKitColumns + `
		FROM press_kits
		WHERE id = $1 AND user_id = $2
		FOR UPDATE`
	current, err := scanPressKit(tx.QueryRowContext(ctx, selectQuery, id, ownerID))
	if err != nil {
		return types.PressKit{}, err
	}

	kit := patch.ApplyTo(current, now())

	const updateQuery = `
		UPDATE press_kits
		SET title = $1,
			template_id = $2,
			primary_color = $3,
			secondary_color = $4,
			font_choice = $5,
			custom_css = $6,
			meta_description = $7,
			is_published = $8,
			updated_at = $9
		WHERE id = $10 AND user_id = $11`
	if _, err := tx.ExecContext(
		ctx,
		updateQuery,
		kit.Title,
		kit.TemplateID,
		kit.PrimaryColor,
		kit.SecondaryColor,
		kit.FontChoice,
		kit.CustomCSS,
		kit.MetaDescription,
		kit.IsPublished,
		kit.UpdatedAt,
		kit.ID,
		kit.UserID,
	); err != nil {
		return types.PressKit{}, err
	}

	if err := tx.Commit(); err != nil {
		return types.PressKit{}, err
	}
	return kit, nil
}

func (r *PressKitRepository) Delete(ctx context.Context, ownerID, id string) error {
	const query = `DELETE FROM press_kits WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordView increments the view counter of a published press kit and
// returns the kit as stored afterwards. Unpublished kits read as absent.
func (r *PressKitRepository) RecordView(ctx context.Context, id string) (types.PressKit, error) {
	const query = `
		UPDATE press_kits
		SET view_count = view_count + 1
		WHERE id = $1 AND is_published
		RETURNING ` + pressKitColumns
	return scanPressKit(r.db.QueryRowContext(ctx, query, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPressKit(row rowScanner) (types.PressKit, error) {
	var kit types.PressKit
	err := row.Scan(
		&kit.ID,
		&kit.UserID,
		&kit.Title,
		&kit.Slug,
		&kit.TemplateID,
		&kit.PrimaryColor,
		&kit.SecondaryColor,
		&kit.FontChoice,
		&kit.CustomCSS,
		&kit.MetaDescription,
		&kit.IsPublished,
		&kit.ViewCount,
		&kit.CreatedAt,
		&kit.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.PressKit{}, ErrNotFound
		}
		return types.PressKit{}, err
	}
	return kit, nil
}
