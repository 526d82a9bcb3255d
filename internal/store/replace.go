package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ReplacementParams drives one atomic paragraph replacement.
type ReplacementParams struct {
	QueueID string
	// AdminEditedText, when non-nil, replaces the suggestion's text in
	// the final paragraph. The original suggestion text is untouched.
	AdminEditedText *string
	AdminNotes      string
	FinalizedBy     string
}

type ReplacementResult struct {
	ParagraphID  string
	SuggestionID string
	NewVersion   int
	FinalText    string
	Consensus    float64
}

// ApplyReplacement executes the replacement in a single transaction:
// re-read queue item, paragraph and suggestion under row locks, append
// the outgoing version to history, bump the paragraph under an
// optimistic version guard, mark the suggestion applied, resolve the
// queue item. All writes commit together or not at all.
func (s *PostgresStore) ApplyReplacement(ctx context.Context, params ReplacementParams) (ReplacementResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ReplacementResult{}, fmt.Errorf("begin replacement tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		item      QueueItem
		itemNotes sql.NullString
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, paragraph_id, suggestion_id, current_consensus, status, admin_notes
		FROM replacement_queue
		WHERE id=$1
		FOR UPDATE
	`, params.QueueID).Scan(&item.ID, &item.ParagraphID, &item.SuggestionID, &item.CurrentConsensus, &item.Status, &itemNotes)
	if errors.Is(err, sql.ErrNoRows) {
		return ReplacementResult{}, fmt.Errorf("queue item %s: %w", params.QueueID, ErrNotFound)
	}
	if err != nil {
		return ReplacementResult{}, wrapReplacementErr("lock queue item", err)
	}
	if item.Status != "pending" {
		return ReplacementResult{}, fmt.Errorf("queue item %s is %s: %w", item.ID, item.Status, ErrAlreadyApplied)
	}

	var paragraph Paragraph
	err = tx.QueryRowContext(ctx, `
		SELECT id, body, current_version
		FROM paragraphs
		WHERE id=$1
		FOR UPDATE
	`, item.ParagraphID).Scan(&paragraph.ID, &paragraph.Text, &paragraph.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return ReplacementResult{}, fmt.Errorf("paragraph %s: %w", item.ParagraphID, ErrNotFound)
	}
	if err != nil {
		return ReplacementResult{}, wrapReplacementErr("lock paragraph", err)
	}

	var suggestion Suggestion
	err = tx.QueryRowContext(ctx, `
		SELECT id, paragraph_id, body
		FROM suggestions
		WHERE id=$1
		FOR UPDATE
	`, item.SuggestionID).Scan(&suggestion.ID, &suggestion.ParagraphID, &suggestion.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return ReplacementResult{}, fmt.Errorf("suggestion %s: %w", item.SuggestionID, ErrNotFound)
	}
	if err != nil {
		return ReplacementResult{}, wrapReplacementErr("lock suggestion", err)
	}
	if suggestion.ParagraphID != item.ParagraphID {
		return ReplacementResult{}, fmt.Errorf("suggestion %s belongs to %s not %s: %w",
			suggestion.ID, suggestion.ParagraphID, item.ParagraphID, ErrOwnership)
	}

	finalText := suggestion.Text
	adminEdited := false
	if params.AdminEditedText != nil {
		finalText = *params.AdminEditedText
		adminEdited = true
	}

	// outgoing version goes to history before the paragraph moves on
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO version_history (
			paragraph_id, version, body, replaced_by_suggestion,
			consensus, finalized_by_name, admin_edited, admin_notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, paragraph.ID, paragraph.Version, paragraph.Text, suggestion.ID,
		item.CurrentConsensus, params.FinalizedBy, adminEdited, params.AdminNotes); err != nil {
		return ReplacementResult{}, wrapReplacementErr("append version history", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE paragraphs
		SET body=$3, current_version=$2+1, updated_by_name=$4, updated_at=NOW()
		WHERE id=$1 AND current_version=$2
	`, paragraph.ID, paragraph.Version, finalText, params.FinalizedBy)
	if err != nil {
		return ReplacementResult{}, wrapReplacementErr("advance paragraph", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return ReplacementResult{}, fmt.Errorf("advance paragraph rows: %w", err)
	}
	if affected == 0 {
		return ReplacementResult{}, fmt.Errorf("paragraph %s version moved past %d: %w",
			paragraph.ID, paragraph.Version, ErrConflict)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE suggestions SET applied=TRUE, hidden=TRUE WHERE id=$1
	`, suggestion.ID); err != nil {
		return ReplacementResult{}, wrapReplacementErr("mark suggestion applied", err)
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE replacement_queue
		SET status='approved', admin_notes=$2, resolved_by_name=$3, resolved_at=NOW()
		WHERE id=$1 AND status='pending'
	`, item.ID, params.AdminNotes, params.FinalizedBy)
	if err != nil {
		return ReplacementResult{}, wrapReplacementErr("resolve queue item", err)
	}
	affected, err = result.RowsAffected()
	if err != nil {
		return ReplacementResult{}, fmt.Errorf("resolve queue item rows: %w", err)
	}
	if affected == 0 {
		return ReplacementResult{}, fmt.Errorf("queue item %s: %w", item.ID, ErrAlreadyApplied)
	}

	if err := tx.Commit(); err != nil {
		return ReplacementResult{}, fmt.Errorf("commit replacement: %w", joinConflict(err))
	}

	return ReplacementResult{
		ParagraphID:  paragraph.ID,
		SuggestionID: suggestion.ID,
		NewVersion:   paragraph.Version + 1,
		FinalText:    finalText,
		Consensus:    item.CurrentConsensus,
	}, nil
}

func wrapReplacementErr(action string, err error) error {
	return fmt.Errorf("%s: %w", action, joinConflict(err))
}

// joinConflict makes Postgres contention errors match ErrConflict so
// the executor's retry loop can see them.
func joinConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization failure, deadlock detected
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}
	return err
}

func (s *PostgresStore) ListRecentVersions(ctx context.Context, paragraphID string) ([]VersionEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT paragraph_id, version, body, replaced_by_suggestion,
			consensus, finalized_by_name, finalized_at, admin_edited, COALESCE(admin_notes, '')
		FROM version_history
		WHERE paragraph_id=$1
		ORDER BY version DESC
	`, paragraphID)
	if err != nil {
		return nil, fmt.Errorf("list recent versions: %w", err)
	}
	defer rows.Close()

	items := make([]VersionEntry, 0)
	for rows.Next() {
		var item VersionEntry
		if err := rows.Scan(
			&item.ParagraphID,
			&item.Version,
			&item.Text,
			&item.ReplacedBy,
			&item.Consensus,
			&item.FinalizedBy,
			&item.FinalizedAt,
			&item.AdminEdited,
			&item.AdminNotes,
		); err != nil {
			return nil, fmt.Errorf("scan version entry: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate version entries: %w", err)
	}
	return items, nil
}

// ArchiveVersionBatch inserts an archive blob and removes the history
// rows it covers, atomically. The blob is immutable once written.
func (s *PostgresStore) ArchiveVersionBatch(ctx context.Context, blob VersionArchive) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO version_archives (id, paragraph_id, from_version, to_version, payload)
		VALUES ($1, $2, $3, $4, $5)
	`, blob.ID, blob.ParagraphID, blob.FromVersion, blob.ToVersion, blob.Payload); err != nil {
		return fmt.Errorf("insert version archive: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM version_history
		WHERE paragraph_id=$1 AND version BETWEEN $2 AND $3
	`, blob.ParagraphID, blob.FromVersion, blob.ToVersion); err != nil {
		return fmt.Errorf("trim archived versions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive batch: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListVersionArchives(ctx context.Context, paragraphID string) ([]VersionArchive, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, paragraph_id, from_version, to_version, payload, created_at
		FROM version_archives
		WHERE paragraph_id=$1
		ORDER BY to_version DESC
	`, paragraphID)
	if err != nil {
		return nil, fmt.Errorf("list version archives: %w", err)
	}
	defer rows.Close()

	items := make([]VersionArchive, 0)
	for rows.Next() {
		var item VersionArchive
		if err := rows.Scan(&item.ID, &item.ParagraphID, &item.FromVersion, &item.ToVersion, &item.Payload, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version archive: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate version archives: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DropVersionArchives(ctx context.Context, paragraphID string, archiveIDs []string) error {
	for _, archiveID := range archiveIDs {
		if _, err := s.db.ExecContext(ctx, `
			DELETE FROM version_archives WHERE paragraph_id=$1 AND id=$2
		`, paragraphID, archiveID); err != nil {
			return fmt.Errorf("drop version archive %s: %w", archiveID, err)
		}
	}
	return nil
}
