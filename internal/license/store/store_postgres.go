package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"onboarding-gateway/internal/license"
	id "onboarding-gateway/pkg/domain"
	"onboarding-gateway/pkg/platform/sentinel"
	"onboarding-gateway/pkg/requestcontext"
)

// uniqueViolation is the SQLSTATE raised when the one-current-submission index rejects an insert.
const uniqueViolation = "23505"

const submissionColumns = `id, provider_id, document_ref, content_type, digest, status,
	rejection_reason, reviewed_at, created_at, superseded_at`

// PostgresStore persists submissions in the license_submissions table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create supersedes the provider's current submission and inserts sub in one
// transaction, so a provider never has two current submissions.
func (s *PostgresStore) Create(ctx context.Context, sub *license.Submission) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create submission: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		UPDATE license_submissions
		SET superseded_at = $2
		WHERE provider_id = $1 AND superseded_at IS NULL
	`, uuid.UUID(sub.ProviderID), requestcontext.Now(ctx))
	if err != nil {
		return fmt.Errorf("supersede submissions: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO license_submissions (`+submissionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL)
	`,
		uuid.UUID(sub.ID),
		uuid.UUID(sub.ProviderID),
		sub.DocumentRef,
		sub.ContentType,
		sub.Digest,
		string(sub.Status),
		nullString(sub.RejectionReason),
		sub.ReviewedAt,
		sub.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("insert submission: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert submission: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create submission: %w", err)
	}
	return nil
}

func (s *PostgresStore) Current(ctx context.Context, providerID id.ProviderID) (*license.Submission, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+submissionColumns+`
		FROM license_submissions
		WHERE provider_id = $1 AND superseded_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`, uuid.UUID(providerID))
	sub, err := scanSubmission(row)
	if err != nil {
		return nil, fmt.Errorf("find current submission: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) FindByDocumentRef(ctx context.Context, documentRef string) (*license.Submission, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+submissionColumns+`
		FROM license_submissions
		WHERE document_ref = $1
	`, documentRef)
	sub, err := scanSubmission(row)
	if err != nil {
		return nil, fmt.Errorf("find submission by document ref: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, sub *license.Submission) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE license_submissions
		SET status = $2, rejection_reason = $3, reviewed_at = $4
		WHERE id = $1
	`, uuid.UUID(sub.ID), string(sub.Status), nullString(sub.RejectionReason), sub.ReviewedAt)
	if err != nil {
		return fmt.Errorf("update submission status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update submission status: %w", err)
	}
	if n == 0 {
		return license.ErrSubmissionNotFound
	}
	return nil
}

func (s *PostgresStore) History(ctx context.Context, providerID id.ProviderID) ([]*license.Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+submissionColumns+`
		FROM license_submissions
		WHERE provider_id = $1
		ORDER BY created_at DESC
	`, uuid.UUID(providerID))
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var out []*license.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) HasDigest(ctx context.Context, providerID id.ProviderID, digest string, statuses []license.Status) (bool, error) {
	values := make([]string, len(statuses))
	for i, st := range statuses {
		values[i] = string(st)
	}
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM license_submissions
			WHERE provider_id = $1 AND digest = $2 AND status = ANY($3)
		)
	`, uuid.UUID(providerID), digest, pq.Array(values)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check submission digest: %w", err)
	}
	return exists, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row scanner) (*license.Submission, error) {
	var (
		sub          license.Submission
		subID        uuid.UUID
		providerID   uuid.UUID
		status       string
		reason       sql.NullString
		reviewedAt   sql.NullTime
		supersededAt sql.NullTime
	)
	err := row.Scan(&subID, &providerID, &sub.DocumentRef, &sub.ContentType, &sub.Digest, &status,
		&reason, &reviewedAt, &sub.CreatedAt, &supersededAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, license.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, err
	}
	sub.ID = id.SubmissionID(subID)
	sub.ProviderID = id.ProviderID(providerID)
	sub.Status = license.Status(status)
	sub.RejectionReason = reason.String
	if reviewedAt.Valid {
		t := reviewedAt.Time
		sub.ReviewedAt = &t
	}
	if supersededAt.Valid {
		t := supersededAt.Time
		sub.SupersededAt = &t
	}
	return &sub, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
