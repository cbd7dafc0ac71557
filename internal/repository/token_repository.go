package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/queue-service/internal/domain"
)

// ErrSlotFull is returned when admission would exceed slot capacity.
var ErrSlotFull = errors.New("slot capacity reached")

// ErrStatusConflict is returned when a compare-and-swap update finds the
// token no longer in the expected status.
var ErrStatusConflict = errors.New("token status changed concurrently")

// TokenRepository encapsulates token persistence. Tokens are never deleted;
// cancellation and no-show are statuses, not removal.
type TokenRepository interface {
	// CreateAdmitted atomically checks slot capacity and inserts the token.
	// Admission and insert are serialized per (service type, slot timestamp)
	// with a transaction-level advisory lock, so two concurrent requests can
	// never both fill the last place.
	CreateAdmitted(ctx context.Context, token *domain.Token, capacity int) error
	GetByID(ctx context.Context, id string) (*domain.Token, error)
	// UpdateStatusCAS persists the token's status and transition timestamps
	// only when the stored status still equals expected.
	UpdateStatusCAS(ctx context.Context, token *domain.Token, expected domain.TokenStatus) error
	ListByDate(ctx context.Context, date string, service *domain.ServiceType) ([]domain.Token, error)
	// ListWaiting returns waiting tokens for the service and date ordered by
	// (slot timestamp, creation time) ascending.
	ListWaiting(ctx context.Context, service domain.ServiceType, date string) ([]domain.Token, error)
	ListByCitizen(ctx context.Context, citizenID, date string) ([]domain.Token, error)
	CountActiveInSlot(ctx context.Context, service domain.ServiceType, slot time.Time) (int, error)
}

type tokenRepository struct {
	pool *pgxpool.Pool
}

// NewTokenRepository instantiates repository.
func NewTokenRepository(pool *pgxpool.Pool) TokenRepository {
	return &tokenRepository{pool: pool}
}

const tokenColumns = `id, seq, token_number, citizen_id, service_type, time_slot, slot_date,
	status, priority, disability_type, counter_id, qr_code,
	created_at, updated_at, called_at, served_at, completed_at`

func (r *tokenRepository) CreateAdmitted(ctx context.Context, token *domain.Token, capacity int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	lockKey := fmt.Sprintf("%s|%s", token.ServiceType, token.TimeSlot.UTC().Format(time.RFC3339))
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return err
	}

	var active int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM tokens WHERE service_type=$1 AND time_slot=$2 AND status <> 'cancelled'`,
		token.ServiceType, token.TimeSlot,
	).Scan(&active); err != nil {
		return err
	}
	if active >= capacity {
		return ErrSlotFull
	}

	const query = `
        INSERT INTO tokens (token_number, citizen_id, service_type, time_slot, slot_date, status, priority, disability_type, qr_code)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, seq, created_at, updated_at`
	if err := tx.QueryRow(ctx, query,
		token.TokenNumber,
		token.CitizenID,
		token.ServiceType,
		token.TimeSlot,
		token.SlotDate,
		token.Status,
		token.Priority,
		token.Disability,
		token.QRCode,
	).Scan(&token.ID, &token.Seq, &token.CreatedAt, &token.UpdatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *tokenRepository) GetByID(ctx context.Context, id string) (*domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE id=$1`
	row := r.pool.QueryRow(ctx, query, id)
	return scanToken(row)
}

func (r *tokenRepository) UpdateStatusCAS(ctx context.Context, token *domain.Token, expected domain.TokenStatus) error {
	const query = `
        UPDATE tokens SET status=$1, counter_id=$2, called_at=$3, served_at=$4, completed_at=$5, updated_at=NOW()
        WHERE id=$6 AND status=$7
        RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		token.Status,
		token.CounterID,
		token.CalledAt,
		token.ServedAt,
		token.CompletedAt,
		token.ID,
		expected,
	).Scan(&token.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrStatusConflict
	}
	return err
}

func (r *tokenRepository) ListByDate(ctx context.Context, date string, service *domain.ServiceType) ([]domain.Token, error) {
	clauses := []string{"slot_date=$1"}
	args := []any{date}
	if service != nil {
		args = append(args, *service)
		clauses = append(clauses, fmt.Sprintf("service_type=$%d", len(args)))
	}
	query := fmt.Sprintf(`SELECT %s FROM tokens WHERE %s ORDER BY time_slot ASC, created_at ASC, seq ASC`,
		tokenColumns, strings.Join(clauses, " AND "))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTokens(rows)
}

func (r *tokenRepository) ListWaiting(ctx context.Context, service domain.ServiceType, date string) ([]domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens
        WHERE status='waiting' AND service_type=$1 AND slot_date=$2
        ORDER BY time_slot ASC, created_at ASC, seq ASC`
	rows, err := r.pool.Query(ctx, query, service, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTokens(rows)
}

func (r *tokenRepository) ListByCitizen(ctx context.Context, citizenID, date string) ([]domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens
        WHERE citizen_id=$1 AND slot_date=$2
        ORDER BY time_slot ASC, created_at ASC, seq ASC`
	rows, err := r.pool.Query(ctx, query, citizenID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTokens(rows)
}

func (r *tokenRepository) CountActiveInSlot(ctx context.Context, service domain.ServiceType, slot time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tokens WHERE service_type=$1 AND time_slot=$2 AND status <> 'cancelled'`,
		service, slot,
	).Scan(&count)
	return count, err
}

func scanToken(row pgx.Row) (*domain.Token, error) {
	var t domain.Token
	var slotDate time.Time
	if err := row.Scan(
		&t.ID,
		&t.Seq,
		&t.TokenNumber,
		&t.CitizenID,
		&t.ServiceType,
		&t.TimeSlot,
		&slotDate,
		&t.Status,
		&t.Priority,
		&t.Disability,
		&t.CounterID,
		&t.QRCode,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.CalledAt,
		&t.ServedAt,
		&t.CompletedAt,
	); err != nil {
		return nil, err
	}
	t.SlotDate = slotDate.Format("2006-01-02")
	t.SlotIndex = domain.SlotIndex(t.TimeSlot)
	return &t, nil
}

func scanTokens(rows pgx.Rows) ([]domain.Token, error) {
	var result []domain.Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *token)
	}
	return result, rows.Err()
}
