package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/queue-service/internal/domain"
)

// CounterRepository encapsulates counter persistence. Counters are
// read-mostly from the queue core's perspective.
type CounterRepository interface {
	Create(ctx context.Context, counter *domain.Counter) error
	Update(ctx context.Context, counter *domain.Counter) error
	GetByID(ctx context.Context, id int64) (*domain.Counter, error)
	ListActive(ctx context.Context) ([]domain.Counter, error)
}

type counterRepository struct {
	pool *pgxpool.Pool
}

// NewCounterRepository instantiates repository.
func NewCounterRepository(pool *pgxpool.Pool) CounterRepository {
	return &counterRepository{pool: pool}
}

func (r *counterRepository) Create(ctx context.Context, counter *domain.Counter) error {
	const query = `
        INSERT INTO counters (name, officer_id, is_active, services)
        VALUES ($1,$2,$3,$4)
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		counter.Name,
		counter.OfficerID,
		counter.IsActive,
		serviceStrings(counter.Services),
	).Scan(&counter.ID)
}

func (r *counterRepository) Update(ctx context.Context, counter *domain.Counter) error {
	const query = `
        UPDATE counters SET name=$1, officer_id=$2, is_active=$3, services=$4
        WHERE id=$5`
	cmd, err := r.pool.Exec(ctx, query,
		counter.Name,
		counter.OfficerID,
		counter.IsActive,
		serviceStrings(counter.Services),
		counter.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *counterRepository) GetByID(ctx context.Context, id int64) (*domain.Counter, error) {
	const query = `SELECT id, name, officer_id, is_active, services FROM counters WHERE id=$1`
	return scanCounter(r.pool.QueryRow(ctx, query, id))
}

func (r *counterRepository) ListActive(ctx context.Context) ([]domain.Counter, error) {
	const query = `SELECT id, name, officer_id, is_active, services FROM counters WHERE is_active ORDER BY id ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Counter
	for rows.Next() {
		counter, err := scanCounter(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *counter)
	}
	return result, rows.Err()
}

func scanCounter(row pgx.Row) (*domain.Counter, error) {
	var c domain.Counter
	var services []string
	if err := row.Scan(&c.ID, &c.Name, &c.OfficerID, &c.IsActive, &services); err != nil {
		return nil, err
	}
	c.Services = make([]domain.ServiceType, 0, len(services))
	for _, s := range services {
		c.Services = append(c.Services, domain.ServiceType(s))
	}
	return &c, nil
}

func serviceStrings(services []domain.ServiceType) []string {
	out := make([]string, 0, len(services))
	for _, s := range services {
		out = append(out, string(s))
	}
	return out
}
