package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/queue-service/internal/domain"
)

// ProfileRepository reads citizen/officer profiles maintained by the
// identity collaborator. The queue core never writes them.
type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*domain.Profile, error)
}

type profileRepository struct {
	pool *pgxpool.Pool
}

// NewProfileRepository instantiates repository.
func NewProfileRepository(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepository{pool: pool}
}

func (r *profileRepository) GetByUserID(ctx context.Context, userID string) (*domain.Profile, error) {
	const query = `SELECT id, user_id, full_name, phone, role FROM profiles WHERE user_id=$1`
	var p domain.Profile
	if err := r.pool.QueryRow(ctx, query, userID).Scan(
		&p.ID,
		&p.UserID,
		&p.FullName,
		&p.Phone,
		&p.Role,
	); err != nil {
		return nil, err
	}
	return &p, nil
}
