package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campaign/internal/logger"
	"github.com/campaign/internal/model"
)

type MembershipRepository struct {
	pool *pgxpool.Pool
}

func NewMembershipRepository(pool *pgxpool.Pool) *MembershipRepository {
	return &MembershipRepository{pool: pool}
}

// GetForUser возвращает членство, только если оно принадлежит userID. Иначе ErrNotFound.
func (r *MembershipRepository) GetForUser(ctx context.Context, membershipID, userID int64) (*model.Membership, error) {
	defer logger.DeferLogDuration("membership.GetForUser", time.Now())()
	m := &model.Membership{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, organization_id, user_id, role FROM organization_members WHERE id = $1 AND user_id = $2`,
		membershipID, userID,
	).Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("membershipRepo.GetForUser: %w", err)
	}
	return m, nil
}

// Create добавляет пользователя в организацию (seed в -dev, тесты).
func (r *MembershipRepository) Create(ctx context.Context, m *model.Membership) error {
	defer logger.DeferLogDuration("membership.Create", time.Now())()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO organization_members (organization_id, user_id, role) VALUES ($1, $2, $3) RETURNING id`,
		m.OrganizationID, m.UserID, m.Role,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("membershipRepo.Create: %w", err)
	}
	return nil
}
