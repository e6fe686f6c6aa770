package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campaign/internal/logger"
	"github.com/campaign/internal/model"
)

var ErrNotFound = errors.New("not found")

// userCols — список колонок для SELECT, включая disabled_at.
const userCols = `id, email, first_name, last_name, password_hash, is_staff, created_at, disabled_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// scanUser сканирует строку в model.User (порядок соответствует userCols).
func scanUser(s interface{ Scan(dest ...any) error }, u *model.User) error {
	return s.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.IsStaff, &u.CreatedAt, &u.DisabledAt)
}

// Create используется в -dev (seed) и в тестах; id назначает БД.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("user.Create", time.Now())()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, first_name, last_name, password_hash, is_staff)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		strings.ToLower(strings.TrimSpace(u.Email)), u.FirstName, u.LastName, u.PasswordHash, u.IsStaff,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return fmt.Errorf("userRepo.Create: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByID", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByID: %w", err)
	}
	return u, nil
}

// GetByEmail ищет без учёта регистра.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByEmail", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByEmail: %w", err)
	}
	return u, nil
}

func (r *UserRepository) UpdatePasswordHash(ctx context.Context, userID int64, hash string) error {
	defer logger.DeferLogDuration("user.UpdatePasswordHash", time.Now())()
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, hash, userID)
	if err != nil {
		return fmt.Errorf("userRepo.UpdatePasswordHash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDisabled отключает пользователя (disabled_at = NOW()) или включает обратно.
func (r *UserRepository) SetDisabled(ctx context.Context, userID int64, disabled bool) error {
	defer logger.DeferLogDuration("user.SetDisabled", time.Now())()
	var err error
	if disabled {
		_, err = r.pool.Exec(ctx, `UPDATE users SET disabled_at = NOW() WHERE id = $1`, userID)
	} else {
		_, err = r.pool.Exec(ctx, `UPDATE users SET disabled_at = NULL WHERE id = $1`, userID)
	}
	if err != nil {
		return fmt.Errorf("userRepo.SetDisabled: %w", err)
	}
	return nil
}
