package repository

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campaign/internal/logger"
	"github.com/campaign/internal/model"
)

// sessionCols — порядок соответствует scanSession. token отдаётся в канонической текстовой форме.
const sessionCols = `id, token::text, user_id, active_organization_membership_id, device_info,
	COALESCE(host(ip_address), ''), platform, created_at, expires_at, last_accessed_at`

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func scanSession(s interface{ Scan(dest ...any) error }, out *model.Session) error {
	var platform string
	err := s.Scan(&out.ID, &out.Token, &out.UserID, &out.ActiveOrgMembershipID, &out.DeviceInfo,
		&out.IPAddress, &platform, &out.CreatedAt, &out.ExpiresAt, &out.LastAccessedAt)
	if err != nil {
		return err
	}
	out.Platform = model.ParsePlatform(platform)
	return nil
}

// Insert создаёт сессию. Некорректный IP сохраняется как NULL.
func (r *SessionRepository) Insert(ctx context.Context, ns model.NewSession) (*model.Session, error) {
	defer logger.DeferLogDuration("session.Insert", time.Now())()
	s := &model.Session{}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO sessions (token, user_id, active_organization_membership_id, device_info, ip_address, platform, expires_at, last_accessed_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, '')::inet, $6, $7, $8)
		 RETURNING `+sessionCols,
		ns.Token, ns.UserID, ns.ActiveOrgMembershipID, ns.DeviceInfo, validIP(ns.IPAddress), ns.Platform.String(), ns.ExpiresAt, ns.LastAccessedAt,
	)
	if err := scanSession(row, s); err != nil {
		return nil, fmt.Errorf("sessionRepo.Insert: %w", err)
	}
	return s, nil
}

// validIP: невалидный адрес сохраняется как NULL, а не роняет INSERT.
func validIP(s string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return ""
	}
	return addr.WithZone("").String()
}

// FindByToken возвращает сессию вне зависимости от срока действия; проверку делает вызывающий.
func (r *SessionRepository) FindByToken(ctx context.Context, token string) (*model.Session, error) {
	defer logger.DeferLogDuration("session.FindByToken", time.Now())()
	s := &model.Session{}
	row := r.pool.QueryRow(ctx, `SELECT `+sessionCols+` FROM sessions WHERE token = $1`, token)
	if err := scanSession(row, s); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sessionRepo.FindByToken: %w", err)
	}
	return s, nil
}

// Update меняет только заданные поля и только у действующей сессии (expires_at > now).
// expires_at сдвигается через GREATEST — назад никогда.
func (r *SessionRepository) Update(ctx context.Context, id int64, upd model.SessionUpdate, now time.Time) (*model.Session, error) {
	defer logger.DeferLogDuration("session.Update", time.Now())()
	args := []any{id, now}
	var sets []string
	if upd.SetActiveOrg {
		args = append(args, upd.ActiveOrgMembershipID)
		sets = append(sets, "active_organization_membership_id = $"+strconv.Itoa(len(args)))
	}
	if upd.ExpiresAt != nil {
		args = append(args, *upd.ExpiresAt)
		sets = append(sets, "expires_at = GREATEST(expires_at, $"+strconv.Itoa(len(args))+")")
	}
	if upd.LastAccessedAt != nil {
		args = append(args, *upd.LastAccessedAt)
		sets = append(sets, "last_accessed_at = $"+strconv.Itoa(len(args)))
	}
	var q string
	if len(sets) == 0 {
		q = `SELECT ` + sessionCols + ` FROM sessions WHERE id = $1 AND expires_at > $2`
	} else {
		q = `UPDATE sessions SET ` + strings.Join(sets, ", ") +
			` WHERE id = $1 AND expires_at > $2 RETURNING ` + sessionCols
	}
	s := &model.Session{}
	if err := scanSession(r.pool.QueryRow(ctx, q, args...), s); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sessionRepo.Update: %w", err)
	}
	return s, nil
}

// DeleteByToken возвращает false, если строки не было.
func (r *SessionRepository) DeleteByToken(ctx context.Context, token string) (bool, error) {
	defer logger.DeferLogDuration("session.DeleteByToken", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	if err != nil {
		return false, fmt.Errorf("sessionRepo.DeleteByToken: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListByUser — действующие сессии пользователя, свежие сверху.
func (r *SessionRepository) ListByUser(ctx context.Context, userID int64, now time.Time) ([]model.Session, error) {
	defer logger.DeferLogDuration("session.ListByUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionCols+` FROM sessions
		 WHERE user_id = $1 AND expires_at > $2 ORDER BY last_accessed_at DESC, id DESC`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.ListByUser: %w", err)
	}
	defer rows.Close()
	var list []model.Session
	for rows.Next() {
		var s model.Session
		if err := scanSession(rows, &s); err != nil {
			return nil, fmt.Errorf("sessionRepo.ListByUser: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// ListTokensByUser — все токены пользователя (включая истёкшие), кроме except.
func (r *SessionRepository) ListTokensByUser(ctx context.Context, userID int64, except string) ([]string, error) {
	defer logger.DeferLogDuration("session.ListTokensByUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT token::text FROM sessions WHERE user_id = $1 AND token::text <> $2`, userID, except)
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.ListTokensByUser: %w", err)
	}
	return collectTokens(rows, "sessionRepo.ListTokensByUser")
}

// DeleteAllForUser удаляет сессии пользователя, кроме except, и возвращает удалённые токены.
func (r *SessionRepository) DeleteAllForUser(ctx context.Context, userID int64, except string) ([]string, error) {
	defer logger.DeferLogDuration("session.DeleteAllForUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`DELETE FROM sessions WHERE user_id = $1 AND token::text <> $2 RETURNING token::text`, userID, except)
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.DeleteAllForUser: %w", err)
	}
	return collectTokens(rows, "sessionRepo.DeleteAllForUser")
}

func collectTokens(rows pgx.Rows, op string) ([]string, error) {
	defer rows.Close()
	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tokens, nil
}

// DeleteExpired удаляет истёкшие сессии и возвращает их токены (для очистки кеша).
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	defer logger.DeferLogDuration("session.DeleteExpired", time.Now())()
	rows, err := r.pool.Query(ctx, `DELETE FROM sessions WHERE expires_at <= $1 RETURNING token::text`, now)
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.DeleteExpired: %w", err)
	}
	return collectTokens(rows, "sessionRepo.DeleteExpired")
}
