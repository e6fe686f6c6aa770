// Package sessiontest — in-memory реализация session.Store для тестов с внедрением отказов.
package sessiontest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/campaign/internal/model"
	"github.com/campaign/internal/repository"
)

// Операции для SetError / Calls.
const (
	OpInsert           = "Insert"
	OpFindByToken      = "FindByToken"
	OpUpdate           = "Update"
	OpDeleteByToken    = "DeleteByToken"
	OpListByUser       = "ListByUser"
	OpListTokensByUser = "ListTokensByUser"
	OpDeleteAllForUser = "DeleteAllForUser"
	OpDeleteExpired    = "DeleteExpired"
)

// Store повторяет семантику repository.SessionRepository.
type Store struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]model.Session
	errs   map[string]error
	calls  map[string]int

	// BeforeDeleteAll вызывается внутри DeleteAllForUser до удаления (без блокировки),
	// чтобы тест мог вклиниться между перечислением и удалением.
	BeforeDeleteAll func()
}

func NewStore() *Store {
	return &Store{rows: make(map[int64]model.Session), errs: make(map[string]error), calls: make(map[string]int)}
}

// SetError заставляет op возвращать err (nil — снять отказ).
func (s *Store) SetError(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.errs, op)
		return
	}
	s.errs[op] = err
}

// Calls — сколько раз вызывалась op.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Get возвращает строку по id (для проверок в тестах).
func (s *Store) Get(id int64) (model.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	return row, ok
}

// Len — число строк.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Put кладёт строку как есть (например, уже истёкшую).
func (s *Store) Put(row model.Session) model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row.ID == 0 {
		s.nextID++
		row.ID = s.nextID
	} else if row.ID > s.nextID {
		s.nextID = row.ID
	}
	s.rows[row.ID] = row
	return row
}

func (s *Store) enter(op string) error {
	s.calls[op]++
	return s.errs[op]
}

func (s *Store) Insert(ctx context.Context, ns model.NewSession) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpInsert); err != nil {
		return nil, err
	}
	s.nextID++
	row := model.Session{
		ID:                    s.nextID,
		Token:                 ns.Token,
		UserID:                ns.UserID,
		ActiveOrgMembershipID: ns.ActiveOrgMembershipID,
		DeviceInfo:            ns.DeviceInfo,
		IPAddress:             ns.IPAddress,
		Platform:              ns.Platform,
		CreatedAt:             ns.LastAccessedAt,
		ExpiresAt:             ns.ExpiresAt,
		LastAccessedAt:        ns.LastAccessedAt,
	}
	s.rows[row.ID] = row
	return &row, nil
}

func (s *Store) FindByToken(ctx context.Context, token string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpFindByToken); err != nil {
		return nil, err
	}
	for _, row := range s.rows {
		if row.Token == token {
			return &row, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) Update(ctx context.Context, id int64, upd model.SessionUpdate, now time.Time) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpUpdate); err != nil {
		return nil, err
	}
	row, ok := s.rows[id]
	if !ok || !row.ExpiresAt.After(now) {
		return nil, repository.ErrNotFound
	}
	if upd.SetActiveOrg {
		row.ActiveOrgMembershipID = upd.ActiveOrgMembershipID
	}
	if upd.ExpiresAt != nil && upd.ExpiresAt.After(row.ExpiresAt) {
		row.ExpiresAt = *upd.ExpiresAt
	}
	if upd.LastAccessedAt != nil {
		row.LastAccessedAt = *upd.LastAccessedAt
	}
	s.rows[id] = row
	return &row, nil
}

func (s *Store) DeleteByToken(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpDeleteByToken); err != nil {
		return false, err
	}
	for id, row := range s.rows {
		if row.Token == token {
			delete(s.rows, id)
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListByUser(ctx context.Context, userID int64, now time.Time) ([]model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpListByUser); err != nil {
		return nil, err
	}
	var list []model.Session
	for _, row := range s.rows {
		if row.UserID == userID && row.ExpiresAt.After(now) {
			list = append(list, row)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].LastAccessedAt.Equal(list[j].LastAccessedAt) {
			return list[i].LastAccessedAt.After(list[j].LastAccessedAt)
		}
		return list[i].ID > list[j].ID
	})
	return list, nil
}

func (s *Store) ListTokensByUser(ctx context.Context, userID int64, except string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpListTokensByUser); err != nil {
		return nil, err
	}
	var tokens []string
	for _, row := range s.rows {
		if row.UserID == userID && row.Token != except {
			tokens = append(tokens, row.Token)
		}
	}
	return tokens, nil
}

func (s *Store) DeleteAllForUser(ctx context.Context, userID int64, except string) ([]string, error) {
	s.mu.Lock()
	hook := s.BeforeDeleteAll
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpDeleteAllForUser); err != nil {
		return nil, err
	}
	var tokens []string
	for id, row := range s.rows {
		if row.UserID == userID && row.Token != except {
			tokens = append(tokens, row.Token)
			delete(s.rows, id)
		}
	}
	return tokens, nil
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpDeleteExpired); err != nil {
		return nil, err
	}
	var tokens []string
	for id, row := range s.rows {
		if !row.ExpiresAt.After(now) {
			tokens = append(tokens, row.Token)
			delete(s.rows, id)
		}
	}
	return tokens, nil
}
