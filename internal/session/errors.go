package session

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated — токен отсутствует, некорректен или сессии нет.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrSessionExpired — сессия найдена, но истекла. errors.Is(err, ErrUnauthenticated) == true.
	ErrSessionExpired = fmt.Errorf("%w: session expired", ErrUnauthenticated)
)

// ExternalServiceError — отказ хранилища (postgres, redis), не связанный с самим токеном.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return e.Service + ": " + e.Err.Error()
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

func postgresErr(err error) error {
	return &ExternalServiceError{Service: "postgres", Err: err}
}
