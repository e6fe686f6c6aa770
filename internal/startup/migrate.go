package startup

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/campaign/internal/logger"
	"github.com/campaign/migrations"
)

// Migrate применяет встроенные миграции. direction — "up" или "down".
// Отсутствие изменений (migrate.ErrNoChange) не считается ошибкой.
func Migrate(dsn, direction string) error {
	if dsn == "" {
		return errors.New("migrate: DATABASE_URL is not set")
	}
	if direction != "up" && direction != "down" {
		return fmt.Errorf("migrate: direction must be up or down, got %q", direction)
	}
	src, err := iofs.New(migrations.Files, ".")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if direction == "up" {
		err = m.Up()
	} else {
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", direction, err)
	}
	if v, dirty, verr := m.Version(); verr == nil {
		logger.Infof("migrations %s: version=%d dirty=%v", direction, v, dirty)
	}
	return nil
}
