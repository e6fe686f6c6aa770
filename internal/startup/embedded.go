package startup

import (
	"fmt"
	"os"
	"path/filepath"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"

	"github.com/campaign/internal/logger"
)

// EmbeddedPostgres — параметры встроенного PostgreSQL (-dev, интеграционные тесты).
type EmbeddedPostgres struct {
	Port     uint32
	DataDir  string // пусто — временный каталог, данные не сохраняются
	Runtime  string
	User     string
	Password string
	Database string
}

// DevPostgres — -dev: данные в ./.pgdata переживают перезапуск.
func DevPostgres() EmbeddedPostgres {
	return EmbeddedPostgres{
		Port:     5432,
		DataDir:  filepath.Join(".", ".pgdata"),
		Runtime:  filepath.Join(os.TempDir(), "embedded-pg-runtime"),
		User:     "campaign",
		Password: "campaign_secret",
		Database: "campaign",
	}
}

func (e EmbeddedPostgres) URL() string {
	return fmt.Sprintf("postgres://%s:%s@localhost:%d/%s?sslmode=disable", e.User, e.Password, e.Port, e.Database)
}

// Start запускает сервер; остановка — Stop у возвращённого значения.
func (e EmbeddedPostgres) Start() (*embeddedpostgres.EmbeddedPostgres, error) {
	cfg := embeddedpostgres.DefaultConfig().
		Port(e.Port).
		Username(e.User).
		Password(e.Password).
		Database(e.Database)
	if e.DataDir != "" {
		if err := os.MkdirAll(e.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create pgdata dir: %w", err)
		}
		cfg = cfg.DataPath(e.DataDir)
	}
	if e.Runtime != "" {
		cfg = cfg.RuntimePath(e.Runtime)
	}
	db := embeddedpostgres.NewDatabase(cfg)
	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("embedded postgres start: %w", err)
	}
	logger.Infof("embedded PostgreSQL running on port %d", e.Port)
	return db, nil
}
