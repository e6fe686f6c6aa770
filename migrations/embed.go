// Package migrations предоставляет встроенные SQL-миграции (формат golang-migrate: NNNNNN_name.up.sql / .down.sql).
package migrations

import "embed"

// Files содержит все .sql файлы из этой директории.
//
//go:embed *.sql
var Files embed.FS
