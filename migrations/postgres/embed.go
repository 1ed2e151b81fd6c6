// Package postgres embebe las migraciones SQL del vault.
package postgres

import "embed"

//go:embed *.sql
var FS embed.FS
