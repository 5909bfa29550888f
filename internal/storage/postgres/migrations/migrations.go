// migrations содержит SQL-схему PostgreSQL-хранилища в формате goose.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
