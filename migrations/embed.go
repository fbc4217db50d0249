// Package migrations embeds the SQL migration files into the binary so a
// deploy carries its own schema history.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
