// Package migrations embeds the SQL migration files applied to the
// agentcore SQLite database at Store.Open time.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
