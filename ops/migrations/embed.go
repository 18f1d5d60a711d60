// Package migrations embeds the schema and seed files so binaries can migrate
// without a checkout.
package migrations

import "embed"

//go:embed sql/*.sql seeds/*.sql
var FS embed.FS

const (
	SQLDir   = "sql"
	SeedsDir = "seeds"
)
