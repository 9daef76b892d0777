// Package migrations embeds the SQL schema of the run ledger.
package migrations

import "embed"

// FS holds the *.up.sql files, applied in name order
//
//go:embed *.up.sql
var FS embed.FS
