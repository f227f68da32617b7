// Package migrations embeds the SQL schema applied by the migrate command.
package migrations

import "embed"

// FS holds the versioned up/down SQL files.
//
//go:embed *.sql
var FS embed.FS
