package migrations

import "embed"

// FS contains the embedded SQL migrations for the rsvps table.
//
//go:embed *.sql
var FS embed.FS
