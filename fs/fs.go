package appfs

import "embed"

// FS holds the SQL migrations, applied with goose.
//
//go:embed migrations
var FS embed.FS
