// Package migrations contains the embedded schema migrations, one directory
// per backend. The directories hold the same versions with dialect-specific
// column types.
package migrations

import "embed"

// Files exposes the compiled-in migration SQL files.
//
//go:embed sqlite/*.sql postgres/*.sql mysql/*.sql
var Files embed.FS
