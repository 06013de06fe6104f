// Package all registers every storage backend with the storage factory.
// Config chooses which one runs, but the binaries carry all of them.
package all

import (
	_ "sparkify/internal/storage/mssql"
	_ "sparkify/internal/storage/postgres"
	_ "sparkify/internal/storage/sqlite"
)
