// Package all registers every storage backend with the storage factory.
// The configuration picks one by kind, but the binary carries them all.
package all

import (
	_ "salesrollup/internal/storage/duckdb"
	_ "salesrollup/internal/storage/mssql"
	_ "salesrollup/internal/storage/mysql"
	_ "salesrollup/internal/storage/postgres"
	_ "salesrollup/internal/storage/sqlite"
)
