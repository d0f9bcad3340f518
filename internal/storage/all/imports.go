// Package all wires every built-in violation sink backend into the storage
// factory. Import it for side effects:
//
//	import _ "csvs/internal/storage/all"
//
// after which storage.New accepts kinds "postgres", "sqlite", "mssql" and
// "mysql". A binary that needs only a subset can import the backends
// individually instead.
package all

import (
	_ "csvs/internal/storage/mssql"
	_ "csvs/internal/storage/mysql"
	_ "csvs/internal/storage/postgres"
	_ "csvs/internal/storage/sqlite"
)
