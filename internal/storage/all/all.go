// Package all links every storage backend into the binary.
package all

import (
	// SQL Server driver, registered as "sqlserver".
	_ "github.com/microsoft/go-mssqldb"

	_ "wbdscrape/internal/storage/mssql"
	_ "wbdscrape/internal/storage/postgres"
	_ "wbdscrape/internal/storage/sqlite"
)
