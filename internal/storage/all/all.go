// Package all registers every result store backend and the SQL Server
// driver. Binaries blank-import it.
package all

import (
	_ "github.com/microsoft/go-mssqldb"

	_ "profiler/internal/storage/mssql"
	_ "profiler/internal/storage/postgres"
	_ "profiler/internal/storage/sqlite"
)
