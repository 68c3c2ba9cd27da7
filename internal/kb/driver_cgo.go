//go:build !purego

package kb

// mattn/go-sqlite3 is the default cgo-backed SQLite driver, matching the
// reference's own SQLite-backed stores. Build with -tags purego to link
// the pure-Go modernc.org/sqlite driver instead (driver_pure.go).
import _ "github.com/mattn/go-sqlite3"

// DriverName is the database/sql driver name SQLiteProvider opens.
const DriverName = "sqlite3"
