//go:build purego

package kb

// modernc.org/sqlite is the pure-Go driver, linked when cgo is unavailable
// (cross-compiling, CGO_ENABLED=0). Selected with -tags purego.
import _ "modernc.org/sqlite"

// DriverName is the database/sql driver name SQLiteProvider opens.
const DriverName = "sqlite"
