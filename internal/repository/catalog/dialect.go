package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// Supported database/sql drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

type dialect struct {
	driver   string
	floatCol string
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverSQLite:
		return dialect{driver: driver, floatCol: "REAL"}, nil
	case DriverPostgres:
		return dialect{driver: driver, floatCol: "DOUBLE PRECISION"}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported catalog driver %q", driver)
	}
}

// rebind rewrites ? placeholders to $n for postgres. Queries are built from
// fixed fragments, so no placeholder ever appears inside a string literal.
func (d dialect) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
