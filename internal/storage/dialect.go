package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dailyaed/internal/core"
)

// sqliteTimeLayout is fixed width so that stored timestamps sort as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// dialect covers the differences between the SQL backends: driver name,
// placeholder syntax and how dates and times are bound.
type dialect struct {
	name   string
	driver string
}

var (
	sqliteDialect   = dialect{name: "sqlite", driver: "sqlite"}
	postgresDialect = dialect{name: "postgres", driver: "pgx"}
)

// rebind rewrites ? placeholders to $n for postgres.
func (d dialect) rebind(query string) string {
	if d.name != postgresDialect.name {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d dialect) dateArg(date core.Date) any {
	if d.name == postgresDialect.name {
		return date.Time
	}
	return date.String()
}

func (d dialect) timeArg(t time.Time) any {
	if d.name == postgresDialect.name {
		return t.UTC()
	}
	return t.UTC().Format(sqliteTimeLayout)
}

// dateValue scans a DATE (postgres) or TEXT (sqlite) column.
type dateValue struct {
	core.Date
}

func (v *dateValue) Scan(src any) error {
	switch s := src.(type) {
	case time.Time:
		v.Date = core.DateOf(s)
		return nil
	case string:
		return v.parse(s)
	case []byte:
		return v.parse(string(s))
	default:
		return fmt.Errorf("scan date: unsupported type %T", src)
	}
}

func (v *dateValue) parse(s string) error {
	if len(s) > len(core.DateLayout) {
		s = s[:len(core.DateLayout)]
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return fmt.Errorf("scan date: %w", err)
	}
	v.Date = d
	return nil
}

// timeValue scans a TIMESTAMPTZ (postgres) or TEXT (sqlite) column.
type timeValue struct {
	time.Time
}

var timeLayouts = []string{
	sqliteTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

func (v *timeValue) Scan(src any) error {
	switch s := src.(type) {
	case time.Time:
		v.Time = s
		return nil
	case string:
		return v.parse(s)
	case []byte:
		return v.parse(string(s))
	case nil:
		v.Time = time.Time{}
		return nil
	default:
		return fmt.Errorf("scan time: unsupported type %T", src)
	}
}

func (v *timeValue) parse(s string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			v.Time = t
			return nil
		}
	}
	return fmt.Errorf("scan time: unrecognised format %q", s)
}

// nullFils binds an optional amount; NULL leaves the column unchanged.
func nullFils(m *core.Money) sql.NullInt64 {
	if m == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: m.Fils, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
