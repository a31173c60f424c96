package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Supported driver names
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "pgx"
)

// Drivers lists the accepted driver names
func Drivers() []string {
	return []string{DriverSQLite, DriverMySQL, DriverPostgres}
}

// NormalizeDriver maps common aliases onto a supported driver name
func NormalizeDriver(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "mysql", "mariadb":
		return DriverMySQL, nil
	case "pgx", "postgres", "postgresql":
		return DriverPostgres, nil
	}
	return "", fmt.Errorf("unsupported database driver %q (want one of %s)", name, strings.Join(Drivers(), ", "))
}

type dialect struct {
	driver string
}

// bind rewrites ? placeholders for drivers that use numbered parameters
func (d dialect) bind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d dialect) schema() []string {
	key := "TEXT"
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	switch d.driver {
	case DriverMySQL:
		key = "VARCHAR(512)"
		serial = "BIGINT AUTO_INCREMENT PRIMARY KEY"
	case DriverPostgres:
		serial = "BIGSERIAL PRIMARY KEY"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS films (
            url ` + key + ` PRIMARY KEY,
            title TEXT NOT NULL,
            film_id TEXT,
            page_title TEXT,
            duration TEXT,
            release_date TEXT,
            genres TEXT,
            classification TEXT,
            directors TEXT,
            cast_members TEXT,
            synopsis TEXT,
            poster_url TEXT,
            poster_path TEXT,
            image_path TEXT,
            scraped_at VARCHAR(40) NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS showings (
            id ` + serial + `,
            film_url ` + key + ` NOT NULL,
            venue TEXT NOT NULL,
            show_date TEXT,
            show_time TEXT,
            format TEXT,
            purchase_url TEXT
        )`,
	}
}

var filmColumns = []string{
	"url", "title", "film_id", "page_title", "duration", "release_date", "genres",
	"classification", "directors", "cast_members", "synopsis", "poster_url",
	"poster_path", "image_path", "scraped_at",
}

func (d dialect) upsertFilm() string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(filmColumns)), ", ")
	insert := "INSERT INTO films (" + strings.Join(filmColumns, ", ") + ") VALUES (" + placeholders + ")"

	sets := make([]string, 0, len(filmColumns)-1)
	for _, c := range filmColumns[1:] {
		if d.driver == DriverMySQL {
			sets = append(sets, c+" = VALUES("+c+")")
		} else {
			sets = append(sets, c+" = excluded."+c)
		}
	}
	if d.driver == DriverMySQL {
		return d.bind(insert + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", "))
	}
	return d.bind(insert + " ON CONFLICT (url) DO UPDATE SET " + strings.Join(sets, ", "))
}
