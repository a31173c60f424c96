// Package store mirrors detail records into a relational database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/law-makers/cartelera/pkg/models"
)

// Store is a films/showings database
type Store struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the database and creates the schema when missing
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	driver, err := NormalizeDriver(driver)
	if err != nil {
		return nil, err
	}
	if dsn == "" {
		return nil, errors.New("database dsn is empty")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// one writer at a time keeps sqlite from returning SQLITE_BUSY
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma: %w", err)
		}
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	s := &Store{db: db, dialect: dialect{driver: driver}}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug().Str("driver", driver).Msg("Database ready")
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRecord upserts the film and replaces its showings in one transaction
func (s *Store) SaveRecord(ctx context.Context, rec *models.ExtractedRecord) error {
	if rec == nil || rec.URL == "" {
		return errors.New("record has no url")
	}
	genres, err := json.Marshal(nonNil(rec.Genres))
	if err != nil {
		return fmt.Errorf("encode genres: %w", err)
	}
	cast, err := json.Marshal(nonNil(rec.Cast))
	if err != nil {
		return fmt.Errorf("encode cast: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, s.dialect.upsertFilm(),
		rec.URL,
		rec.Title,
		rec.FilmID,
		rec.PageTitle,
		rec.Duration,
		rec.ReleaseDate,
		string(genres),
		rec.Classification,
		rec.Directors,
		string(cast),
		rec.Synopsis,
		rec.PosterURL,
		nullableString(rec.PosterLocalPath),
		nullableString(rec.LocalImagePath),
		rec.ScrapedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert film %q: %w", rec.Title, err)
	}

	if _, err := tx.ExecContext(ctx, s.dialect.bind(`DELETE FROM showings WHERE film_url = ?`), rec.URL); err != nil {
		return fmt.Errorf("clear showings: %w", err)
	}
	insert := s.dialect.bind(`INSERT INTO showings (film_url, venue, show_date, show_time, format, purchase_url) VALUES (?, ?, ?, ?, ?, ?)`)
	for _, venue := range rec.Sessions {
		for _, sh := range venue.Showings {
			if _, err := tx.ExecContext(ctx, insert, rec.URL, venue.VenueName, sh.Date, sh.Time, sh.Format, sh.PurchaseURL); err != nil {
				return fmt.Errorf("insert showing: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SaveRecords stores every record and returns how many were saved. A failing
// record is logged and skipped.
func (s *Store) SaveRecords(ctx context.Context, recs []*models.ExtractedRecord) int {
	saved := 0
	for _, rec := range recs {
		if err := s.SaveRecord(ctx, rec); err != nil {
			log.Warn().Err(err).Str("url", rec.URL).Msg("Record not saved to database")
			continue
		}
		saved++
	}
	return saved
}

// Film reads a film and its showings back, or nil when url is unknown
func (s *Store) Film(ctx context.Context, url string) (*models.ExtractedRecord, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.bind(`SELECT url, title, film_id, page_title, duration, release_date,
        genres, classification, directors, cast_members, synopsis, poster_url, poster_path, image_path, scraped_at
        FROM films WHERE url = ?`), url)

	var (
		rec                   models.ExtractedRecord
		genres, cast, scraped string
		poster, image         sql.NullString
	)
	err := row.Scan(&rec.URL, &rec.Title, &rec.FilmID, &rec.PageTitle, &rec.Duration, &rec.ReleaseDate,
		&genres, &rec.Classification, &rec.Directors, &cast, &rec.Synopsis, &rec.PosterURL, &poster, &image, &scraped)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get film: %w", err)
	}
	if err := json.Unmarshal([]byte(genres), &rec.Genres); err != nil {
		return nil, fmt.Errorf("decode genres: %w", err)
	}
	if err := json.Unmarshal([]byte(cast), &rec.Cast); err != nil {
		return nil, fmt.Errorf("decode cast: %w", err)
	}
	rec.PosterLocalPath = stringPtr(poster)
	rec.LocalImagePath = stringPtr(image)
	if t, err := time.Parse(time.RFC3339Nano, scraped); err == nil {
		rec.ScrapedAt = t
	}

	sessions, err := s.showings(ctx, url)
	if err != nil {
		return nil, err
	}
	rec.Sessions = sessions
	return &rec, nil
}

func (s *Store) showings(ctx context.Context, url string) ([]models.CinemaShowtimes, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.bind(`SELECT venue, show_date, show_time, format, purchase_url
        FROM showings WHERE film_url = ? ORDER BY id`), url)
	if err != nil {
		return nil, fmt.Errorf("list showings: %w", err)
	}
	defer rows.Close()

	out := []models.CinemaShowtimes{}
	index := map[string]int{}
	for rows.Next() {
		var venue string
		var sh models.Showing
		if err := rows.Scan(&venue, &sh.Date, &sh.Time, &sh.Format, &sh.PurchaseURL); err != nil {
			return nil, fmt.Errorf("scan showing: %w", err)
		}
		i, ok := index[venue]
		if !ok {
			i = len(out)
			index[venue] = i
			out = append(out, models.CinemaShowtimes{VenueName: venue, Showings: []models.Showing{}})
		}
		out[i].Showings = append(out[i].Showings, sh)
	}
	return out, rows.Err()
}

// CountFilms returns the number of stored films
func (s *Store) CountFilms(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM films`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count films: %w", err)
	}
	return n, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nullableString(p *string) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
