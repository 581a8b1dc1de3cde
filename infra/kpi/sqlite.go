package kpi

import (
	"database/sql"
	"time"

	core "github.com/volteq/flexplan/core/metrics/kpi"
	_ "modernc.org/sqlite"
)

const dayFormat = "2006-01-02"

const schema = `CREATE TABLE IF NOT EXISTS plan_kpi (
	portfolio TEXT NOT NULL,
	day TEXT NOT NULL,
	planned_kwh REAL NOT NULL DEFAULT 0,
	publications INTEGER NOT NULL DEFAULT 0,
	stale INTEGER NOT NULL DEFAULT 0,
	worst_deviation REAL NOT NULL DEFAULT 0,
	PRIMARY KEY(portfolio, day)
);`

// SQLiteStore keeps daily delivery KPIs in a sqlite file so they survive
// restarts. Day keys are ISO dates, which keeps range scans lexicographic
// and the table readable with the sqlite shell.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at path, creating file and schema on
// first use.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Add upserts the record into its portfolio-day row: sums for energy and
// counters, maximum for the worst deviation.
func (s *SQLiteStore) Add(r core.Record) error {
	_, err := s.db.Exec(`INSERT INTO plan_kpi (portfolio, day, planned_kwh, publications, stale, worst_deviation)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(portfolio, day) DO UPDATE SET
            planned_kwh = planned_kwh + excluded.planned_kwh,
            publications = publications + excluded.publications,
            stale = stale + excluded.stale,
            worst_deviation = MAX(worst_deviation, excluded.worst_deviation)`,
		r.Portfolio, core.Day(r.Date).Format(dayFormat), r.PlannedKWh, r.Publications, r.Stale, r.WorstDeviationKW)
	return err
}

// Query returns the daily rows of one portfolio between start and end
// inclusive, oldest first.
func (s *SQLiteStore) Query(portfolio string, start, end time.Time) ([]core.Record, error) {
	rows, err := s.db.Query(`SELECT day, planned_kwh, publications, stale, worst_deviation
        FROM plan_kpi WHERE portfolio = ? AND day BETWEEN ? AND ? ORDER BY day`,
		portfolio, core.Day(start).Format(dayFormat), core.Day(end).Format(dayFormat))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []core.Record
	for rows.Next() {
		rec := core.Record{Portfolio: portfolio}
		var day string
		if err := rows.Scan(&day, &rec.PlannedKWh, &rec.Publications, &rec.Stale, &rec.WorstDeviationKW); err != nil {
			return nil, err
		}
		if rec.Date, err = time.Parse(dayFormat, day); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
