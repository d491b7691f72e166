package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

// schema defines the tables for run history.
// Version is tracked in the schema_versions table.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS runs (
    id            TEXT PRIMARY KEY,
    started_at    DATETIME NOT NULL,
    finished_at   DATETIME NOT NULL,
    record_count  INTEGER NOT NULL DEFAULT 0,
    region_count  INTEGER NOT NULL DEFAULT 0,
    period_count  INTEGER NOT NULL DEFAULT 0,
    config        TEXT NOT NULL DEFAULT '{}',
    durations     TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);

CREATE TABLE IF NOT EXISTS risk_scores (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    region      TEXT NOT NULL,
    total       REAL NOT NULL DEFAULT 0.0,
    level       TEXT NOT NULL DEFAULT 'VERY_LOW',
    components  TEXT NOT NULL DEFAULT '{}',
    weights     TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_risk_scores_run    ON risk_scores(run_id);
CREATE INDEX IF NOT EXISTS idx_risk_scores_region ON risk_scores(region);

CREATE TABLE IF NOT EXISTS anomaly_flags (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    region    TEXT NOT NULL,
    period    TEXT NOT NULL,
    feature   TEXT NOT NULL,
    value     REAL NOT NULL DEFAULT 0.0,
    baseline  REAL NOT NULL DEFAULT 0.0,
    spread    REAL NOT NULL DEFAULT 0.0,
    severity  REAL NOT NULL DEFAULT 0.0
);
CREATE INDEX IF NOT EXISTS idx_anomaly_flags_run     ON anomaly_flags(run_id);
CREATE INDEX IF NOT EXISTS idx_anomaly_flags_feature ON anomaly_flags(feature);
`,
	},
	// Migration 2: clusters + findings
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS clusters (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id            TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    region            TEXT NOT NULL,
    cluster           INTEGER NOT NULL DEFAULT -1,
    distance          REAL NOT NULL DEFAULT 0.0,
    missing_features  TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_clusters_run ON clusters(run_id);

CREATE TABLE IF NOT EXISTS findings (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    category  TEXT NOT NULL,
    region    TEXT NOT NULL,
    period    TEXT NOT NULL DEFAULT '',
    feature   TEXT NOT NULL DEFAULT '',
    score     REAL NOT NULL DEFAULT 0.0,
    rank      INTEGER NOT NULL DEFAULT 0,
    detail    TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_findings_run      ON findings(run_id);
CREATE INDEX IF NOT EXISTS idx_findings_category ON findings(category, rank ASC);
`,
	},
}

// sqliteStore is the SQLite-backed implementation of Store.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// runs all pending schema migrations. Pass ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// SQLite admits a single writer; one pooled connection also keeps
	// :memory: databases on one underlying store.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency and performance.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	// Enable foreign-key constraints.
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *sqliteStore) migrate() error {
	// Ensure schema_versions table exists before reading from it.
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}

		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Runs ─────────────────────────────────────────────────────────────────────

func (s *sqliteStore) SaveRun(ctx context.Context, rec *RunRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO runs(id, started_at, finished_at, record_count, region_count, period_count, config, durations)
        VALUES(?,?,?,?,?,?,?,?)
        ON CONFLICT(id) DO UPDATE SET
            finished_at   = excluded.finished_at,
            record_count  = excluded.record_count,
            region_count  = excluded.region_count,
            period_count  = excluded.period_count,
            config        = excluded.config,
            durations     = excluded.durations
    `,
		rec.ID, rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
		rec.RecordCount, rec.RegionCount, rec.PeriodCount,
		rec.Config, rec.Durations,
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	// scores
	if _, err := tx.ExecContext(ctx, `DELETE FROM risk_scores WHERE run_id=?`, rec.ID); err != nil {
		return fmt.Errorf("delete scores: %w", err)
	}
	for _, sc := range rec.Scores {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO risk_scores(run_id, region, total, level, components, weights)
            VALUES(?,?,?,?,?,?)
        `, rec.ID, sc.Region, sc.Total, sc.Level, sc.Components, sc.Weights)
		if err != nil {
			return fmt.Errorf("insert score: %w", err)
		}
	}

	// flags
	if _, err := tx.ExecContext(ctx, `DELETE FROM anomaly_flags WHERE run_id=?`, rec.ID); err != nil {
		return fmt.Errorf("delete flags: %w", err)
	}
	for _, f := range rec.Flags {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO anomaly_flags(run_id, region, period, feature, value, baseline, spread, severity)
            VALUES(?,?,?,?,?,?,?,?)
        `, rec.ID, f.Region, f.Period, f.Feature, f.Value, f.Baseline, f.Spread, f.Severity)
		if err != nil {
			return fmt.Errorf("insert flag: %w", err)
		}
	}

	// clusters
	if _, err := tx.ExecContext(ctx, `DELETE FROM clusters WHERE run_id=?`, rec.ID); err != nil {
		return fmt.Errorf("delete clusters: %w", err)
	}
	for _, c := range rec.Clusters {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO clusters(run_id, region, cluster, distance, missing_features)
            VALUES(?,?,?,?,?)
        `, rec.ID, c.Region, c.Cluster, c.Distance, c.MissingFeatures)
		if err != nil {
			return fmt.Errorf("insert cluster: %w", err)
		}
	}

	// findings
	if _, err := tx.ExecContext(ctx, `DELETE FROM findings WHERE run_id=?`, rec.ID); err != nil {
		return fmt.Errorf("delete findings: %w", err)
	}
	for _, fd := range rec.Findings {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO findings(run_id, category, region, period, feature, score, rank, detail)
            VALUES(?,?,?,?,?,?,?,?)
        `, rec.ID, fd.Category, fd.Region, fd.Period, fd.Feature, fd.Score, fd.Rank, fd.Detail)
		if err != nil {
			return fmt.Errorf("insert finding: %w", err)
		}
	}

	return tx.Commit()
}

func (s *sqliteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,started_at,finished_at,record_count,region_count,period_count,config,durations FROM runs WHERE id=?`, id)
	rec, err := scanRun(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadChildren(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *sqliteStore) ListRuns(ctx context.Context, limit, offset int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id,started_at,finished_at,record_count,region_count,period_count,config,durations FROM runs ORDER BY started_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *sqliteStore) LatestRun(ctx context.Context) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,started_at,finished_at,record_count,region_count,period_count,config,durations FROM runs ORDER BY started_at DESC LIMIT 1`)
	rec, err := scanRun(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadChildren(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *sqliteStore) DeleteRun(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id=?`, id)
	return err
}

func (s *sqliteStore) PruneRuns(ctx context.Context, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	result, err := s.db.ExecContext(ctx, `
        DELETE FROM runs WHERE id NOT IN (
            SELECT id FROM runs ORDER BY started_at DESC LIMIT ?
        )
    `, keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	deleted, _ := result.RowsAffected()
	return int(deleted), nil
}

// loadChildren populates a run record's score, flag, cluster and
// finding rows.
func (s *sqliteStore) loadChildren(ctx context.Context, rec *RunRecord) error {
	scRows, err := s.db.QueryContext(ctx, `SELECT id,region,total,level,components,weights FROM risk_scores WHERE run_id=? ORDER BY region ASC`, rec.ID)
	if err != nil {
		return fmt.Errorf("query scores: %w", err)
	}
	defer scRows.Close()
	for scRows.Next() {
		sc := ScoreRecord{RunID: rec.ID}
		if err := scRows.Scan(&sc.ID, &sc.Region, &sc.Total, &sc.Level, &sc.Components, &sc.Weights); err != nil {
			return err
		}
		rec.Scores = append(rec.Scores, sc)
	}
	if err := scRows.Err(); err != nil {
		return err
	}

	fRows, err := s.db.QueryContext(ctx, `SELECT id,region,period,feature,value,baseline,spread,severity FROM anomaly_flags WHERE run_id=? ORDER BY id ASC`, rec.ID)
	if err != nil {
		return fmt.Errorf("query flags: %w", err)
	}
	defer fRows.Close()
	for fRows.Next() {
		f := FlagRecord{RunID: rec.ID}
		if err := fRows.Scan(&f.ID, &f.Region, &f.Period, &f.Feature, &f.Value, &f.Baseline, &f.Spread, &f.Severity); err != nil {
			return err
		}
		rec.Flags = append(rec.Flags, f)
	}
	if err := fRows.Err(); err != nil {
		return err
	}

	cRows, err := s.db.QueryContext(ctx, `SELECT id,region,cluster,distance,missing_features FROM clusters WHERE run_id=? ORDER BY region ASC`, rec.ID)
	if err != nil {
		return fmt.Errorf("query clusters: %w", err)
	}
	defer cRows.Close()
	for cRows.Next() {
		c := ClusterRecord{RunID: rec.ID}
		if err := cRows.Scan(&c.ID, &c.Region, &c.Cluster, &c.Distance, &c.MissingFeatures); err != nil {
			return err
		}
		rec.Clusters = append(rec.Clusters, c)
	}
	if err := cRows.Err(); err != nil {
		return err
	}

	fdRows, err := s.db.QueryContext(ctx, `SELECT id,category,region,period,feature,score,rank,detail FROM findings WHERE run_id=? ORDER BY category ASC, rank ASC`, rec.ID)
	if err != nil {
		return fmt.Errorf("query findings: %w", err)
	}
	defer fdRows.Close()
	for fdRows.Next() {
		fd := FindingRecord{RunID: rec.ID}
		if err := fdRows.Scan(&fd.ID, &fd.Category, &fd.Region, &fd.Period, &fd.Feature, &fd.Score, &fd.Rank, &fd.Detail); err != nil {
			return err
		}
		rec.Findings = append(rec.Findings, fd)
	}
	return fdRows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	rec := &RunRecord{}
	var startedAt, finishedAt string
	err := row.Scan(&rec.ID, &startedAt, &finishedAt,
		&rec.RecordCount, &rec.RegionCount, &rec.PeriodCount,
		&rec.Config, &rec.Durations)
	if err != nil {
		return nil, err
	}
	rec.StartedAt, _ = parseTime(startedAt)
	rec.FinishedAt, _ = parseTime(finishedAt)
	return rec, nil
}

// ─── History ──────────────────────────────────────────────────────────────────

func (s *sqliteStore) RiskHistory(ctx context.Context, region string, limit int) ([]*RiskPoint, error) {
	if limit <= 0 {
		limit = 90
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT r.id, r.started_at, sc.total, sc.level
        FROM risk_scores sc
        JOIN runs r ON r.id = sc.run_id
        WHERE sc.region = ?
        ORDER BY r.started_at DESC
        LIMIT ?
    `, region, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*RiskPoint
	for rows.Next() {
		p := &RiskPoint{}
		var ts string
		if err := rows.Scan(&p.RunID, &ts, &p.Total, &p.Level); err != nil {
			return nil, err
		}
		p.StartedAt, _ = parseTime(ts)
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *sqliteStore) FlagSummary(ctx context.Context, from, to time.Time) (map[string]int, error) {
	query := `
        SELECT f.feature, COUNT(*)
        FROM anomaly_flags f
        JOIN runs r ON r.id = f.run_id
        WHERE 1=1`
	args := []any{}
	if !from.IsZero() {
		query += ` AND r.started_at >= ?`
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += ` AND r.started_at <= ?`
		args = append(args, to.UTC())
	}
	query += ` GROUP BY f.feature`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := map[string]int{}
	for rows.Next() {
		var feature string
		var count int
		if err := rows.Scan(&feature, &count); err != nil {
			return nil, err
		}
		summary[feature] = count
	}
	return summary, rows.Err()
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// parseTime handles multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
