// Package store keeps the verdict ledger of a run in SQLite, so a finished
// run can be reported on again without re-executing any trial.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/signalnine/ripedome/internal/matrix"
	"github.com/signalnine/ripedome/internal/result"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// ErrNoRuns is returned by LatestRun on an empty ledger.
var ErrNoRuns = errors.New("no runs recorded")

type Store struct {
	db *sql.DB
}

type Run struct {
	ID         string
	Started    time.Time
	Techniques []string
	Repeat     int
}

// Open creates or opens the ledger at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to ledger: %w", err)
	}
	// One writer at a time is all SQLite supports.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting user_version: %w", err)
	}
	return &Store{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("executing %q: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) WriteRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started, techniques, repeat)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, r.ID, r.Started.UTC().Format(time.RFC3339), strings.Join(r.Techniques, ","), r.Repeat)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

type tagJSON struct {
	Name     string `json:"name"`
	Severity string `json:"severity"`
}

// WriteTrial records the verdict of trial seq of the run. Writing the same
// seq twice keeps the first record.
func (s *Store) WriteTrial(ctx context.Context, runID string, seq int, tr *result.TrialResult) error {
	tags := make([]tagJSON, 0, len(tr.Tags))
	for _, t := range tr.Tags {
		tags = append(tags, tagJSON{Name: t.Name, Severity: t.Severity.String()})
	}
	tagsData, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("write trial: %w", err)
	}

	p := tr.Params
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trials
		(run_id, seq, mode, technique, location, pointer, attack, function,
		 verdict, successes, attempts, repeat, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		runID, seq, string(tr.Mode),
		string(p.Technique), string(p.Location), string(p.Pointer), string(p.Attack), string(p.Function),
		tr.Verdict.String(), tr.Successes, tr.Attempts, tr.Repeat, string(tagsData),
	)
	if err != nil {
		return fmt.Errorf("write trial: %w", err)
	}
	return nil
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	var (
		r                   Run
		started, techniques string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, started, techniques, repeat FROM runs
		ORDER BY started DESC, id DESC LIMIT 1
	`).Scan(&r.ID, &started, &techniques, &r.Repeat)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("read run: %w", err)
	}
	r.Started, err = time.Parse(time.RFC3339, started)
	if err != nil {
		return nil, fmt.Errorf("read run: parsing start time: %w", err)
	}
	if techniques != "" {
		r.Techniques = strings.Split(techniques, ",")
	}
	return &r, nil
}

// ReadTrials returns the trials of a run in execution order.
func (s *Store) ReadTrials(ctx context.Context, runID string) ([]result.TrialResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mode, technique, location, pointer, attack, function,
		       verdict, successes, attempts, repeat, tags
		FROM trials WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("read trials: %w", err)
	}
	defer rows.Close()

	var out []result.TrialResult
	for rows.Next() {
		var (
			tr                                            result.TrialResult
			mode, tech, loc, ptr, attack, fn, verdict, tg string
		)
		if err := rows.Scan(&mode, &tech, &loc, &ptr, &attack, &fn,
			&verdict, &tr.Successes, &tr.Attempts, &tr.Repeat, &tg); err != nil {
			return nil, fmt.Errorf("read trials: %w", err)
		}
		tr.Mode = matrix.Mode(mode)
		tr.Params = matrix.Params{
			Technique: matrix.Technique(tech),
			Location:  matrix.Location(loc),
			Pointer:   matrix.CodePointer(ptr),
			Attack:    matrix.AttackClass(attack),
			Function:  matrix.Function(fn),
		}
		if tr.Verdict, err = result.ParseVerdict(verdict); err != nil {
			return nil, fmt.Errorf("read trials: %w", err)
		}
		if tr.Tags, err = decodeTags(tg); err != nil {
			return nil, fmt.Errorf("read trials: %w", err)
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read trials: %w", err)
	}
	return out, nil
}

func decodeTags(data string) ([]result.Tag, error) {
	var raw []tagJSON
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}
	var tags []result.Tag
	for _, t := range raw {
		sev, err := result.ParseSeverity(t.Severity)
		if err != nil {
			return nil, err
		}
		tags = append(tags, result.Tag{Name: t.Name, Severity: sev})
	}
	return tags, nil
}

// Aggregates recomputes the per-mode counters of a run, in the order the
// modes were run.
func (s *Store) Aggregates(ctx context.Context, runID string) ([]result.ModeAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mode,
		       SUM(verdict = 'success'),
		       SUM(verdict = 'partial'),
		       SUM(verdict = 'failure'),
		       SUM(verdict = 'not_possible')
		FROM trials WHERE run_id = ?
		GROUP BY mode ORDER BY MIN(seq)
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("read aggregates: %w", err)
	}
	defer rows.Close()

	var out []result.ModeAggregate
	for rows.Next() {
		var (
			a    result.ModeAggregate
			mode string
		)
		if err := rows.Scan(&mode, &a.OK, &a.Some, &a.Fail, &a.NP); err != nil {
			return nil, fmt.Errorf("read aggregates: %w", err)
		}
		a.Mode = matrix.Mode(mode)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read aggregates: %w", err)
	}
	return out, nil
}
