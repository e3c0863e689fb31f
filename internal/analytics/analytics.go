// Package analytics aggregates the run event log into per-project
// statistics: throughput, gate first-pass rates, and run durations.
package analytics

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"
)

// DB is the interface for database queries used by analytics.
type DB interface {
	Conn() *sql.DB
}

// ProjectStats holds aggregate run outcomes for one project.
type ProjectStats struct {
	Project     string  `json:"project"`
	Runs        int     `json:"runs"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	NoChanges   int     `json:"no_changes"`
	AvgAttempts float64 `json:"avg_attempts"`
	// FirstPassPct is the share of gated runs whose gates passed on
	// the first attempt.
	FirstPassPct float64 `json:"first_pass_pct"`
}

// QueryProjectStats returns run outcome counts per project. A run is
// counted once per terminal event; runs still in flight only show up
// in the Runs column.
func QueryProjectStats(database DB, since string) ([]ProjectStats, error) {
	query := `
		SELECT project,
			SUM(CASE WHEN event = 'run_started' THEN 1 ELSE 0 END) as runs,
			SUM(CASE WHEN event = 'run_finished' THEN 1 ELSE 0 END) as completed,
			SUM(CASE WHEN event = 'run_failed' THEN 1 ELSE 0 END) as failed,
			SUM(CASE WHEN event = 'run_no_changes' THEN 1 ELSE 0 END) as no_changes
		FROM run_events`

	var args []any
	if since != "" {
		query += ` WHERE timestamp >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY project`

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query project stats: %w", err)
	}
	defer rows.Close()

	byProject := make(map[string]*ProjectStats)
	for rows.Next() {
		s := &ProjectStats{}
		if err := rows.Scan(&s.Project, &s.Runs, &s.Completed, &s.Failed, &s.NoChanges); err != nil {
			return nil, fmt.Errorf("scan project stats: %w", err)
		}
		byProject[s.Project] = s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := fillAttemptStats(database, since, byProject); err != nil {
		return nil, err
	}

	var results []ProjectStats
	for _, s := range byProject {
		results = append(results, *s)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Project < results[j].Project
	})
	return results, nil
}

// fillAttemptStats adds the gate attempt averages and first-pass rate
// from gates_passed events. A run that never reached passing gates
// contributes nothing here.
func fillAttemptStats(database DB, since string, byProject map[string]*ProjectStats) error {
	query := `
		SELECT project,
			COUNT(*) as passes,
			AVG(attempt) as avg_attempt,
			SUM(CASE WHEN attempt = 1 THEN 1 ELSE 0 END) as first_pass
		FROM run_events
		WHERE event = 'gates_passed'`

	var args []any
	if since != "" {
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY project`

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return fmt.Errorf("query attempt stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var project string
		var passes, firstPass int
		var avgAttempt sql.NullFloat64
		if err := rows.Scan(&project, &passes, &avgAttempt, &firstPass); err != nil {
			return fmt.Errorf("scan attempt stats: %w", err)
		}
		s, ok := byProject[project]
		if !ok {
			continue
		}
		s.AvgAttempts = round1(avgAttempt.Float64)
		s.FirstPassPct = pct(firstPass, passes)
	}
	return rows.Err()
}

// RunDuration holds duration stats for completed runs of one project.
type RunDuration struct {
	Project string  `json:"project"`
	Count   int     `json:"count"`
	Avg     float64 `json:"avg_minutes"`
	P50     float64 `json:"p50_minutes"`
	P95     float64 `json:"p95_minutes"`
}

// timestamp formats to try when parsing timestamps from the database
var timestampFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, f := range timestampFormats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}

// QueryRunDurations pairs each run_finished event with the most recent
// prior run_started for the same project and issue, and aggregates the
// elapsed minutes per project.
func QueryRunDurations(database DB, since string) ([]RunDuration, error) {
	query := `
		SELECT e1.project, e1.timestamp as end_ts,
			(SELECT MAX(e2.timestamp) FROM run_events e2
			 WHERE e2.project = e1.project
			 AND e2.issue = e1.issue
			 AND e2.event = 'run_started'
			 AND e2.id < e1.id) as start_ts
		FROM run_events e1
		WHERE e1.event = 'run_finished'`

	var args []any
	if since != "" {
		query += ` AND e1.timestamp >= ?`
		args = append(args, since)
	}

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query run durations: %w", err)
	}
	defer rows.Close()

	durations := make(map[string][]float64)
	for rows.Next() {
		var project, endTS string
		var startTS sql.NullString
		if err := rows.Scan(&project, &endTS, &startTS); err != nil {
			return nil, fmt.Errorf("scan run duration: %w", err)
		}
		if !startTS.Valid {
			continue
		}
		start, err := parseTimestamp(startTS.String)
		if err != nil {
			continue
		}
		end, err := parseTimestamp(endTS)
		if err != nil {
			continue
		}
		minutes := end.Sub(start).Minutes()
		if minutes > 0 {
			durations[project] = append(durations[project], minutes)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []RunDuration
	for project, d := range durations {
		sort.Float64s(d)
		results = append(results, RunDuration{
			Project: project,
			Count:   len(d),
			Avg:     avg(d),
			P50:     percentile(d, 50),
			P95:     percentile(d, 95),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Project < results[j].Project
	})
	return results, nil
}

func avg(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return round1(sum / float64(len(vals)))
}

// percentile uses nearest-rank on a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return round1(sorted[rank-1])
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(n) / float64(total) * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
