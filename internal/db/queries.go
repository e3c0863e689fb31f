package db

import (
	"database/sql"
	"fmt"
)

// RunEvent represents a row in the run_events table.
type RunEvent struct {
	ID        int
	Project   string
	Issue     int
	Event     string
	Step      string
	Attempt   int
	Detail    string
	Timestamp string
}

// LogRunEvent inserts a run event. Attempt 0 means the event is not
// tied to a specific attempt.
func (d *DB) LogRunEvent(project string, issue int, event, step string, attempt int, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO run_events (project, issue, event, step, attempt, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		project, issue, event, step, attempt, detail,
	)
	if err != nil {
		return fmt.Errorf("log run event: %w", err)
	}
	return nil
}

// ListRunEvents returns events in insertion order. An empty project
// matches all projects; issue <= 0 matches all issues.
func (d *DB) ListRunEvents(project string, issue int, limit int) ([]RunEvent, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT id, project, issue, event, step, attempt, detail, timestamp
	          FROM run_events WHERE 1=1`
	var args []any
	if project != "" {
		query += " AND project = ?"
		args = append(args, project)
	}
	if issue > 0 {
		query += " AND issue = ?"
		args = append(args, issue)
	}
	query += " ORDER BY id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list run events: %w", err)
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var e RunEvent
		var step, detail sql.NullString
		var attempt sql.NullInt64
		if err := rows.Scan(&e.ID, &e.Project, &e.Issue, &e.Event, &step, &attempt, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		e.Step = step.String
		e.Detail = detail.String
		e.Attempt = int(attempt.Int64)
		events = append(events, e)
	}
	return events, rows.Err()
}
