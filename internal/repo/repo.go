package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"riskline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const runColumns = `id,template,project_name,seed,detection_enabled,COALESCE(quality_level,''),recombiner,metrics_json,created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (domain.Run, error) {
	var r domain.Run
	var detection int
	var metrics string
	err := row.Scan(&r.ID, &r.Template, &r.ProjectName, &r.Seed, &detection, &r.QualityLevel, &r.Recombiner, &metrics, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return r, ErrNotFound
	}
	if err != nil {
		return r, err
	}
	r.DetectionEnabled = detection != 0
	if err := json.Unmarshal([]byte(metrics), &r.Metrics); err != nil {
		return r, fmt.Errorf("decode metrics for run %s: %w", r.ID, err)
	}
	return r, nil
}

// UpsertRunTx stores a finalized run. Reproduced runs share an id and
// replace the earlier row along with its impacts.
func (r Repo) UpsertRunTx(ctx context.Context, tx *sql.Tx, run domain.Run) error {
	metrics, err := json.Marshal(run.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_impacts WHERE run_id=?`, run.ID); err != nil {
		return fmt.Errorf("clear impacts: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO runs(id,template,project_name,seed,detection_enabled,quality_level,recombiner,metrics_json,created_at)
VALUES (?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET metrics_json=excluded.metrics_json, created_at=excluded.created_at`,
		run.ID, run.Template, run.ProjectName, run.Seed, boolInt(run.DetectionEnabled), nullable(run.QualityLevel), run.Recombiner, string(metrics), run.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r Repo) InsertImpactsTx(ctx context.Context, tx *sql.Tx, runID string, impacts []domain.Impact) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO run_impacts(run_id,seq,issue_id,day,phase,detected,delay_weeks,cost_increase,impact_json) VALUES (?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, imp := range impacts {
		data, err := json.Marshal(imp)
		if err != nil {
			return fmt.Errorf("marshal impact %s: %w", imp.IssueID, err)
		}
		if _, err := stmt.ExecContext(ctx, runID, i, imp.IssueID, imp.Day, imp.Phase, boolInt(imp.Detected), imp.DelayWeeks, imp.CostIncrease, string(data)); err != nil {
			return fmt.Errorf("insert impact %s: %w", imp.IssueID, err)
		}
	}
	return nil
}

func (r Repo) GetRun(ctx context.Context, id string) (domain.Run, error) {
	return scanRun(r.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id=?`, id))
}

// RunFilters narrows ListRuns. Cursor fields page backwards from a run.
type RunFilters struct {
	Template        string
	Detection       *bool
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListRuns(ctx context.Context, f RunFilters) ([]domain.Run, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Template != "" {
		clauses = append(clauses, "template=?")
		args = append(args, f.Template)
	}
	if f.Detection != nil {
		clauses = append(clauses, "detection_enabled=?")
		args = append(args, boolInt(*f.Detection))
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + runColumns + ` FROM runs WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, run)
	}
	return res, rows.Err()
}

// ListImpacts returns a run's impacts in firing order.
func (r Repo) ListImpacts(ctx context.Context, runID string) ([]domain.Impact, error) {
	if _, err := r.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT impact_json FROM run_impacts WHERE run_id=? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Impact
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var imp domain.Impact
		if err := json.Unmarshal([]byte(data), &imp); err != nil {
			return nil, fmt.Errorf("decode impact: %w", err)
		}
		res = append(res, imp)
	}
	return res, rows.Err()
}

// EventFilters narrows event queries.
type EventFilters struct {
	RunID      string
	Type       string
	EntityKind string
	Limit      int
	Cursor     int64
}

// LatestEvents returns events newest first, below the cursor when set.
func (r Repo) LatestEvents(ctx context.Context, f EventFilters) ([]domain.Event, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if f.RunID != "" {
		clauses = append(clauses, "run_id=?")
		args = append(args, f.RunID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.Cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Cursor)
	}
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(run_id,''),entity_kind,COALESCE(entity_id,''),payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`, strings.Join(clauses, " AND "))
	args = append(args, f.Limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.RunID, &e.EntityKind, &e.EntityID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
