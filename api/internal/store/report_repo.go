package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"test-analyzer/api/internal/analyze"
)

// ReportRepo persists mistake reports so the practice generator can pull a
// student's weak areas without re-running the analysis.
type ReportRepo struct{ DB *sql.DB }

func NewReportRepo(db *sql.DB) *ReportRepo { return &ReportRepo{DB: db} }

type ReportRow struct {
	ID        int64
	CreatedAt time.Time
	TestID    string
	Report    analyze.Report
}

func (r *ReportRepo) Save(ctx context.Context, testID string, report analyze.Report) error {
	js, _ := json.Marshal(report)
	const q = `
insert into mistake_reports (test_id, report_json)
values ($1,$2)
on conflict (test_id) do update
set report_json = excluded.report_json,
    created_at = now()`
	_, err := r.DB.ExecContext(ctx, q, testID, js)
	return err
}

func (r *ReportRepo) FindByTestID(ctx context.Context, testID string) (*ReportRow, error) {
	const q = `
select id, created_at, test_id, report_json
from mistake_reports
where test_id = $1`
	row := r.DB.QueryRowContext(ctx, q, testID)

	var (
		id  int64
		ts  time.Time
		tid string
		js  []byte
	)
	if err := row.Scan(&id, &ts, &tid, &js); err != nil {
		return nil, err
	}
	var rep analyze.Report
	if err := json.Unmarshal(js, &rep); err != nil {
		return nil, ErrNotFound
	}
	return &ReportRow{ID: id, CreatedAt: ts, TestID: tid, Report: rep}, nil
}

// WeakAreasByTestID is a convenience for the practice flow.
func (r *ReportRepo) WeakAreasByTestID(ctx context.Context, testID string) ([]string, error) {
	row, err := r.FindByTestID(ctx, testID)
	if err != nil {
		return nil, err
	}
	return row.Report.WeakAreas(), nil
}
