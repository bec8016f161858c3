package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"test-analyzer/api/internal/extract"
)

var ErrNotFound = sql.ErrNoRows

// ExtractionRepo caches pipeline output keyed by image hash so a re-upload
// of the same photo never re-runs OCR and the oracle cascade.
type ExtractionRepo struct{ DB *sql.DB }

func NewExtractionRepo(db *sql.DB) *ExtractionRepo { return &ExtractionRepo{DB: db} }

type ExtractionRow struct {
	ID         int64
	CreatedAt  time.Time
	TestID     string
	ImageHash  string
	Method     string
	RawText    string
	QA         extract.QA
	Confidence float64
}

// FindByHash returns the freshest cached extraction for the image. If
// maxAge > 0 a stale row counts as not found.
func (r *ExtractionRepo) FindByHash(ctx context.Context, imageHash string, maxAge time.Duration) (*ExtractionRow, error) {
	const q = `
select id, created_at, test_id, image_hash,
       coalesce(method,'') as method,
       coalesce(raw_text,'') as raw_text,
       result_json,
       coalesce(confidence,0) as confidence
from extractions
where image_hash = $1
order by created_at desc
limit 1`
	row := r.DB.QueryRowContext(ctx, q, imageHash)

	var (
		id         int64
		ts         time.Time
		testID     string
		hash       string
		method     string
		rawText    string
		js         []byte
		confidence float64
	)
	if err := row.Scan(&id, &ts, &testID, &hash, &method, &rawText, &js, &confidence); err != nil {
		return nil, err
	}
	if maxAge > 0 && time.Since(ts) > maxAge {
		return nil, ErrNotFound
	}
	var qa extract.QA
	if err := json.Unmarshal(js, &qa); err != nil {
		return nil, ErrNotFound
	}
	return &ExtractionRow{
		ID:         id,
		CreatedAt:  ts,
		TestID:     testID,
		ImageHash:  hash,
		Method:     method,
		RawText:    rawText,
		QA:         qa,
		Confidence: confidence,
	}, nil
}

// Upsert stores the extraction for an image. A repeat upload of the same
// image overwrites every field and keeps the latest test id.
func (r *ExtractionRepo) Upsert(
	ctx context.Context,
	testID, imageHash, method, rawText string,
	qa extract.QA,
	confidence float64,
) error {
	js, _ := json.Marshal(qa)
	const q = `
insert into extractions (test_id, image_hash, method, raw_text, result_json, confidence)
values ($1,$2,$3,$4,$5,$6)
on conflict (image_hash) do update
set test_id = excluded.test_id,
    method = excluded.method,
    raw_text = excluded.raw_text,
    result_json = excluded.result_json,
    confidence = excluded.confidence,
    created_at = now()`
	_, err := r.DB.ExecContext(ctx, q, testID, imageHash, method, rawText, js, confidence)
	return err
}

// FindByTestID looks up an extraction by the public test id handed to the
// client at upload time.
func (r *ExtractionRepo) FindByTestID(ctx context.Context, testID string) (*ExtractionRow, error) {
	const q = `
select id, created_at, test_id, image_hash,
       coalesce(method,'') as method,
       coalesce(raw_text,'') as raw_text,
       result_json,
       coalesce(confidence,0) as confidence
from extractions
where test_id = $1
order by created_at desc
limit 1`
	row := r.DB.QueryRowContext(ctx, q, testID)

	var (
		id         int64
		ts         time.Time
		tid        string
		hash       string
		method     string
		rawText    string
		js         []byte
		confidence float64
	)
	if err := row.Scan(&id, &ts, &tid, &hash, &method, &rawText, &js, &confidence); err != nil {
		return nil, err
	}
	var qa extract.QA
	if err := json.Unmarshal(js, &qa); err != nil {
		return nil, ErrNotFound
	}
	return &ExtractionRow{
		ID:         id,
		CreatedAt:  ts,
		TestID:     tid,
		ImageHash:  hash,
		Method:     method,
		RawText:    rawText,
		QA:         qa,
		Confidence: confidence,
	}, nil
}

// PurgeOlderThan drops old cache rows so the table stays bounded.
func (r *ExtractionRepo) PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be > 0")
	}
	cutoff := time.Now().Add(-olderThan)
	const q = `delete from extractions where created_at < $1`
	res, err := r.DB.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	aff, _ := res.RowsAffected()
	return aff, nil
}
