package store

import (
	"context"
	"database/sql"
)

// EnsureSchema creates the tables on first boot. Idempotent.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	const q = `
create table if not exists extractions (
    id bigserial primary key,
    created_at timestamptz not null default now(),
    test_id text not null,
    image_hash text not null unique,
    method text,
    raw_text text,
    result_json jsonb not null,
    confidence double precision
);
create index if not exists extractions_test_id_idx on extractions (test_id);

create table if not exists mistake_reports (
    id bigserial primary key,
    created_at timestamptz not null default now(),
    test_id text not null unique,
    report_json jsonb not null
);`
	_, err := db.ExecContext(ctx, q)
	return err
}
