package postgres

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS flow_runs (
    id           TEXT PRIMARY KEY,
    workspace_id TEXT NOT NULL,
    dataset      TEXT NOT NULL,
    status       TEXT NOT NULL,
    started_at   TIMESTAMPTZ NOT NULL,
    finished_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS flow_run_chains (
    run_id      TEXT NOT NULL REFERENCES flow_runs(id) ON DELETE CASCADE,
    position    INT  NOT NULL,
    chain       TEXT NOT NULL,
    status      TEXT NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    payload     JSONB,
    duration_ms BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, chain)
);

CREATE INDEX IF NOT EXISTS idx_flow_runs_workspace ON flow_runs(workspace_id, started_at DESC);
`

// CreateSchema creates the flow_runs and flow_run_chains tables if they don't exist.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

// DropSchema drops the run history tables.
func (s *PGStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS flow_run_chains, flow_runs CASCADE;`)
	return err
}
