package postgres

import (
	"context"
	"fmt"

	"github.com/gyaneshwarpardhi/flowcanvas/internal/store"
)

var _ store.Store = (*PGStore)(nil)

// SaveRun writes a run and its chain records in one transaction,
// replacing any previous copy of the run.
func (s *PGStore) SaveRun(ctx context.Context, run *store.Run) error {
	if run.ID == "" {
		return fmt.Errorf("store: run id is required")
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM flow_runs WHERE id = $1`, run.ID); err != nil {
		return fmt.Errorf("store: delete run: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO flow_runs (id, workspace_id, dataset, status, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.WorkspaceID, run.Dataset, string(run.Status), run.StartedAt, run.FinishedAt,
	); err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}

	for i, c := range run.Chains {
		var payload []byte
		if len(c.Payload) > 0 {
			payload = c.Payload
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO flow_run_chains (run_id, position, chain, status, error, payload, duration_ms)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			run.ID, i, c.Chain, c.Status, c.Error, payload, c.DurationMs,
		); err != nil {
			return fmt.Errorf("store: insert chain %s: %w", c.Chain, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// GetRun fetches a run and its chains. Returns store.ErrRunNotFound if missing.
func (s *PGStore) GetRun(ctx context.Context, id string) (*store.Run, error) {
	var (
		r      store.Run
		status string
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, workspace_id, dataset, status, started_at, finished_at FROM flow_runs WHERE id = $1`, id,
	).Scan(&r.ID, &r.WorkspaceID, &r.Dataset, &status, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %s", store.ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("store: get run: %w", err)
	}
	r.Status = store.RunStatus(status)

	chains, err := s.listChains(ctx, id)
	if err != nil {
		return nil, err
	}
	r.Chains = chains
	return &r, nil
}

// ListRuns returns the workspace's runs, newest first.
func (s *PGStore) ListRuns(ctx context.Context, workspaceID string) ([]*store.Run, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, workspace_id, dataset, status, started_at, finished_at
		 FROM flow_runs WHERE workspace_id = $1 ORDER BY started_at DESC, id DESC`, workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*store.Run, 0)
	for rows.Next() {
		var (
			r      store.Run
			status string
		)
		if err := rows.Scan(&r.ID, &r.WorkspaceID, &r.Dataset, &status, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		r.Status = store.RunStatus(status)
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}

	for _, r := range runs {
		chains, err := s.listChains(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		r.Chains = chains
	}
	return runs, nil
}

func (s *PGStore) listChains(ctx context.Context, runID string) ([]store.ChainRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT chain, status, error, payload, duration_ms
		 FROM flow_run_chains WHERE run_id = $1 ORDER BY position`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list chains: %w", err)
	}
	defer rows.Close()

	chains := make([]store.ChainRecord, 0)
	for rows.Next() {
		var (
			c       store.ChainRecord
			payload []byte
		)
		if err := rows.Scan(&c.Chain, &c.Status, &c.Error, &payload, &c.DurationMs); err != nil {
			return nil, fmt.Errorf("store: scan chain: %w", err)
		}
		if len(payload) > 0 {
			c.Payload = payload
		}
		chains = append(chains, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list chains: %w", err)
	}
	return chains, nil
}
