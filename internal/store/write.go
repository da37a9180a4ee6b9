package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/orbitsplat/internal/ir"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run is one optimization run.
type Run struct {
	ID         string
	Seq        int64
	Node       string
	Status     Status
	Params     map[string]any
	ParamsHash string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	ErrorCode  string
	Error      string
}

// Step is one recorded optimization iteration.
type Step struct {
	RunID      string
	Iteration  int
	Loss       float64
	Gaussians  int
	PositionLR float64
	Elapsed    time.Duration
}

// ErrRunNotFound is returned for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// StartRun inserts r with status running. ParamsHash is computed from
// r.Params; any value set by the caller is ignored.
func (s *Store) StartRun(ctx context.Context, r Run) error {
	params, hash, err := marshalParams(r.Params)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, seq, node, status, params, params_hash, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.Seq,
		r.Node,
		string(StatusRunning),
		params,
		hash,
		formatTime(r.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// RecordStep appends one iteration to a run's history. Recording the same
// iteration twice keeps the first record.
func (s *Store) RecordStep(ctx context.Context, st Step) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_steps (run_id, iteration, loss, gaussians, position_lr, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, iteration) DO NOTHING
	`,
		st.RunID,
		st.Iteration,
		st.Loss,
		st.Gaussians,
		st.PositionLR,
		st.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record step: %w", err)
	}
	return nil
}

// FinishRun marks a running run as succeeded, or failed when runErr is
// non-nil. The error code is taken from runErr when it is an *ir.Error.
func (s *Store) FinishRun(ctx context.Context, id string, finishedAt time.Time, runErr error) error {
	status, code, msg := StatusSucceeded, "", ""
	if runErr != nil {
		status, code, msg = StatusFailed, string(ir.CodeOf(runErr)), runErr.Error()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, finished_at = ?, error_code = ?, error = ?
		WHERE id = ? AND status = ?
	`,
		string(status),
		formatTime(finishedAt),
		code,
		msg,
		id,
		string(StatusRunning),
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		if _, err := s.ReadRun(ctx, id); errors.Is(err, ErrRunNotFound) {
			return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
		}
		return fmt.Errorf("finish run %s: already finished", id)
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r        Run
		status   string
		params   string
		started  string
		finished sql.NullString
	)
	err := sc.Scan(&r.ID, &r.Seq, &r.Node, &status, &params, &r.ParamsHash, &started, &finished, &r.ErrorCode, &r.Error)
	if err != nil {
		return Run{}, err
	}
	r.Status = Status(status)
	if r.Params, err = unmarshalParams(params); err != nil {
		return Run{}, err
	}
	if r.StartedAt, err = parseTime(started); err != nil {
		return Run{}, err
	}
	if finished.Valid {
		if r.FinishedAt, err = parseTime(finished.String); err != nil {
			return Run{}, err
		}
	}
	return r, nil
}
