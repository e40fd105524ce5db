package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "SIP-Compose/internal/errors"
	"SIP-Compose/pkg/proof"
)

// MySQLStore persists generation jobs in MySQL.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore connects to MySQL and ensures the schema exists.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN cannot be empty")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "connect to MySQL")
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "ping MySQL")
	}
	store := &MySQLStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS generation_jobs (
        id VARCHAR(64) PRIMARY KEY,
        circuit_id VARCHAR(255) NOT NULL,
        system VARCHAR(32) DEFAULT '',
        public_inputs TEXT,
        private_inputs TEXT,
        status VARCHAR(32) NOT NULL,
        attempts INT NOT NULL DEFAULT 0,
        max_retries INT NOT NULL DEFAULT 3,
        last_error TEXT,
        error_code VARCHAR(64) DEFAULT '',
        result TEXT,
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_job_status (status),
        INDEX idx_job_updated (updated_at)
)`
	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "initialize generation_jobs table")
	}
	return nil
}

// Create implements Store.
func (s *MySQLStore) Create(ctx context.Context, job *GenerationJob) error {
	if job == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "job cannot be nil")
	}
	if strings.TrimSpace(job.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "job id cannot be empty")
	}
	now := time.Now().Unix()
	job.CreatedAt = now
	job.UpdatedAt = now

	publicValue, err := marshalInputs(job.PublicInputs)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "encode public inputs")
	}
	privateValue, err := marshalInputs(job.PrivateInputs)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "encode private inputs")
	}

	const stmt = `INSERT INTO generation_jobs
        (id, circuit_id, system, public_inputs, private_inputs, status, attempts, max_retries, last_error, error_code, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', '', ?, ?)`
	_, err = s.db.ExecContext(ctx, stmt,
		job.ID,
		job.CircuitID,
		string(job.System),
		publicValue,
		privateValue,
		job.Status,
		job.Attempts,
		job.MaxRetries,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrJobConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "insert job")
	}
	return nil
}

const selectColumns = `id, circuit_id, system, public_inputs, private_inputs, status, attempts, max_retries,
        last_error, error_code, result, created_at, updated_at`

// Get implements Store.
func (s *MySQLStore) Get(ctx context.Context, id string) (*GenerationJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM generation_jobs WHERE id = ?`, id)
	job, err := scanJob(row.Scan)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// Claim implements Store. The pending-to-running transition and the attempt
// budget are enforced in one guarded UPDATE.
func (s *MySQLStore) Claim(ctx context.Context, id string) (*GenerationJob, error) {
	const updateStmt = `UPDATE generation_jobs SET status = ?, attempts = attempts + 1, updated_at = ?, last_error = '', error_code = ''
        WHERE id = ? AND status IN (?, ?) AND attempts < max_retries`
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, updateStmt,
		StatusRunning,
		now,
		id,
		StatusPending,
		StatusFailed,
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "claim job")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "read affected rows")
	}
	if affected == 0 {
		job, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		switch job.Status {
		case StatusSucceeded:
			return job, ErrJobCompleted
		case StatusRunning:
			return job, ErrJobConflict
		default:
			if job.Attempts >= job.MaxRetries {
				return job, ErrJobExhausted
			}
			return job, ErrJobConflict
		}
	}
	return s.Get(ctx, id)
}

// MarkSucceeded implements Store.
func (s *MySQLStore) MarkSucceeded(ctx context.Context, id string, result proof.GenerationResult) error {
	resultValue, err := json.Marshal(result)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "encode generation result")
	}
	const stmt = `UPDATE generation_jobs SET status = ?, result = ?, updated_at = ?, last_error = '', error_code = '' WHERE id = ?`
	res, err := s.db.ExecContext(ctx, stmt, StatusSucceeded, string(resultValue), time.Now().Unix(), id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "mark job succeeded")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrJobNotFound
	}
	return nil
}

// MarkFailed implements Store. Non-terminal failures return to pending so a
// requeued id can be claimed again.
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error {
	status := StatusFailed
	if !terminal {
		status = StatusPending
	}
	const stmt = `UPDATE generation_jobs SET status = ?, last_error = ?, error_code = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, stmt, status, lastError, string(code), time.Now().Unix(), id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "mark job failed")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrJobNotFound
	}
	return nil
}

// List implements Store, newest updates first.
func (s *MySQLStore) List(ctx context.Context, limit int) ([]*GenerationJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM generation_jobs ORDER BY updated_at DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "list jobs")
	}
	defer rows.Close()
	var jobs []*GenerationJob
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "iterate jobs")
	}
	return jobs, nil
}

// Stats implements Store.
func (s *MySQLStore) Stats(ctx context.Context) (JobStats, error) {
	const stmt = `SELECT status, COUNT(*), COALESCE(MIN(updated_at), 0), COALESCE(MAX(updated_at), 0)
        FROM generation_jobs GROUP BY status`
	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return JobStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "query job stats")
	}
	defer rows.Close()
	stats := JobStats{}
	for rows.Next() {
		var status Status
		var count int
		var oldest, newest int64
		if err := rows.Scan(&status, &count, &oldest, &newest); err != nil {
			return JobStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "scan job stats")
		}
		stats.Total += count
		switch status {
		case StatusPending:
			stats.Pending = count
		case StatusRunning:
			stats.Running = count
		case StatusSucceeded:
			stats.Succeeded = count
		case StatusFailed:
			stats.Failed = count
		}
		if stats.OldestAt == 0 || (oldest != 0 && oldest < stats.OldestAt) {
			stats.OldestAt = oldest
		}
		if newest > stats.NewestAt {
			stats.NewestAt = newest
		}
	}
	if err := rows.Err(); err != nil {
		return JobStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "iterate job stats")
	}
	return stats, nil
}

// Close implements Store.
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanJob(scan func(dest ...any) error) (*GenerationJob, error) {
	var job GenerationJob
	var system string
	var publicValue, privateValue, resultValue sql.NullString
	if err := scan(
		&job.ID,
		&job.CircuitID,
		&system,
		&publicValue,
		&privateValue,
		&job.Status,
		&job.Attempts,
		&job.MaxRetries,
		&job.LastError,
		&job.ErrorCode,
		&resultValue,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "scan job")
	}
	job.System = proof.System(system)
	var err error
	if job.PublicInputs, err = unmarshalInputs(publicValue); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "decode public inputs")
	}
	if job.PrivateInputs, err = unmarshalInputs(privateValue); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "decode private inputs")
	}
	if resultValue.Valid && resultValue.String != "" {
		var result proof.GenerationResult
		if err := json.Unmarshal([]byte(resultValue.String), &result); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "decode generation result")
		}
		job.Result = &result
	}
	return &job, nil
}

func marshalInputs(inputs map[string]any) (string, error) {
	if len(inputs) == 0 {
		return "", nil
	}
	encoded, err := json.Marshal(inputs)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func unmarshalInputs(value sql.NullString) (map[string]any, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	var inputs map[string]any
	if err := json.Unmarshal([]byte(value.String), &inputs); err != nil {
		return nil, err
	}
	return inputs, nil
}

var _ Store = (*MySQLStore)(nil)
