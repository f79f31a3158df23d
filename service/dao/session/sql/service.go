package sql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/viant/revflow/model"
	"github.com/viant/revflow/model/types"
	"github.com/viant/revflow/service/dao"
	"github.com/viant/revflow/service/dao/criteria"
	"github.com/viant/revflow/service/dao/session"
	_ "modernc.org/sqlite"
)

const (
	// DriverPostgres is the lib/pq driver name
	DriverPostgres = "postgres"
	// DriverSQLite is the modernc.org/sqlite driver name
	DriverSQLite = "sqlite"
)

const table = "review_sessions"

// Schema creates the session table; the same statement runs on postgres and sqlite.
const Schema = `CREATE TABLE IF NOT EXISTS ` + table + ` (
	id          VARCHAR(255) PRIMARY KEY,
	workflow_id VARCHAR(255) NOT NULL,
	document_id VARCHAR(255) NOT NULL,
	status      VARCHAR(64)  NOT NULL,
	version     BIGINT       NOT NULL,
	document    TEXT         NOT NULL
)`

// Service stores sessions as JSON documents with a version column guarding updates
type Service struct {
	db *sql.DB
}

var _ session.Store = (*Service)(nil)

// Open opens driver/dsn and ensures the schema exists.
func Open(ctx context.Context, driver, dsn string) (*Service, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", driver, err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect %s store: %w", driver, err)
	}
	ret := New(db)
	if err = ret.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return ret, nil
}

// EnsureSchema creates the session table when missing.
func (s *Service) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create %s: %w", table, err)
	}
	return nil
}

// Save inserts a new session (Version 0) or updates the row at aSession.Version.
func (s *Service) Save(ctx context.Context, aSession *model.ReviewSession) error {
	if err := session.Validate(aSession); err != nil {
		return err
	}
	expected := aSession.Version
	aSession.Version = expected + 1
	data, err := json.Marshal(aSession)
	if err != nil {
		aSession.Version = expected
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	var result sql.Result
	if expected == 0 {
		result, err = s.db.ExecContext(ctx, `INSERT INTO `+table+` (id, workflow_id, document_id, status, version, document)
VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING`,
			aSession.ID, aSession.WorkflowID, aSession.DocumentID, string(aSession.Status), aSession.Version, string(data))
	} else {
		result, err = s.db.ExecContext(ctx, `UPDATE `+table+` SET status = $1, version = $2, document = $3
WHERE id = $4 AND version = $5`,
			string(aSession.Status), aSession.Version, string(data), aSession.ID, expected)
	}
	if err != nil {
		aSession.Version = expected
		return fmt.Errorf("failed to save session %s: %w", aSession.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		aSession.Version = expected
		return err
	}
	if affected == 1 {
		return nil
	}
	aSession.Version = expected
	actual, err := s.version(ctx, aSession.ID)
	if err != nil {
		return err
	}
	return &types.ConflictError{SessionID: aSession.ID, Expected: expected, Actual: actual}
}

func (s *Service) version(ctx context.Context, id string) (int64, error) {
	var version int64
	err := s.db.QueryRowContext(ctx, `SELECT version FROM `+table+` WHERE id = $1`, id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return version, err
}

// Load returns the session or dao.ErrNotFound.
func (s *Service) Load(ctx context.Context, id string) (*model.ReviewSession, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM `+table+` WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dao.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return decode(data)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return dao.ErrNotFound
	}
	return nil
}

// List pushes status, workflow and document filters into the query and
// applies the remaining ones to decoded sessions.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*model.ReviewSession, error) {
	query, args := listQuery(parameters)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()
	var sessions []*model.ReviewSession
	for rows.Next() {
		var data string
		if err = rows.Scan(&data); err != nil {
			return nil, err
		}
		aSession, err := decode(data)
		if err != nil {
			return nil, err
		}
		if criteria.MatchSession(aSession, parameters) {
			sessions = append(sessions, aSession)
		}
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	session.Sort(sessions)
	return sessions, nil
}

var columns = map[string]string{
	dao.ParamStatus:     "status",
	dao.ParamWorkflowID: "workflow_id",
	dao.ParamDocumentID: "document_id",
}

func listQuery(parameters []*dao.Parameter) (string, []interface{}) {
	query := `SELECT document FROM ` + table
	var conditions []string
	var args []interface{}
	for _, parameter := range parameters {
		if parameter == nil {
			continue
		}
		column, ok := columns[parameter.Name]
		if !ok {
			continue
		}
		values := parameter.Values()
		if len(values) == 0 {
			continue
		}
		placeholders := make([]string, len(values))
		for i, value := range values {
			args = append(args, value)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, column+" IN ("+strings.Join(placeholders, ", ")+")")
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	return query, args
}

func decode(data string) (*model.ReviewSession, error) {
	aSession := &model.ReviewSession{}
	if err := json.Unmarshal([]byte(data), aSession); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return aSession, nil
}

// Close releases the database handle.
func (s *Service) Close() error {
	return s.db.Close()
}

// New wraps an open database handle.
func New(db *sql.DB) *Service {
	return &Service{db: db}
}
