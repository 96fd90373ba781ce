package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/gamesession-backend/internal/apperror"
	"github.com/rocketscienceinc/gamesession-backend/internal/entity"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

type sqliteSession struct {
	conn *sql.DB
}

func NewSQLiteSessionRepository(conn *sql.DB) SessionRepository {
	return &sqliteSession{
		conn: conn,
	}
}

func (that *sqliteSession) Create(ctx context.Context, session *entity.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("could not marshal session: %w", err)
	}

	query := `INSERT INTO sessions (id, revision, data) VALUES (?, ?, ?)`

	_, err = that.conn.ExecContext(ctx, query, session.ID, session.Revision, data)
	if isUniqueViolation(err) {
		return apperror.ErrSessionExists
	}
	if err != nil {
		return fmt.Errorf("can't create session: %w", err)
	}

	return nil
}

func (that *sqliteSession) GetByID(ctx context.Context, id string) (*entity.Session, error) {
	query := `SELECT data FROM sessions WHERE id = ?`

	var data []byte

	err := that.conn.QueryRowContext(ctx, query, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("can't find session: %w", err)
	}

	var session entity.Session
	if err = json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

func (that *sqliteSession) Save(ctx context.Context, session *entity.Session, expectedRevision int64) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("could not marshal session: %w", err)
	}

	query := `UPDATE sessions SET revision = ?, data = ? WHERE id = ? AND revision = ?`

	result, err := that.conn.ExecContext(ctx, query, session.Revision, data, session.ID, expectedRevision)
	if err != nil {
		return fmt.Errorf("can't save session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("can't save session: %w", err)
	}

	if affected == 0 {
		// tell a lost race apart from a missing row
		if _, err = that.GetByID(ctx, session.ID); err != nil {
			return err
		}
		return apperror.ErrConflict
	}

	return nil
}

func (that *sqliteSession) DeleteByID(ctx context.Context, id string) error {
	query := `DELETE FROM sessions WHERE id = ?`

	result, err := that.conn.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("can't delete session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("can't delete session: %w", err)
	}

	if affected == 0 {
		return apperror.ErrSessionNotFound
	}

	return nil
}

func (that *sqliteSession) ListIDs(ctx context.Context) ([]string, error) {
	query := `SELECT id FROM sessions ORDER BY id`

	rows, err := that.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("can't list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("can't scan session id: %w", err)
		}
		ids = append(ids, id)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("can't list sessions: %w", err)
	}

	return ids, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	switch sqliteErr.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
		return true
	default:
		return false
	}
}
