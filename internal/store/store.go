// Package store persists users, conversations, skills and registered faces
// in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/voxden/voxd/internal/domain"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		full_name TEXT,
		hashed_password TEXT NOT NULL,
		preferences TEXT NOT NULL DEFAULT '{}',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_login DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		intent TEXT,
		confidence INTEGER,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS skills (
		id TEXT PRIMARY KEY,
		skill_name TEXT NOT NULL UNIQUE,
		skill_version TEXT NOT NULL DEFAULT '1.0.0',
		description TEXT,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		is_installed BOOLEAN NOT NULL DEFAULT TRUE,
		usage_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS faces (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		label TEXT,
		embedding BLOB,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_user_session
		ON conversations(user_id, session_id);
	CREATE INDEX IF NOT EXISTS idx_faces_user ON faces(user_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- users ---

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	prefs, err := json.Marshal(u.Preferences)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, full_name, hashed_password, preferences, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(u.ID), u.Username, u.Email, u.FullName, u.HashedPassword, string(prefs), u.IsActive)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) UserByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, email, full_name, hashed_password, preferences, is_active, last_login, created_at
		 FROM users WHERE id = ?`, string(id)))
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, email, full_name, hashed_password, preferences, is_active, last_login, created_at
		 FROM users WHERE username = ?`, username))
}

func (s *Store) scanUser(row *sql.Row) (*domain.User, error) {
	var (
		u         domain.User
		id        string
		fullName  sql.NullString
		prefs     string
		lastLogin sql.NullTime
	)
	err := row.Scan(&id, &u.Username, &u.Email, &fullName, &u.HashedPassword,
		&prefs, &u.IsActive, &lastLogin, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.ID = domain.UserID(id)
	u.FullName = fullName.String
	if lastLogin.Valid {
		u.LastLogin = &lastLogin.Time
	}
	if err := json.Unmarshal([]byte(prefs), &u.Preferences); err != nil {
		u.Preferences = map[string]any{}
	}
	return &u, nil
}

func (s *Store) TouchLastLogin(ctx context.Context, id domain.UserID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login = ? WHERE id = ?`, time.Now().UTC(), string(id))
	return err
}

// --- conversations ---

// SaveExchange records one user/assistant pair in a single transaction.
func (s *Store) SaveExchange(ctx context.Context, userTurn, assistantTurn *domain.ConversationTurn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const q = `INSERT INTO conversations (user_id, session_id, role, content, intent, confidence)
	           VALUES (?, ?, ?, ?, ?, ?)`
	for _, turn := range []*domain.ConversationTurn{userTurn, assistantTurn} {
		if _, err := tx.ExecContext(ctx, q,
			string(turn.UserID), turn.SessionID, turn.Role, turn.Content, turn.Intent, turn.Confidence); err != nil {
			return fmt.Errorf("insert conversation turn: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) ConversationHistory(ctx context.Context, userID domain.UserID, sessionID string, limit int) ([]domain.ConversationTurn, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, session_id, role, content, COALESCE(intent, ''), COALESCE(confidence, 0), created_at
		 FROM conversations WHERE user_id = ? AND session_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		string(userID), sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var turns []domain.ConversationTurn
	for rows.Next() {
		var (
			t   domain.ConversationTurn
			uid string
		)
		if err := rows.Scan(&t.ID, &uid, &t.SessionID, &t.Role, &t.Content, &t.Intent, &t.Confidence, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation turn: %w", err)
		}
		t.UserID = domain.UserID(uid)
		turns = append(turns, t)
	}
	// Oldest first for the caller.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, rows.Err()
}

func (s *Store) DeleteConversation(ctx context.Context, userID domain.UserID, sessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE user_id = ? AND session_id = ?`,
		string(userID), sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete conversation: %w", err)
	}
	return res.RowsAffected()
}

// --- skills ---

func (s *Store) CreateSkill(ctx context.Context, sk *domain.Skill) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO skills (id, skill_name, skill_version, description, is_active, is_installed)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sk.ID, sk.Name, sk.Version, sk.Description, sk.IsActive, sk.IsInstalled)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert skill: %w", err)
	}
	return nil
}

func (s *Store) ListSkills(ctx context.Context) ([]domain.Skill, error) {
	return s.querySkills(ctx,
		`SELECT id, skill_name, skill_version, COALESCE(description, ''), is_active, is_installed, usage_count, created_at
		 FROM skills ORDER BY skill_name`)
}

func (s *Store) ActiveSkills(ctx context.Context) ([]domain.Skill, error) {
	return s.querySkills(ctx,
		`SELECT id, skill_name, skill_version, COALESCE(description, ''), is_active, is_installed, usage_count, created_at
		 FROM skills WHERE is_active ORDER BY skill_name`)
}

func (s *Store) querySkills(ctx context.Context, query string, args ...any) ([]domain.Skill, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query skills: %w", err)
	}
	defer rows.Close()

	var skills []domain.Skill
	for rows.Next() {
		var sk domain.Skill
		if err := rows.Scan(&sk.ID, &sk.Name, &sk.Version, &sk.Description,
			&sk.IsActive, &sk.IsInstalled, &sk.UsageCount, &sk.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan skill: %w", err)
		}
		skills = append(skills, sk)
	}
	return skills, rows.Err()
}

func (s *Store) SkillByID(ctx context.Context, id string) (*domain.Skill, error) {
	var sk domain.Skill
	err := s.db.QueryRowContext(ctx,
		`SELECT id, skill_name, skill_version, COALESCE(description, ''), is_active, is_installed, usage_count, created_at
		 FROM skills WHERE id = ?`, id).
		Scan(&sk.ID, &sk.Name, &sk.Version, &sk.Description, &sk.IsActive, &sk.IsInstalled, &sk.UsageCount, &sk.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan skill: %w", err)
	}
	return &sk, nil
}

func (s *Store) SetSkillActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE skills SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("update skill: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) BumpSkillUsage(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE skills SET usage_count = usage_count + 1 WHERE id = ?`, id)
	return err
}

// --- faces ---

func (s *Store) SaveFace(ctx context.Context, f *domain.Face) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO faces (user_id, label, embedding) VALUES (?, ?, ?)`,
		string(f.UserID), f.Label, f.Embedding)
	if err != nil {
		return fmt.Errorf("insert face: %w", err)
	}
	return nil
}

func (s *Store) FaceCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM faces`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count faces: %w", err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
