package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store persists projects, videos, agents, profiles and canvas snapshots in
// SQLite. Every method is scoped to a user; records owned by someone else are
// reported as ErrNotFound.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore initializes or connects to the database and applies migrations
func OpenStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{db: db, path: dbPath}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}

	if version > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, schemaVersion)
	}
	return nil
}

// Profiles

// GetProfile returns the user's profile
func (s *Store) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, channel_name, content_type, niche, links_json, tone, target_audience, context, updated_at
		 FROM profiles WHERE user_id = ?`, userID)

	var p Profile
	var links, updated string
	err := row.Scan(&p.UserID, &p.ChannelName, &p.ContentType, &p.Niche, &links, &p.Tone, &p.TargetAudience, &p.Context, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Wrap(ErrNotFound, "profile", fmt.Errorf("no profile for user %s", userID))
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	if err := unmarshalJSONColumn(links, &p.Links); err != nil {
		return nil, err
	}
	p.UpdatedAt = parseTime(updated)
	return &p, nil
}

// UpsertProfile creates or replaces the user's profile
func (s *Store) UpsertProfile(ctx context.Context, p *Profile) error {
	if strings.TrimSpace(p.ChannelName) == "" {
		return Wrap(ErrValidation, "save profile", fmt.Errorf("channel name is required"))
	}
	links, err := marshalJSONColumn(p.Links)
	if err != nil {
		return err
	}
	p.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, channel_name, content_type, niche, links_json, tone, target_audience, context, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   channel_name = excluded.channel_name,
		   content_type = excluded.content_type,
		   niche = excluded.niche,
		   links_json = excluded.links_json,
		   tone = excluded.tone,
		   target_audience = excluded.target_audience,
		   context = excluded.context,
		   updated_at = excluded.updated_at`,
		p.UserID, p.ChannelName, p.ContentType, p.Niche, links, p.Tone, p.TargetAudience, p.Context, formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// Projects

// CreateProject inserts a new draft project
func (s *Store) CreateProject(ctx context.Context, userID, title, description string) (*Project, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, Wrap(ErrValidation, "create project", fmt.Errorf("title is required"))
	}

	now := time.Now().UTC()
	p := &Project{
		ID:          uuid.New().String(),
		UserID:      userID,
		Title:       title,
		Description: strings.TrimSpace(description),
		Status:      ProjectDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, user_id, title, description, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Title, p.Description, p.Status, formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return p, nil
}

const projectColumns = `id, user_id, title, description, thumbnail_key, status, created_at, updated_at`

// GetProject fetches a project owned by userID
func (s *Store) GetProject(ctx context.Context, userID, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ? AND user_id = ?`, id, userID)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Wrap(ErrNotFound, "project", fmt.Errorf("project %s", id))
	}
	return p, err
}

// ListProjects returns the user's projects, most recently updated first
func (s *Store) ListProjects(ctx context.Context, userID string) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// UpdateProject writes the mutable project fields
func (s *Store) UpdateProject(ctx context.Context, p *Project) error {
	if strings.TrimSpace(p.Title) == "" {
		return Wrap(ErrValidation, "update project", fmt.Errorf("title is required"))
	}
	if !p.Status.Valid() {
		return Wrap(ErrValidation, "update project", fmt.Errorf("unknown status %q", p.Status))
	}
	p.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET title = ?, description = ?, thumbnail_key = ?, status = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		p.Title, p.Description, p.ThumbnailKey, p.Status, formatTime(p.UpdatedAt), p.ID, p.UserID)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return expectOneRow(res, "project", p.ID)
}

// DeleteProject removes a project with its videos, agents and canvas. It
// returns the storage keys that belonged to the project so the caller can
// delete the files.
func (s *Store) DeleteProject(ctx context.Context, userID, id string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var thumbnail string
	err = tx.QueryRowContext(ctx, `SELECT thumbnail_key FROM projects WHERE id = ? AND user_id = ?`, id, userID).Scan(&thumbnail)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Wrap(ErrNotFound, "delete project", fmt.Errorf("project %s", id))
	}
	if err != nil {
		return nil, fmt.Errorf("lookup project: %w", err)
	}

	keys, err := collectKeys(ctx, tx,
		`SELECT storage_key, captions_key FROM videos WHERE project_id = ?
		 UNION ALL
		 SELECT thumbnail_key, '' FROM agents WHERE project_id = ?`, id, id)
	if err != nil {
		return nil, err
	}
	if thumbnail != "" {
		keys = append(keys, thumbnail)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete project: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return keys, nil
}

// TouchProject bumps updated_at so the project sorts first
func (s *Store) TouchProject(ctx context.Context, userID, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE projects SET updated_at = ? WHERE id = ? AND user_id = ?`,
		formatTime(time.Now().UTC()), id, userID)
	if err != nil {
		return fmt.Errorf("touch project: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*Project, error) {
	var p Project
	var status, created, updated string
	if err := row.Scan(&p.ID, &p.UserID, &p.Title, &p.Description, &p.ThumbnailKey, &status, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan project: %w", err)
	}
	p.Status = ProjectStatus(status)
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return &p, nil
}

func collectKeys(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query storage keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			return nil, fmt.Errorf("scan storage key: %w", err)
		}
		for _, k := range []string{a, b} {
			if k != "" {
				keys = append(keys, k)
			}
		}
	}
	return keys, rows.Err()
}

func expectOneRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return Wrap(ErrNotFound, kind, fmt.Errorf("%s %s", kind, id))
	}
	return nil
}

// timeLayout is fixed width so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func marshalJSONColumn(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal column: %w", err)
	}
	if string(data) == "null" {
		return "[]", nil
	}
	return string(data), nil
}

func unmarshalJSONColumn(s string, v any) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("unmarshal column: %w", err)
	}
	return nil
}
