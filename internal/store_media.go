package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Videos

const videoColumns = `id, project_id, user_id, title, file_name, storage_key, captions_key, file_size, duration,
	transcription, transcription_status, transcription_error, canvas_x, canvas_y, created_at, updated_at`

// CreateVideo inserts a video into a project owned by the same user. ID and
// timestamps are assigned here.
func (s *Store) CreateVideo(ctx context.Context, v *Video) error {
	if _, err := s.GetProject(ctx, v.UserID, v.ProjectID); err != nil {
		return err
	}
	if v.TranscriptionStatus == "" {
		v.TranscriptionStatus = TranscriptionIdle
	}

	now := time.Now().UTC()
	v.ID = uuid.New().String()
	v.CreatedAt = now
	v.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO videos (`+videoColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.ProjectID, v.UserID, v.Title, v.FileName, v.StorageKey, v.CaptionsKey, v.FileSize, v.Duration,
		v.Transcription, v.TranscriptionStatus, v.TranscriptionError, v.Position.X, v.Position.Y,
		formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

// GetVideo fetches a video owned by userID
func (s *Store) GetVideo(ctx context.Context, userID, id string) (*Video, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ? AND user_id = ?`, id, userID)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Wrap(ErrNotFound, "video", fmt.Errorf("video %s", id))
	}
	return v, err
}

// GetVideoByStorageKey fetches the video whose media lives at key
func (s *Store) GetVideoByStorageKey(ctx context.Context, userID, key string) (*Video, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE storage_key = ? AND user_id = ?`, key, userID)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Wrap(ErrNotFound, "video", fmt.Errorf("no video stored at %s", key))
	}
	return v, err
}

// ListVideos returns the videos in a project in upload order
func (s *Store) ListVideos(ctx context.Context, userID, projectID string) ([]*Video, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE project_id = ? AND user_id = ? ORDER BY created_at`, projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	var videos []*Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// UpdateVideo writes the mutable video fields other than the transcription
func (s *Store) UpdateVideo(ctx context.Context, v *Video) error {
	v.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE videos SET title = ?, file_name = ?, storage_key = ?, captions_key = ?, file_size = ?, duration = ?,
		   canvas_x = ?, canvas_y = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		v.Title, v.FileName, v.StorageKey, v.CaptionsKey, v.FileSize, v.Duration,
		v.Position.X, v.Position.Y, formatTime(v.UpdatedAt), v.ID, v.UserID)
	if err != nil {
		return fmt.Errorf("update video: %w", err)
	}
	return expectOneRow(res, "video", v.ID)
}

// SetTranscriptionStatus moves a video through the transcription pipeline.
// The error message is cleared unless the status is failed.
func (s *Store) SetTranscriptionStatus(ctx context.Context, userID, id string, status TranscriptionStatus, message string) error {
	if status != TranscriptionFailed {
		message = ""
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE videos SET transcription_status = ?, transcription_error = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		status, message, formatTime(time.Now().UTC()), id, userID)
	if err != nil {
		return fmt.Errorf("update transcription status: %w", err)
	}
	return expectOneRow(res, "video", id)
}

// SaveTranscription stores transcription text and marks it completed
func (s *Store) SaveTranscription(ctx context.Context, userID, id, text string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE videos SET transcription = ?, transcription_status = ?, transcription_error = '', updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		text, TranscriptionCompleted, formatTime(time.Now().UTC()), id, userID)
	if err != nil {
		return fmt.Errorf("save transcription: %w", err)
	}
	return expectOneRow(res, "video", id)
}

// DeleteVideo removes a video and its agents. It returns the storage keys of
// the removed files and the ids of the removed agents.
func (s *Store) DeleteVideo(ctx context.Context, userID, id string) ([]string, []string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM videos WHERE id = ? AND user_id = ?`, id, userID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, Wrap(ErrNotFound, "delete video", fmt.Errorf("video %s", id))
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lookup video: %w", err)
	}

	keys, err := collectKeys(ctx, tx,
		`SELECT storage_key, captions_key FROM videos WHERE id = ?
		 UNION ALL
		 SELECT thumbnail_key, '' FROM agents WHERE video_id = ?`, id, id)
	if err != nil {
		return nil, nil, err
	}

	rows, err := tx.QueryContext(ctx, `SELECT id FROM agents WHERE video_id = ?`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("query agents: %w", err)
	}
	var agentIDs []string
	for rows.Next() {
		var agentID string
		if err := rows.Scan(&agentID); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("scan agent id: %w", err)
		}
		agentIDs = append(agentIDs, agentID)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM agents WHERE video_id = ?`, id); err != nil {
		return nil, nil, fmt.Errorf("delete agents: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, id); err != nil {
		return nil, nil, fmt.Errorf("delete video: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}
	return keys, agentIDs, nil
}

func scanVideo(row rowScanner) (*Video, error) {
	var v Video
	var status, created, updated string
	err := row.Scan(&v.ID, &v.ProjectID, &v.UserID, &v.Title, &v.FileName, &v.StorageKey, &v.CaptionsKey,
		&v.FileSize, &v.Duration, &v.Transcription, &status, &v.TranscriptionError,
		&v.Position.X, &v.Position.Y, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan video: %w", err)
	}
	v.TranscriptionStatus = TranscriptionStatus(status)
	v.CreatedAt = parseTime(created)
	v.UpdatedAt = parseTime(updated)
	return &v, nil
}

// Agents

const agentColumns = `id, video_id, project_id, user_id, type, draft, thumbnail_key, status,
	connections_json, chat_history_json, canvas_x, canvas_y, created_at, updated_at`

// CreateAgent inserts an agent attached to a video owned by the same user
func (s *Store) CreateAgent(ctx context.Context, a *Agent) error {
	if !a.Type.Valid() {
		return Wrap(ErrValidation, "create agent", fmt.Errorf("unknown agent type %q", a.Type))
	}
	video, err := s.GetVideo(ctx, a.UserID, a.VideoID)
	if err != nil {
		return err
	}
	a.ProjectID = video.ProjectID
	if a.Status == "" {
		a.Status = AgentIdle
	}

	connections, err := marshalJSONColumn(a.Connections)
	if err != nil {
		return err
	}
	history, err := marshalJSONColumn(a.ChatHistory)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	a.ID = uuid.New().String()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agents (`+agentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.VideoID, a.ProjectID, a.UserID, a.Type, a.Draft, a.ThumbnailKey, a.Status,
		connections, history, a.Position.X, a.Position.Y, formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

// GetAgent fetches an agent owned by userID
func (s *Store) GetAgent(ctx context.Context, userID, id string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ? AND user_id = ?`, id, userID)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Wrap(ErrNotFound, "agent", fmt.Errorf("agent %s", id))
	}
	return a, err
}

// ListAgents returns the agents in a project in creation order
func (s *Store) ListAgents(ctx context.Context, userID, projectID string) ([]*Agent, error) {
	return s.queryAgents(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE project_id = ? AND user_id = ? ORDER BY created_at`, projectID, userID)
}

// ListAgentsByVideo returns the agents attached to a video
func (s *Store) ListAgentsByVideo(ctx context.Context, userID, videoID string) ([]*Agent, error) {
	return s.queryAgents(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE video_id = ? AND user_id = ? ORDER BY created_at`, videoID, userID)
}

func (s *Store) queryAgents(ctx context.Context, query string, args ...any) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// UpdateAgent writes the mutable agent fields
func (s *Store) UpdateAgent(ctx context.Context, a *Agent) error {
	connections, err := marshalJSONColumn(a.Connections)
	if err != nil {
		return err
	}
	history, err := marshalJSONColumn(a.ChatHistory)
	if err != nil {
		return err
	}
	a.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET draft = ?, thumbnail_key = ?, status = ?, connections_json = ?, chat_history_json = ?,
		   canvas_x = ?, canvas_y = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		a.Draft, a.ThumbnailKey, a.Status, connections, history,
		a.Position.X, a.Position.Y, formatTime(a.UpdatedAt), a.ID, a.UserID)
	if err != nil {
		return fmt.Errorf("update agent: %w", err)
	}
	return expectOneRow(res, "agent", a.ID)
}

// SetAgentStatus patches only the status column
func (s *Store) SetAgentStatus(ctx context.Context, userID, id string, status AgentStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE agents SET status = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		status, formatTime(time.Now().UTC()), id, userID)
	if err != nil {
		return fmt.Errorf("update agent status: %w", err)
	}
	return expectOneRow(res, "agent", id)
}

// DeleteAgent removes an agent and returns its thumbnail key, if any
func (s *Store) DeleteAgent(ctx context.Context, userID, id string) (string, error) {
	a, err := s.GetAgent(ctx, userID, id)
	if err != nil {
		return "", err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return "", fmt.Errorf("delete agent: %w", err)
	}
	if err := expectOneRow(res, "agent", id); err != nil {
		return "", err
	}
	return a.ThumbnailKey, nil
}

func scanAgent(row rowScanner) (*Agent, error) {
	var a Agent
	var agentType, status, connections, history, created, updated string
	err := row.Scan(&a.ID, &a.VideoID, &a.ProjectID, &a.UserID, &agentType, &a.Draft, &a.ThumbnailKey, &status,
		&connections, &history, &a.Position.X, &a.Position.Y, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan agent: %w", err)
	}
	a.Type = AgentType(agentType)
	a.Status = AgentStatus(status)
	if err := unmarshalJSONColumn(connections, &a.Connections); err != nil {
		return nil, err
	}
	if err := unmarshalJSONColumn(history, &a.ChatHistory); err != nil {
		return nil, err
	}
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	return &a, nil
}

// Canvas

// LoadCanvas returns the saved canvas for a project, or an empty canvas if
// nothing has been saved yet
func (s *Store) LoadCanvas(ctx context.Context, userID, projectID string) (*Canvas, error) {
	if _, err := s.GetProject(ctx, userID, projectID); err != nil {
		return nil, err
	}

	var nodes, edges, viewport, updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT nodes_json, edges_json, viewport_json, updated_at FROM canvas_states WHERE project_id = ? AND user_id = ?`,
		projectID, userID).Scan(&nodes, &edges, &viewport, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return NewCanvas(projectID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("query canvas: %w", err)
	}

	c := NewCanvas(projectID)
	if err := unmarshalJSONColumn(nodes, &c.Nodes); err != nil {
		return nil, err
	}
	if err := unmarshalJSONColumn(edges, &c.Edges); err != nil {
		return nil, err
	}
	if strings.TrimSpace(viewport) != "{}" {
		if err := unmarshalJSONColumn(viewport, &c.Viewport); err != nil {
			return nil, err
		}
	}
	c.UpdatedAt = parseTime(updated)
	return c, nil
}

// SaveCanvas replaces the canvas snapshot for a project
func (s *Store) SaveCanvas(ctx context.Context, userID string, c *Canvas) error {
	if _, err := s.GetProject(ctx, userID, c.ProjectID); err != nil {
		return err
	}

	nodes, err := marshalJSONColumn(c.Nodes)
	if err != nil {
		return err
	}
	edges, err := marshalJSONColumn(c.Edges)
	if err != nil {
		return err
	}
	viewport, err := marshalJSONColumn(c.Viewport)
	if err != nil {
		return err
	}
	c.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO canvas_states (project_id, user_id, nodes_json, edges_json, viewport_json, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(project_id) DO UPDATE SET
		   nodes_json = excluded.nodes_json,
		   edges_json = excluded.edges_json,
		   viewport_json = excluded.viewport_json,
		   updated_at = excluded.updated_at`,
		c.ProjectID, userID, nodes, edges, viewport, formatTime(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save canvas: %w", err)
	}
	return nil
}
