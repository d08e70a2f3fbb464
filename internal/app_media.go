package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// uploadURLExpiry is how long a presigned upload URL stays valid
const uploadURLExpiry = 15 * time.Minute

// Canvas layout for nodes created without an explicit position
const (
	layoutVideoX   = 100.0
	layoutAgentX   = 500.0
	layoutRowStart = 100.0
	layoutRowGap   = 220.0
	layoutAgentGap = 160.0
)

// VideoUpload describes media to ingest into a project
type VideoUpload struct {
	Title    string
	FileName string
	Body     io.Reader
	Size     int64

	// Optional SRT or WebVTT captions for the video
	CaptionsName string
	Captions     io.Reader

	Position *Position
}

// UploadVideoFile ingests a video from disk. A captions file may be given
// explicitly; otherwise a sibling .srt or .vtt with the same base name is used.
func (app *App) UploadVideoFile(ctx context.Context, projectID, path, title, captionsPath string) (*Video, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Wrap(ErrUpload, "opening "+path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, Wrap(ErrUpload, "stat "+path, err)
	}
	if info.IsDir() {
		return nil, Wrap(ErrValidation, "upload", fmt.Errorf("%s is a directory", path))
	}

	upload := VideoUpload{
		Title:    title,
		FileName: filepath.Base(path),
		Body:     f,
		Size:     info.Size(),
	}

	if captionsPath == "" {
		captionsPath = siblingCaptions(path)
	}
	if captionsPath != "" {
		cf, err := os.Open(captionsPath)
		if err != nil {
			return nil, Wrap(ErrUpload, "opening "+captionsPath, err)
		}
		defer cf.Close()
		upload.CaptionsName = filepath.Base(captionsPath)
		upload.Captions = cf
		app.ui.Verbose("Using captions from %s\n", captionsPath)
	}

	return app.UploadVideo(ctx, projectID, upload)
}

func siblingCaptions(path string) string {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	for _, ext := range []string{".srt", ".vtt"} {
		if FileExists(base + ext) {
			return base + ext
		}
	}
	return ""
}

func (app *App) validateUpload(fileName string, size int64) error {
	if !IsVideoFile(fileName) {
		return Wrap(ErrValidation, "upload", fmt.Errorf("unsupported file type %q", filepath.Ext(fileName)))
	}
	limit := app.config.MaxUploadSize
	if limit <= 0 {
		limit = DefaultMaxUploadSize
	}
	if size > limit {
		return Wrap(ErrValidation, "upload", fmt.Errorf("file too large: %s (limit %s)", HumanSize(size), HumanSize(limit)))
	}
	return nil
}

// UploadVideo stores the media, creates the video record and places exactly
// one video node on the project canvas
func (app *App) UploadVideo(ctx context.Context, projectID string, in VideoUpload) (*Video, error) {
	if err := app.validateUpload(in.FileName, in.Size); err != nil {
		return nil, err
	}
	if in.Captions != nil && !IsCaptionFile(in.CaptionsName) {
		return nil, Wrap(ErrValidation, "upload", fmt.Errorf("captions must be .srt or .vtt, got %q", in.CaptionsName))
	}

	v, err := app.createPendingVideo(ctx, projectID, in.Title, in.FileName, in.Size, in.Position)
	if err != nil {
		return nil, err
	}

	fail := func(err error) (*Video, error) {
		app.discardVideo(ctx, v)
		return nil, err
	}

	bar := app.ui.NewBytesBar(in.Size, "Uploading")
	body := io.TeeReader(in.Body, bar)
	err = app.files.Put(ctx, v.StorageKey, body, in.Size, ContentType(in.FileName))
	bar.Finish()
	if err != nil {
		return fail(err)
	}
	app.metrics.observeUpload(in.Size)

	if in.Captions != nil {
		v.CaptionsKey = captionsKey(v, in.CaptionsName)
		if err := app.files.Put(ctx, v.CaptionsKey, in.Captions, -1, "text/plain"); err != nil {
			return fail(err)
		}
		if err := app.store.UpdateVideo(ctx, v); err != nil {
			return fail(err)
		}
	}

	return app.finishUpload(ctx, v)
}

// PrepareUpload creates a video record waiting for its media and returns a
// URL the client can PUT the file to. CompleteUpload finishes the ingest.
func (app *App) PrepareUpload(ctx context.Context, projectID, title, fileName string, size int64) (*Video, string, error) {
	if err := app.validateUpload(fileName, size); err != nil {
		return nil, "", err
	}
	v, err := app.createPendingVideo(ctx, projectID, title, fileName, size, nil)
	if err != nil {
		return nil, "", err
	}
	url, err := app.files.UploadURL(ctx, v.StorageKey, uploadURLExpiry)
	if err != nil {
		app.discardVideo(ctx, v)
		return nil, "", err
	}
	return v, url, nil
}

// CompleteUpload marks a prepared video as uploaded once its media exists
func (app *App) CompleteUpload(ctx context.Context, videoID string) (*Video, error) {
	v, err := app.store.GetVideo(ctx, app.userID(ctx), videoID)
	if err != nil {
		return nil, err
	}
	if v.TranscriptionStatus != TranscriptionUploading {
		return v, nil
	}
	rc, err := app.files.Open(ctx, v.StorageKey)
	if err != nil {
		return nil, Wrap(ErrUpload, "upload not received", err)
	}
	rc.Close()
	app.metrics.observeUpload(v.FileSize)
	return app.finishUpload(ctx, v)
}

// PutUploadedFile stores the body sent to a local upload URL. Only the media
// of the caller's pending uploads may be written.
func (app *App) PutUploadedFile(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	v, err := app.store.GetVideoByStorageKey(ctx, app.userID(ctx), key)
	if err != nil {
		return err
	}
	if v.TranscriptionStatus != TranscriptionUploading {
		return Wrap(ErrValidation, "upload", fmt.Errorf("video %s is already uploaded", ShortID(v.ID)))
	}
	if size > 0 && v.FileSize > 0 && size != v.FileSize {
		return Wrap(ErrValidation, "upload", fmt.Errorf("expected %d bytes, got %d", v.FileSize, size))
	}
	return app.files.Put(ctx, key, r, size, contentType)
}

func (app *App) createPendingVideo(ctx context.Context, projectID, title, fileName string, size int64, pos *Position) (*Video, error) {
	userID := app.userID(ctx)
	if _, err := app.store.GetProject(ctx, userID, projectID); err != nil {
		return nil, err
	}

	if strings.TrimSpace(title) == "" {
		title = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}

	v := &Video{
		ProjectID:           projectID,
		UserID:              userID,
		Title:               strings.TrimSpace(title),
		FileName:            fileName,
		StorageKey:          MediaKey(projectID, uuid.New().String(), fileName),
		FileSize:            size,
		TranscriptionStatus: TranscriptionUploading,
	}
	if pos != nil {
		v.Position = *pos
	} else {
		videos, err := app.store.ListVideos(ctx, userID, projectID)
		if err != nil {
			return nil, err
		}
		v.Position = Position{X: layoutVideoX, Y: layoutRowStart + layoutRowGap*float64(len(videos))}
	}

	if err := app.store.CreateVideo(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// finishUpload probes the duration, marks the video ready and adds its node
func (app *App) finishUpload(ctx context.Context, v *Video) (*Video, error) {
	userID := app.userID(ctx)

	if d, err := app.probeDuration(ctx, v.StorageKey); err == nil {
		v.Duration = d
	} else {
		app.ui.Verbose("Could not read duration of %s: %v\n", v.FileName, err)
	}
	if err := app.store.UpdateVideo(ctx, v); err != nil {
		return nil, err
	}
	if err := app.store.SetTranscriptionStatus(ctx, userID, v.ID, TranscriptionIdle, ""); err != nil {
		return nil, err
	}

	canvas, err := app.store.LoadCanvas(ctx, userID, v.ProjectID)
	if err != nil {
		return nil, err
	}
	if _, ok := canvas.Node(VideoNodeID(v.ID)); !ok {
		if err := canvas.AddNode(videoNode(v)); err != nil {
			return nil, err
		}
		if err := app.store.SaveCanvas(ctx, userID, canvas); err != nil {
			return nil, err
		}
	}
	if err := app.store.TouchProject(ctx, userID, v.ProjectID); err != nil {
		return nil, err
	}

	app.publish(EventVideoCreated, v.ProjectID, v.ID)
	app.publish(EventCanvasUpdated, v.ProjectID, VideoNodeID(v.ID))
	return app.store.GetVideo(ctx, userID, v.ID)
}

// probeDuration runs ffprobe on the stored file. Remote backends are probed
// through a short-lived URL instead of downloading the media.
func (app *App) probeDuration(ctx context.Context, key string) (float64, error) {
	var target string
	if lp, ok := app.files.(localPather); ok {
		p, err := lp.Path(key)
		if err != nil {
			return 0, err
		}
		target = p
	} else {
		u, err := app.files.URL(ctx, key, uploadURLExpiry)
		if err != nil {
			return 0, err
		}
		target = u
	}
	return app.audio.Duration(ctx, target)
}

// discardVideo removes a video whose upload failed
func (app *App) discardVideo(ctx context.Context, v *Video) {
	ctx = context.WithoutCancel(ctx)
	keys, _, err := app.store.DeleteVideo(ctx, v.UserID, v.ID)
	if err != nil {
		LogError("discarding failed upload %s: %v", v.ID, err)
		return
	}
	app.deleteFiles(ctx, keys)
}

func captionsKey(v *Video, captionsName string) string {
	base := strings.TrimSuffix(v.StorageKey, filepath.Ext(v.StorageKey))
	return base + "-captions" + strings.ToLower(filepath.Ext(captionsName))
}

// GetVideo returns one video
func (app *App) GetVideo(ctx context.Context, id string) (*Video, error) {
	return app.store.GetVideo(ctx, app.userID(ctx), id)
}

// ListVideos returns the videos of a project
func (app *App) ListVideos(ctx context.Context, projectID string) ([]*Video, error) {
	userID := app.userID(ctx)
	if _, err := app.store.GetProject(ctx, userID, projectID); err != nil {
		return nil, err
	}
	return app.store.ListVideos(ctx, userID, projectID)
}

// RenameVideo changes a video's title and its node label
func (app *App) RenameVideo(ctx context.Context, id, title string) (*Video, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, Wrap(ErrValidation, "rename video", fmt.Errorf("title is required"))
	}
	userID := app.userID(ctx)
	v, err := app.store.GetVideo(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	v.Title = title
	if err := app.store.UpdateVideo(ctx, v); err != nil {
		return nil, err
	}

	canvas, err := app.store.LoadCanvas(ctx, userID, v.ProjectID)
	if err != nil {
		return nil, err
	}
	if i := canvas.nodeIndex(VideoNodeID(v.ID)); i >= 0 {
		canvas.Nodes[i].Data.Label = title
		if err := app.store.SaveCanvas(ctx, userID, canvas); err != nil {
			return nil, err
		}
	}
	app.publish(EventVideoUpdated, v.ProjectID, v.ID)
	return v, nil
}

// DeleteVideo removes a video, its agents, their canvas nodes and edges, and
// the stored media
func (app *App) DeleteVideo(ctx context.Context, id string) error {
	userID := app.userID(ctx)
	v, err := app.store.GetVideo(ctx, userID, id)
	if err != nil {
		return err
	}

	keys, agentIDs, err := app.store.DeleteVideo(ctx, userID, id)
	if err != nil {
		return err
	}
	app.deleteFiles(ctx, keys)

	canvas, err := app.store.LoadCanvas(ctx, userID, v.ProjectID)
	if err != nil {
		return err
	}
	if _, ok := canvas.Node(VideoNodeID(id)); ok {
		if _, err := canvas.RemoveNode(VideoNodeID(id)); err != nil {
			return err
		}
	}
	// agents whose nodes were missing from the canvas
	for _, agentID := range agentIDs {
		if _, ok := canvas.Node(AgentNodeID(agentID)); ok {
			if _, err := canvas.RemoveNode(AgentNodeID(agentID)); err != nil {
				return err
			}
		}
	}
	if err := app.store.SaveCanvas(ctx, userID, canvas); err != nil {
		return err
	}
	if err := app.dropConnections(ctx, v.ProjectID, agentIDs...); err != nil {
		return err
	}

	app.publish(EventVideoDeleted, v.ProjectID, id)
	for _, agentID := range agentIDs {
		app.publish(EventAgentDeleted, v.ProjectID, agentID)
	}
	app.publish(EventCanvasUpdated, v.ProjectID, VideoNodeID(id))
	return nil
}

// TranscribeVideo runs the transcription pipeline for a video
func (app *App) TranscribeVideo(ctx context.Context, id string) (*Video, error) {
	return app.transcriber.Transcribe(ctx, app.userID(ctx), id)
}

// StartTranscription runs the transcription pipeline in the background. Use
// WaitForTranscription or subscribe to follow progress.
func (app *App) StartTranscription(ctx context.Context, id string) error {
	userID := app.userID(ctx)
	v, err := app.store.GetVideo(ctx, userID, id)
	if err != nil {
		return err
	}
	if v.TranscriptionStatus == TranscriptionProcessing {
		return nil
	}

	go func() {
		bg := WithUserID(context.WithoutCancel(ctx), userID)
		if _, err := app.transcriber.Transcribe(bg, userID, id); err != nil {
			LogError("transcribing %s: %v", id, err)
		}
	}()
	return nil
}

// WaitForTranscription blocks until the video's transcription completes or fails
func (app *App) WaitForTranscription(ctx context.Context, id string) (*Video, error) {
	return app.transcriber.WaitForTranscription(ctx, app.userID(ctx), id, app.config.PollInterval)
}

// OpenMedia opens a stored file of one of the caller's projects
func (app *App) OpenMedia(ctx context.Context, key string) (io.ReadCloser, error) {
	parts := strings.SplitN(key, "/", 3)
	if len(parts) < 3 || parts[0] != "projects" {
		return nil, Wrap(ErrNotFound, "media", fmt.Errorf("file %s", key))
	}
	if _, err := app.store.GetProject(ctx, app.userID(ctx), parts[1]); err != nil {
		return nil, err
	}
	return app.files.Open(ctx, key)
}

// Agents

// AddAgent creates an agent for a video, places its node and connects the
// video to it
func (app *App) AddAgent(ctx context.Context, videoID string, agentType AgentType, pos *Position) (*Agent, error) {
	userID := app.userID(ctx)
	v, err := app.store.GetVideo(ctx, userID, videoID)
	if err != nil {
		return nil, err
	}

	existing, err := app.store.ListAgentsByVideo(ctx, userID, videoID)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		VideoID: videoID,
		UserID:  userID,
		Type:    agentType,
		Status:  AgentIdle,
	}
	if pos != nil {
		a.Position = *pos
	} else {
		a.Position = Position{X: layoutAgentX, Y: v.Position.Y + layoutAgentGap*float64(len(existing))}
	}
	if err := app.store.CreateAgent(ctx, a); err != nil {
		return nil, err
	}
	if err := app.placeAgent(ctx, v, a); err != nil {
		app.discardAgent(ctx, a)
		return nil, err
	}

	app.publish(EventAgentCreated, a.ProjectID, a.ID)
	app.publish(EventCanvasUpdated, a.ProjectID, AgentNodeID(a.ID))
	return a, nil
}

// placeAgent adds the agent's node and its video edge to the project canvas
func (app *App) placeAgent(ctx context.Context, v *Video, a *Agent) error {
	canvas, err := app.store.LoadCanvas(ctx, a.UserID, v.ProjectID)
	if err != nil {
		return err
	}
	if _, ok := canvas.Node(VideoNodeID(v.ID)); !ok {
		if err := canvas.AddNode(videoNode(v)); err != nil {
			return err
		}
	}
	if err := canvas.AddNode(agentNode(a)); err != nil {
		return err
	}
	if _, err := canvas.Connect(VideoNodeID(v.ID), AgentNodeID(a.ID)); err != nil {
		return err
	}
	return app.store.SaveCanvas(ctx, a.UserID, canvas)
}

func (app *App) discardAgent(ctx context.Context, a *Agent) {
	if _, err := app.store.DeleteAgent(context.WithoutCancel(ctx), a.UserID, a.ID); err != nil {
		LogError("discarding agent %s: %v", a.ID, err)
	}
}

// GetAgent returns one agent
func (app *App) GetAgent(ctx context.Context, id string) (*Agent, error) {
	return app.store.GetAgent(ctx, app.userID(ctx), id)
}

// ListAgents returns the agents of a project
func (app *App) ListAgents(ctx context.Context, projectID string) ([]*Agent, error) {
	userID := app.userID(ctx)
	if _, err := app.store.GetProject(ctx, userID, projectID); err != nil {
		return nil, err
	}
	return app.store.ListAgents(ctx, userID, projectID)
}

// UpdateAgentDraft replaces an agent's draft with an edited version
func (app *App) UpdateAgentDraft(ctx context.Context, id, draft string) (*Agent, error) {
	a, err := app.store.GetAgent(ctx, app.userID(ctx), id)
	if err != nil {
		return nil, err
	}
	a.Draft = draft
	if strings.TrimSpace(draft) != "" && a.Status == AgentIdle {
		a.Status = AgentReady
	}
	if err := app.store.UpdateAgent(ctx, a); err != nil {
		return nil, err
	}
	app.publish(EventAgentUpdated, a.ProjectID, a.ID)
	return a, nil
}

// DeleteAgent removes an agent, its node and edges, and its thumbnail
func (app *App) DeleteAgent(ctx context.Context, id string) error {
	userID := app.userID(ctx)
	a, err := app.store.GetAgent(ctx, userID, id)
	if err != nil {
		return err
	}
	thumb, err := app.store.DeleteAgent(ctx, userID, id)
	if err != nil {
		return err
	}
	app.deleteFiles(ctx, []string{thumb})

	canvas, err := app.store.LoadCanvas(ctx, userID, a.ProjectID)
	if err != nil {
		return err
	}
	if _, ok := canvas.Node(AgentNodeID(id)); ok {
		if _, err := canvas.RemoveNode(AgentNodeID(id)); err != nil {
			return err
		}
		if err := app.store.SaveCanvas(ctx, userID, canvas); err != nil {
			return err
		}
	}
	if err := app.dropConnections(ctx, a.ProjectID, id); err != nil {
		return err
	}

	app.publish(EventAgentDeleted, a.ProjectID, id)
	app.publish(EventCanvasUpdated, a.ProjectID, AgentNodeID(id))
	return nil
}

// dropConnections removes deleted agent ids from the connections of the
// remaining agents in a project
func (app *App) dropConnections(ctx context.Context, projectID string, removed ...string) error {
	if len(removed) == 0 {
		return nil
	}
	userID := app.userID(ctx)
	agents, err := app.store.ListAgents(ctx, userID, projectID)
	if err != nil {
		return err
	}
	for _, a := range agents {
		kept := slices.DeleteFunc(slices.Clone(a.Connections), func(id string) bool {
			return slices.Contains(removed, id)
		})
		if len(kept) == len(a.Connections) {
			continue
		}
		a.Connections = kept
		if err := app.store.UpdateAgent(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// GenerateAgent writes a fresh draft for an agent
func (app *App) GenerateAgent(ctx context.Context, id string) (*Agent, error) {
	return app.generator.Generate(ctx, app.userID(ctx), id, "")
}

// RefineAgent revises an agent's draft with user feedback
func (app *App) RefineAgent(ctx context.Context, id, feedback string) (*Agent, error) {
	if strings.TrimSpace(feedback) == "" {
		return nil, Wrap(ErrValidation, "refine", fmt.Errorf("feedback is required"))
	}
	return app.generator.Generate(ctx, app.userID(ctx), id, feedback)
}

// GenerateAll regenerates every agent in a project in canvas order
func (app *App) GenerateAll(ctx context.Context, projectID string) ([]*Agent, error) {
	return app.generator.GenerateAll(ctx, app.userID(ctx), projectID)
}

// ExportAgent renders an agent's output as markdown
func (app *App) ExportAgent(ctx context.Context, id string) (string, error) {
	userID := app.userID(ctx)
	a, err := app.store.GetAgent(ctx, userID, id)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(a.Draft) == "" {
		return "", Wrap(ErrValidation, "export", fmt.Errorf("agent %s has no content yet", ShortID(id)))
	}
	v, err := app.store.GetVideo(ctx, userID, a.VideoID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s: %s\n\n", a.Type, v.Title)
	sb.WriteString(strings.TrimSpace(a.Draft))
	sb.WriteString("\n")
	if a.ThumbnailKey != "" {
		url, err := app.files.URL(ctx, a.ThumbnailKey, 24*time.Hour)
		if err == nil {
			fmt.Fprintf(&sb, "\n![Thumbnail](%s)\n", url)
		}
	}
	return sb.String(), nil
}
