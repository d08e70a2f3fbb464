package internal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "youpac.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func createTestVideo(t *testing.T, store *Store, userID, projectID string) *Video {
	t.Helper()
	v := &Video{
		ProjectID:  projectID,
		UserID:     userID,
		Title:      "Episode",
		FileName:   "episode.mp4",
		StorageKey: "projects/" + projectID + "/videos/episode.mp4",
	}
	if err := store.CreateVideo(context.Background(), v); err != nil {
		t.Fatalf("CreateVideo: %v", err)
	}
	return v
}

func TestStoreReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "youpac.db")
	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	p, err := store.CreateProject(context.Background(), "alice", "Launch", "")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	store.Close()

	store, err = OpenStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	if _, err := store.GetProject(context.Background(), "alice", p.ID); err != nil {
		t.Fatalf("expected project after reopen, got %v", err)
	}
}

func TestStoreProjectsAreScopedToUser(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	p, err := store.CreateProject(ctx, "alice", "  Launch video  ", "notes")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if p.Title != "Launch video" || p.Status != ProjectDraft {
		t.Fatalf("unexpected project %+v", p)
	}

	if _, err := store.GetProject(ctx, "bob", p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected other user to get not found, got %v", err)
	}
	if _, err := store.DeleteProject(ctx, "bob", p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected other user delete to be not found, got %v", err)
	}

	projects, err := store.ListProjects(ctx, "bob")
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(projects) != 0 {
		t.Fatalf("expected bob to see no projects, got %d", len(projects))
	}
}

func TestStoreCreateProjectRequiresTitle(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.CreateProject(context.Background(), "alice", "   ", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStoreListProjectsMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first, err := store.CreateProject(ctx, "alice", "First", "")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := store.CreateProject(ctx, "alice", "Second", ""); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	if err := store.TouchProject(ctx, "alice", first.ID); err != nil {
		t.Fatal(err)
	}

	projects, err := store.ListProjects(ctx, "alice")
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(projects) != 2 || projects[0].ID != first.ID {
		t.Fatalf("expected touched project first, got %+v", projects)
	}
}

func TestStoreUpdateProjectValidatesStatus(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	p, err := store.CreateProject(ctx, "alice", "Launch", "")
	if err != nil {
		t.Fatal(err)
	}

	p.Status = "published"
	if err := store.UpdateProject(ctx, p); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	p.Status = ProjectActive
	if err := store.UpdateProject(ctx, p); err != nil {
		t.Fatalf("UpdateProject: %v", err)
	}
	got, err := store.GetProject(ctx, "alice", p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != ProjectActive {
		t.Fatalf("expected active, got %s", got.Status)
	}
}

func TestStoreDeleteProjectCascades(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	p, err := store.CreateProject(ctx, "alice", "Launch", "")
	if err != nil {
		t.Fatal(err)
	}
	v := createTestVideo(t, store, "alice", p.ID)
	v.CaptionsKey = "projects/" + p.ID + "/captions/episode.srt"
	if err := store.UpdateVideo(ctx, v); err != nil {
		t.Fatal(err)
	}
	a := &Agent{VideoID: v.ID, UserID: "alice", Type: AgentTypeThumbnail, ThumbnailKey: "projects/" + p.ID + "/thumbnails/t.png"}
	if err := store.CreateAgent(ctx, a); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if err := store.SaveCanvas(ctx, "alice", NewCanvas(p.ID)); err != nil {
		t.Fatal(err)
	}

	keys, err := store.DeleteProject(ctx, "alice", p.ID)
	if err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("expected video, captions and thumbnail keys, got %v", keys)
	}

	if _, err := store.GetVideo(ctx, "alice", v.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected video to be deleted, got %v", err)
	}
	if _, err := store.GetAgent(ctx, "alice", a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected agent to be deleted, got %v", err)
	}
}

func TestStoreDeleteVideoRemovesAgents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	p, err := store.CreateProject(ctx, "alice", "Launch", "")
	if err != nil {
		t.Fatal(err)
	}
	keep := createTestVideo(t, store, "alice", p.ID)
	v := createTestVideo(t, store, "alice", p.ID)
	for _, agentType := range []AgentType{AgentTypeTitle, AgentTypeTweets} {
		if err := store.CreateAgent(ctx, &Agent{VideoID: v.ID, UserID: "alice", Type: agentType}); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.CreateAgent(ctx, &Agent{VideoID: keep.ID, UserID: "alice", Type: AgentTypeTitle}); err != nil {
		t.Fatal(err)
	}

	keys, agentIDs, err := store.DeleteVideo(ctx, "alice", v.ID)
	if err != nil {
		t.Fatalf("DeleteVideo: %v", err)
	}
	if len(keys) != 1 || keys[0] != v.StorageKey {
		t.Fatalf("unexpected keys %v", keys)
	}
	if len(agentIDs) != 2 {
		t.Fatalf("expected 2 agents removed, got %v", agentIDs)
	}

	agents, err := store.ListAgents(ctx, "alice", p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(agents) != 1 || agents[0].VideoID != keep.ID {
		t.Fatalf("expected only the other video's agent to remain, got %+v", agents)
	}
}

func TestStoreCreateAgentChecksVideoOwner(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	p, err := store.CreateProject(ctx, "alice", "Launch", "")
	if err != nil {
		t.Fatal(err)
	}
	v := createTestVideo(t, store, "alice", p.ID)

	err = store.CreateAgent(ctx, &Agent{VideoID: v.ID, UserID: "bob", Type: AgentTypeTitle})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for another user's video, got %v", err)
	}
	err = store.CreateAgent(ctx, &Agent{VideoID: v.ID, UserID: "alice", Type: "poster"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for unknown type, got %v", err)
	}
}

func TestStoreAgentRoundTripsJSONColumns(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	p, err := store.CreateProject(ctx, "alice", "Launch", "")
	if err != nil {
		t.Fatal(err)
	}
	v := createTestVideo(t, store, "alice", p.ID)
	a := &Agent{VideoID: v.ID, UserID: "alice", Type: AgentTypeDescription}
	if err := store.CreateAgent(ctx, a); err != nil {
		t.Fatal(err)
	}
	if a.ProjectID != p.ID || a.Status != AgentIdle {
		t.Fatalf("expected project and idle status to be filled in, got %+v", a)
	}

	a.Connections = []string{"upstream"}
	a.ChatHistory = []ChatMessage{{Role: "user", Content: "shorter"}, {Role: "assistant", Content: "ok"}}
	a.Position = Position{X: 12.5, Y: -3}
	if err := store.UpdateAgent(ctx, a); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetAgent(ctx, "alice", a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Connections) != 1 || got.Connections[0] != "upstream" {
		t.Fatalf("unexpected connections %v", got.Connections)
	}
	if len(got.ChatHistory) != 2 || got.ChatHistory[1].Content != "ok" {
		t.Fatalf("unexpected history %+v", got.ChatHistory)
	}
	if got.Position != a.Position {
		t.Fatalf("unexpected position %+v", got.Position)
	}
}

func TestStoreTranscriptionStatus(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	p, err := store.CreateProject(ctx, "alice", "Launch", "")
	if err != nil {
		t.Fatal(err)
	}
	v := createTestVideo(t, store, "alice", p.ID)

	if err := store.SetTranscriptionStatus(ctx, "alice", v.ID, TranscriptionFailed, "boom"); err != nil {
		t.Fatal(err)
	}
	got, _ := store.GetVideo(ctx, "alice", v.ID)
	if got.TranscriptionStatus != TranscriptionFailed || got.TranscriptionError != "boom" {
		t.Fatalf("unexpected video %+v", got)
	}

	if err := store.SaveTranscription(ctx, "alice", v.ID, "hello world"); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetVideo(ctx, "alice", v.ID)
	if got.TranscriptionStatus != TranscriptionCompleted || got.TranscriptionError != "" || got.Transcription != "hello world" {
		t.Fatalf("unexpected video %+v", got)
	}

	if err := store.SetTranscriptionStatus(ctx, "bob", v.ID, TranscriptionProcessing, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for other user, got %v", err)
	}
}

func TestStoreCanvasDefaultsAndRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	p, err := store.CreateProject(ctx, "alice", "Launch", "")
	if err != nil {
		t.Fatal(err)
	}

	c, err := store.LoadCanvas(ctx, "alice", p.ID)
	if err != nil {
		t.Fatalf("LoadCanvas: %v", err)
	}
	if len(c.Nodes) != 0 || c.Viewport.Zoom != 1 {
		t.Fatalf("expected empty canvas at zoom 1, got %+v", c)
	}

	if err := c.AddNode(videoNode(&Video{ID: "v1", Title: "Episode"})); err != nil {
		t.Fatal(err)
	}
	c.Viewport = Viewport{X: 10, Y: 20, Zoom: 1.5}
	if err := store.SaveCanvas(ctx, "alice", c); err != nil {
		t.Fatalf("SaveCanvas: %v", err)
	}

	got, err := store.LoadCanvas(ctx, "alice", p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Nodes) != 1 || got.Nodes[0].Data.Label != "Episode" {
		t.Fatalf("unexpected nodes %+v", got.Nodes)
	}
	if got.Viewport != c.Viewport {
		t.Fatalf("unexpected viewport %+v", got.Viewport)
	}

	if _, err := store.LoadCanvas(ctx, "bob", p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected other user to get not found, got %v", err)
	}
}

func TestStoreProfileUpsert(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.GetProfile(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no profile, got %v", err)
	}
	if err := store.UpsertProfile(ctx, &Profile{UserID: "alice"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected channel name to be required, got %v", err)
	}

	p := &Profile{UserID: "alice", ChannelName: "Gopher Talks", Niche: "Go", Links: []string{"https://example.com"}}
	if err := store.UpsertProfile(ctx, p); err != nil {
		t.Fatal(err)
	}
	p.Niche = "Go and Rust"
	if err := store.UpsertProfile(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetProfile(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got.Niche != "Go and Rust" || len(got.Links) != 1 {
		t.Fatalf("unexpected profile %+v", got)
	}
}
