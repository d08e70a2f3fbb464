package internal

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeRunner stands in for ffmpeg and ffprobe. ffmpeg writes a small file to
// its last argument, ffprobe reports a fixed duration.
type fakeRunner struct {
	mu    sync.Mutex
	calls []string
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, name)
	r.mu.Unlock()

	switch name {
	case "ffprobe":
		return []byte("12.5\n"), nil
	case "ffmpeg":
		out := args[len(args)-1]
		if err := os.WriteFile(out, []byte("audio"), 0644); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return nil, errors.New("unexpected command " + name)
}

// fakeOpenAI records requests and returns canned responses
type fakeOpenAI struct {
	mu sync.Mutex

	transcript    string
	transcripts   []string
	transcribeErr error
	chatErr       error
	image         []byte

	transcriptions int
	audioFiles     []string
	chats          [][]ChatMessage
	imagePrompts   []string
}

func (f *fakeOpenAI) CreateTranscription(ctx context.Context, file *os.File) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcriptions++
	f.audioFiles = append(f.audioFiles, filepath.Base(file.Name()))
	if f.transcribeErr != nil {
		return "", f.transcribeErr
	}
	if n := f.transcriptions; n <= len(f.transcripts) {
		return f.transcripts[n-1], nil
	}
	return f.transcript, nil
}

func (f *fakeOpenAI) CreateChatCompletion(ctx context.Context, model string, messages []ChatMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = append(f.chats, messages)
	if f.chatErr != nil {
		return "", f.chatErr
	}
	return "draft " + strings.Repeat("x", len(f.chats)), nil
}

func (f *fakeOpenAI) CreateImage(ctx context.Context, model, prompt string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imagePrompts = append(f.imagePrompts, prompt)
	return f.image, nil
}

// lastUserPrompt returns the final user message of the most recent chat
func (f *fakeOpenAI) lastUserPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.chats) == 0 {
		return ""
	}
	msgs := f.chats[len(f.chats)-1]
	return msgs[len(msgs)-1].Content
}

type testApp struct {
	*App
	client   *fakeOpenAI
	mediaDir string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	dir := t.TempDir()
	config := &Config{
		ChatModel:                "gpt-4o-mini",
		ImageModel:               "gpt-image-1",
		MaxTranscriptChars:       10000,
		MaxConcurrentGenerations: 2,
		MaxUploadSize:            1 << 20,
		PollInterval:             10 * time.Millisecond,
		AutosaveDelay:            20 * time.Millisecond,
		UserID:                   "alice",
		ConfigDir:                filepath.Join(dir, "config"),
		DataDir:                  filepath.Join(dir, "data"),
		TempDir:                  filepath.Join(dir, "tmp"),
		MediaDir:                 filepath.Join(dir, "media"),
		DBPath:                   filepath.Join(dir, "data", "youpac.db"),
	}

	client := &fakeOpenAI{transcript: "hello from whisper", image: []byte("\x89PNG fake")}
	runner := &fakeRunner{}
	audio := NewAudio(runner, config.TempDir, false)
	ai := NewAI(client, audio, AIOptions{ChatModel: config.ChatModel, ImageModel: config.ImageModel})
	ai.SetRetryPolicy(RetryPolicy{Attempts: 1})

	app, err := NewApp(context.Background(), config,
		WithStore(newTestStore(t)),
		WithFileStorage(NewLocalStorage(config.MediaDir)),
		WithCommandRunner(runner),
		WithAudio(audio),
		WithAI(ai),
		WithUI(NewUIManager(false, true)),
	)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	return &testApp{App: app, client: client, mediaDir: config.MediaDir}
}

func (ta *testApp) project(t *testing.T) *Project {
	t.Helper()
	p, err := ta.CreateProject(context.Background(), "Launch", "")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return p
}

func (ta *testApp) upload(t *testing.T, projectID string, captions string) *Video {
	t.Helper()
	body := []byte("not really a video")
	in := VideoUpload{
		Title:    "Episode 1",
		FileName: "episode.mp4",
		Body:     bytes.NewReader(body),
		Size:     int64(len(body)),
	}
	if captions != "" {
		in.CaptionsName = "episode.srt"
		in.Captions = strings.NewReader(captions)
	}
	v, err := ta.UploadVideo(context.Background(), projectID, in)
	if err != nil {
		t.Fatalf("UploadVideo: %v", err)
	}
	return v
}

func (ta *testApp) transcribed(t *testing.T, projectID string) *Video {
	t.Helper()
	v := ta.upload(t, projectID, "")
	v, err := ta.TranscribeVideo(context.Background(), v.ID)
	if err != nil {
		t.Fatalf("TranscribeVideo: %v", err)
	}
	return v
}

func countNodes(c *Canvas, typ NodeType) int {
	n := 0
	for _, node := range c.Nodes {
		if node.Type == typ {
			n++
		}
	}
	return n
}

func TestUploadVideoPlacesOneNode(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	p := ta.project(t)

	v := ta.upload(t, p.ID, "")
	if v.TranscriptionStatus != TranscriptionIdle {
		t.Fatalf("expected idle video after upload, got %s", v.TranscriptionStatus)
	}
	if v.Duration != 12.5 {
		t.Fatalf("expected probed duration, got %v", v.Duration)
	}

	canvas, err := ta.GetCanvas(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetCanvas: %v", err)
	}
	if got := countNodes(canvas, NodeTypeVideo); got != 1 {
		t.Fatalf("expected 1 video node, got %d", got)
	}

	second := ta.upload(t, p.ID, "")
	canvas, err = ta.GetCanvas(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetCanvas: %v", err)
	}
	if got := countNodes(canvas, NodeTypeVideo); got != 2 {
		t.Fatalf("expected 2 video nodes, got %d", got)
	}
	if second.Position == v.Position {
		t.Fatal("expected second video to be placed below the first")
	}
}

func TestUploadVideoValidation(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	p := ta.project(t)

	_, err := ta.UploadVideo(ctx, p.ID, VideoUpload{FileName: "notes.txt", Body: strings.NewReader("x"), Size: 1})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected unsupported type to be rejected, got %v", err)
	}

	_, err = ta.UploadVideo(ctx, p.ID, VideoUpload{FileName: "big.mp4", Body: strings.NewReader("x"), Size: 2 << 20})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected oversized upload to be rejected, got %v", err)
	}

	_, err = ta.UploadVideo(ctx, "missing", VideoUpload{FileName: "a.mp4", Body: strings.NewReader("x"), Size: 1})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected unknown project to be not found, got %v", err)
	}

	videos, err := ta.ListVideos(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	if len(videos) != 0 {
		t.Fatalf("expected rejected uploads to leave no videos, got %d", len(videos))
	}
}

func TestTranscribePrefersCaptions(t *testing.T) {
	ta := newTestApp(t)
	p := ta.project(t)

	srt := "1\n00:00:00,000 --> 00:00:02,000\nWelcome back\n\n2\n00:00:02,000 --> 00:00:04,000\n<i>to the channel</i>\n"
	v := ta.upload(t, p.ID, srt)

	v, err := ta.TranscribeVideo(context.Background(), v.ID)
	if err != nil {
		t.Fatalf("TranscribeVideo: %v", err)
	}
	if v.TranscriptionStatus != TranscriptionCompleted {
		t.Fatalf("expected completed, got %s", v.TranscriptionStatus)
	}
	if v.Transcription != "Welcome back\nto the channel" {
		t.Fatalf("unexpected transcription %q", v.Transcription)
	}
	if ta.client.transcriptions != 0 {
		t.Fatalf("expected Whisper not to be called, got %d calls", ta.client.transcriptions)
	}
}

func TestTranscribeWithWhisper(t *testing.T) {
	ta := newTestApp(t)
	p := ta.project(t)

	v := ta.transcribed(t, p.ID)
	if v.TranscriptionStatus != TranscriptionCompleted {
		t.Fatalf("expected completed, got %s", v.TranscriptionStatus)
	}
	if v.Transcription != "hello from whisper" {
		t.Fatalf("unexpected transcription %q", v.Transcription)
	}
	if ta.client.transcriptions != 1 {
		t.Fatalf("expected one Whisper call, got %d", ta.client.transcriptions)
	}
}

func TestTranscribeFailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	ta.client.transcribeErr = errors.New("whisper exploded")
	p := ta.project(t)
	v := ta.upload(t, p.ID, "")

	if _, err := ta.TranscribeVideo(ctx, v.ID); !errors.Is(err, ErrTranscription) {
		t.Fatalf("expected transcription error, got %v", err)
	}

	v, err := ta.GetVideo(ctx, v.ID)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if v.TranscriptionStatus != TranscriptionFailed || v.TranscriptionError == "" {
		t.Fatalf("expected failure to be stored, got %s %q", v.TranscriptionStatus, v.TranscriptionError)
	}

	if _, err := ta.WaitForTranscription(ctx, v.ID); !errors.Is(err, ErrTranscription) {
		t.Fatalf("expected wait to report the failure, got %v", err)
	}
}

func TestStartTranscriptionRunsInBackground(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ta := newTestApp(t)
	p := ta.project(t)
	v := ta.upload(t, p.ID, "")

	events := ta.Hub().Subscribe(p.ID)
	defer ta.Hub().Unsubscribe(p.ID, events)

	if err := ta.StartTranscription(ctx, v.ID); err != nil {
		t.Fatalf("StartTranscription: %v", err)
	}
	v, err := ta.WaitForTranscription(ctx, v.ID)
	if err != nil {
		t.Fatalf("WaitForTranscription: %v", err)
	}
	if v.Transcription != "hello from whisper" {
		t.Fatalf("unexpected transcription %q", v.Transcription)
	}

	for {
		select {
		case ev := <-events:
			if ev.Kind == EventTranscriptDone && ev.EntityID == v.ID {
				return
			}
		case <-ctx.Done():
			t.Fatal("expected a transcription.completed event")
		}
	}
}

func TestGenerateRequiresTranscription(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	p := ta.project(t)
	v := ta.upload(t, p.ID, "")

	a, err := ta.AddAgent(ctx, v.ID, AgentTypeTitle, nil)
	if err != nil {
		t.Fatalf("AddAgent: %v", err)
	}
	if _, err := ta.GenerateAgent(ctx, a.ID); !errors.Is(err, ErrTranscriptionMissing) {
		t.Fatalf("expected ErrTranscriptionMissing, got %v", err)
	}
	if len(ta.client.chats) != 0 {
		t.Fatal("expected no model call without a transcription")
	}
}

func TestAddAgentConnectsVideo(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	p := ta.project(t)
	v := ta.upload(t, p.ID, "")

	a, err := ta.AddAgent(ctx, v.ID, AgentTypeDescription, &Position{X: 40, Y: 80})
	if err != nil {
		t.Fatalf("AddAgent: %v", err)
	}
	if a.ProjectID != p.ID || a.Status != AgentIdle {
		t.Fatalf("unexpected agent %+v", a)
	}

	canvas, err := ta.GetCanvas(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetCanvas: %v", err)
	}
	n, ok := canvas.Node(AgentNodeID(a.ID))
	if !ok || n.Position != (Position{X: 40, Y: 80}) {
		t.Fatalf("expected agent node at requested position, got %+v", n)
	}
	up := canvas.Upstream(AgentNodeID(a.ID))
	if len(up) != 1 || up[0].ID != VideoNodeID(v.ID) {
		t.Fatalf("expected agent to be fed by its video, got %+v", up)
	}

	if _, err := ta.AddAgent(ctx, v.ID, AgentType("podcast"), nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected unknown type to be rejected, got %v", err)
	}
}

func TestAddAgentLeavesNothingWhenCanvasFails(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	p := ta.project(t)
	v := ta.upload(t, p.ID, "")

	if _, err := ta.store.db.ExecContext(ctx,
		`UPDATE canvas_states SET nodes_json = 'not json' WHERE project_id = ?`, p.ID); err != nil {
		t.Fatalf("corrupting canvas: %v", err)
	}

	if _, err := ta.AddAgent(ctx, v.ID, AgentTypeTitle, nil); err == nil {
		t.Fatal("expected AddAgent to fail on an unreadable canvas")
	}
	agents, err := ta.ListAgents(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if len(agents) != 0 {
		t.Fatalf("expected no orphan agents, got %d", len(agents))
	}
}

func TestDisconnect(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	p := ta.project(t)
	v := ta.upload(t, p.ID, "")

	title, err := ta.AddAgent(ctx, v.ID, AgentTypeTitle, nil)
	if err != nil {
		t.Fatalf("AddAgent: %v", err)
	}
	desc, err := ta.AddAgent(ctx, v.ID, AgentTypeDescription, nil)
	if err != nil {
		t.Fatalf("AddAgent: %v", err)
	}

	videoEdge := edgeID(VideoNodeID(v.ID), AgentNodeID(title.ID))
	if err := ta.Disconnect(ctx, p.ID, videoEdge); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected the video edge to be kept, got %v", err)
	}

	edge, err := ta.Connect(ctx, p.ID, AgentNodeID(title.ID), AgentNodeID(desc.ID))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := ta.Disconnect(ctx, p.ID, edge.ID); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	canvas, err := ta.GetCanvas(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetCanvas: %v", err)
	}
	if canvas.hasEdge(AgentNodeID(title.ID), AgentNodeID(desc.ID)) {
		t.Fatal("expected disconnected edge to stay removed")
	}
	if !canvas.hasEdge(VideoNodeID(v.ID), AgentNodeID(title.ID)) {
		t.Fatal("expected video edge to remain")
	}
	stored, err := ta.GetAgent(ctx, desc.ID)
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if len(stored.Connections) != 0 {
		t.Fatalf("expected no upstream agents after disconnect, got %v", stored.Connections)
	}
}

func TestGenerateUsesConnectedDrafts(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	p := ta.project(t)
	v := ta.transcribed(t, p.ID)

	if err := ta.SaveProfile(ctx, &Profile{ChannelName: "Gopher Weekly", Niche: "Go programming"}); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}

	title, err := ta.AddAgent(ctx, v.ID, AgentTypeTitle, nil)
	if err != nil {
		t.Fatal(err)
	}
	desc, err := ta.AddAgent(ctx, v.ID, AgentTypeDescription, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ta.Connect(ctx, p.ID, AgentNodeID(title.ID), AgentNodeID(desc.ID)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	title, err = ta.GenerateAgent(ctx, title.ID)
	if err != nil {
		t.Fatalf("GenerateAgent(title): %v", err)
	}
	if title.Status != AgentReady || title.Draft == "" {
		t.Fatalf("unexpected title agent %+v", title)
	}

	if _, err := ta.GenerateAgent(ctx, desc.ID); err != nil {
		t.Fatalf("GenerateAgent(description): %v", err)
	}
	prompt := ta.client.lastUserPrompt()
	for _, want := range []string{title.Draft, "Gopher Weekly", "hello from whisper"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("expected prompt to contain %q, got:\n%s", want, prompt)
		}
	}

	stored, err := ta.GetAgent(ctx, desc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.Connections) != 1 || stored.Connections[0] != title.ID {
		t.Fatalf("expected description connections to mirror the canvas, got %v", stored.Connections)
	}
}

func TestRefineContinuesHistory(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	p := ta.project(t)
	v := ta.transcribed(t, p.ID)

	a, err := ta.AddAgent(ctx, v.ID, AgentTypeTweets, nil)
	if err != nil {
		t.Fatal(err)
	}
	first, err := ta.GenerateAgent(ctx, a.ID)
	if err != nil {
		t.Fatalf("GenerateAgent: %v", err)
	}

	if _, err := ta.RefineAgent(ctx, a.ID, "  "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected empty feedback to be rejected, got %v", err)
	}

	refined, err := ta.RefineAgent(ctx, a.ID, "make it shorter")
	if err != nil {
		t.Fatalf("RefineAgent: %v", err)
	}
	if refined.Draft == first.Draft {
		t.Fatal("expected a new draft")
	}
	if len(refined.ChatHistory) != 4 {
		t.Fatalf("expected 4 history messages, got %d", len(refined.ChatHistory))
	}

	// system, previous exchange, new request
	msgs := ta.client.chats[len(ta.client.chats)-1]
	if len(msgs) != 4 {
		t.Fatalf("expected history to be replayed, got %d messages", len(msgs))
	}
	if !strings.Contains(msgs[3].Content, "make it shorter") || !strings.Contains(msgs[3].Content, first.Draft) {
		t.Fatalf("expected refinement prompt to carry feedback and previous draft, got:\n%s", msgs[3].Content)
	}
}

func TestGenerateThumbnailStoresImage(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	p := ta.project(t)
	v := ta.transcribed(t, p.ID)

	a, err := ta.AddAgent(ctx, v.ID, AgentTypeThumbnail, nil)
	if err != nil {
		t.Fatal(err)
	}
	a, err = ta.GenerateAgent(ctx, a.ID)
	if err != nil {
		t.Fatalf("GenerateAgent: %v", err)
	}
	if a.ThumbnailKey == "" {
		t.Fatal("expected thumbnail key")
	}
	if len(ta.client.imagePrompts) != 1 || ta.client.imagePrompts[0] != a.Draft {
		t.Fatalf("expected the draft to be used as image prompt, got %v", ta.client.imagePrompts)
	}

	rc, err := ta.OpenMedia(ctx, a.ThumbnailKey)
	if err != nil {
		t.Fatalf("OpenMedia: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(data, ta.client.image) {
		t.Fatalf("unexpected thumbnail bytes %q", data)
	}

	old := a.ThumbnailKey
	a, err = ta.GenerateAgent(ctx, a.ID)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if a.ThumbnailKey == old {
		t.Fatal("expected a new thumbnail key")
	}
	if _, err := ta.OpenMedia(ctx, old); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected old thumbnail to be removed, got %v", err)
	}
}

func TestGenerateFailureMarksAgent(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	p := ta.project(t)
	v := ta.transcribed(t, p.ID)

	a, err := ta.AddAgent(ctx, v.ID, AgentTypeTitle, nil)
	if err != nil {
		t.Fatal(err)
	}
	ta.client.chatErr = Wrap(ErrAI, "chat", errors.New("model unavailable"))
	if _, err := ta.GenerateAgent(ctx, a.ID); !errors.Is(err, ErrAI) {
		t.Fatalf("expected AI error, got %v", err)
	}
	a, err = ta.GetAgent(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != AgentError {
		t.Fatalf("expected error status, got %s", a.Status)
	}
}

func TestGenerateAllFollowsCanvasOrder(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	p := ta.project(t)
	v := ta.transcribed(t, p.ID)

	title, err := ta.AddAgent(ctx, v.ID, AgentTypeTitle, nil)
	if err != nil {
		t.Fatal(err)
	}
	tweets, err := ta.AddAgent(ctx, v.ID, AgentTypeTweets, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ta.Connect(ctx, p.ID, AgentNodeID(title.ID), AgentNodeID(tweets.ID)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	agents, err := ta.GenerateAll(ctx, p.ID)
	if err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("expected 2 generated agents, got %d", len(agents))
	}

	title, err = ta.GetAgent(ctx, title.ID)
	if err != nil {
		t.Fatal(err)
	}
	prompt := ta.client.lastUserPrompt()
	if !strings.Contains(prompt, title.Draft) {
		t.Fatalf("expected the downstream agent to run last with the title draft, got:\n%s", prompt)
	}
}

func TestDeleteVideoCascades(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	p := ta.project(t)
	v := ta.upload(t, p.ID, "")
	keep := ta.upload(t, p.ID, "")

	a, err := ta.AddAgent(ctx, v.ID, AgentTypeTitle, nil)
	if err != nil {
		t.Fatal(err)
	}
	other, err := ta.AddAgent(ctx, keep.ID, AgentTypeTweets, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ta.Connect(ctx, p.ID, AgentNodeID(a.ID), AgentNodeID(other.ID)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := ta.DeleteVideo(ctx, v.ID); err != nil {
		t.Fatalf("DeleteVideo: %v", err)
	}

	if _, err := ta.GetAgent(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected agent to be deleted, got %v", err)
	}
	canvas, err := ta.GetCanvas(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := canvas.Node(VideoNodeID(v.ID)); ok {
		t.Fatal("expected video node to be removed")
	}
	if _, ok := canvas.Node(AgentNodeID(a.ID)); ok {
		t.Fatal("expected agent node to be removed")
	}
	for _, e := range canvas.Edges {
		if e.Source == AgentNodeID(a.ID) {
			t.Fatalf("expected edges from removed agent to be dropped, got %+v", e)
		}
	}

	other, err = ta.GetAgent(ctx, other.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(other.Connections) != 0 {
		t.Fatalf("expected connection to deleted agent to be dropped, got %v", other.Connections)
	}
	if FileExists(filepath.Join(ta.mediaDir, filepath.FromSlash(v.StorageKey))) {
		t.Fatal("expected media file to be deleted")
	}
}

func TestAppScopesRecordsToUser(t *testing.T) {
	ta := newTestApp(t)
	p := ta.project(t)
	v := ta.upload(t, p.ID, "")

	bob := WithUserID(context.Background(), "bob")
	if _, err := ta.GetProject(bob, p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected project to be hidden from bob, got %v", err)
	}
	if _, err := ta.GetVideo(bob, v.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected video to be hidden from bob, got %v", err)
	}
	if _, err := ta.AddAgent(bob, v.ID, AgentTypeTitle, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected bob not to add agents to alice's video, got %v", err)
	}
	if _, err := ta.OpenMedia(bob, v.StorageKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected bob not to read alice's media, got %v", err)
	}
	projects, err := ta.ListProjects(bob)
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 0 {
		t.Fatalf("expected no projects for bob, got %d", len(projects))
	}
}

func TestPreparedUploadFlow(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	p := ta.project(t)

	body := []byte("video body")
	v, uploadURL, err := ta.PrepareUpload(ctx, p.ID, "", "clip.mov", int64(len(body)))
	if err != nil {
		t.Fatalf("PrepareUpload: %v", err)
	}
	if v.Title != "clip" || v.TranscriptionStatus != TranscriptionUploading {
		t.Fatalf("unexpected pending video %+v", v)
	}
	if uploadURL != "/api/files/"+v.StorageKey {
		t.Fatalf("unexpected upload URL %q", uploadURL)
	}

	if _, err := ta.TranscribeVideo(ctx, v.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected transcription of a pending upload to be rejected, got %v", err)
	}
	if err := ta.PutUploadedFile(ctx, "projects/"+p.ID+"/other.mov", bytes.NewReader(body), int64(len(body)), "video/quicktime"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected unknown key to be rejected, got %v", err)
	}
	bob := WithUserID(ctx, "bob")
	if err := ta.PutUploadedFile(bob, v.StorageKey, bytes.NewReader(body), int64(len(body)), "video/quicktime"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected other user to be rejected, got %v", err)
	}
	if err := ta.PutUploadedFile(ctx, v.StorageKey, bytes.NewReader(body), 3, "video/quicktime"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected size mismatch to be rejected, got %v", err)
	}

	if err := ta.PutUploadedFile(ctx, v.StorageKey, bytes.NewReader(body), int64(len(body)), "video/quicktime"); err != nil {
		t.Fatalf("PutUploadedFile: %v", err)
	}
	v, err = ta.CompleteUpload(ctx, v.ID)
	if err != nil {
		t.Fatalf("CompleteUpload: %v", err)
	}
	if v.TranscriptionStatus != TranscriptionIdle {
		t.Fatalf("expected idle after completing, got %s", v.TranscriptionStatus)
	}
	if err := ta.PutUploadedFile(ctx, v.StorageKey, bytes.NewReader(body), int64(len(body)), "video/quicktime"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected second upload to be rejected, got %v", err)
	}
}

func TestSaveCanvasRejectsUnknownNodes(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	p := ta.project(t)
	ta.upload(t, p.ID, "")

	canvas, err := ta.GetCanvas(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	canvas.Nodes = append(canvas.Nodes, Node{ID: "video-ghost", Type: NodeTypeVideo, Data: NodeData{RefID: "ghost"}})
	if err := ta.SaveCanvas(ctx, p.ID, canvas); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected unknown node to be rejected, got %v", err)
	}
}

func TestCanvasExportImport(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	p := ta.project(t)
	v := ta.upload(t, p.ID, "")

	var buf bytes.Buffer
	if err := ta.ExportCanvas(ctx, p.ID, &buf); err != nil {
		t.Fatalf("ExportCanvas: %v", err)
	}
	if !strings.Contains(buf.String(), VideoNodeID(v.ID)) {
		t.Fatalf("expected export to contain the video node, got:\n%s", buf.String())
	}

	moved := strings.Replace(buf.String(), "zoom: 1", "zoom: 2", 1)
	c, err := ta.ImportCanvas(ctx, p.ID, strings.NewReader(moved))
	if err != nil {
		t.Fatalf("ImportCanvas: %v", err)
	}
	if c.Viewport.Zoom != 2 {
		t.Fatalf("expected imported zoom 2, got %v", c.Viewport.Zoom)
	}

	if _, err := ta.ImportCanvas(ctx, p.ID, strings.NewReader("nodes: [")); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected malformed YAML to be rejected, got %v", err)
	}
}

func TestAutosaverPersistsLatestSnapshot(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	p := ta.project(t)
	v := ta.upload(t, p.ID, "")

	canvas, err := ta.GetCanvas(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	autosave := ta.NewAutosaver(ctx, p.ID)
	for i := range 5 {
		if err := canvas.MoveNode(VideoNodeID(v.ID), Position{X: float64(i), Y: 7}); err != nil {
			t.Fatal(err)
		}
		autosave.Trigger(canvas)
	}
	if err := autosave.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	v, err = ta.GetVideo(ctx, v.ID)
	if err != nil {
		t.Fatal(err)
	}
	if v.Position != (Position{X: 4, Y: 7}) {
		t.Fatalf("expected last snapshot position mirrored to the video, got %+v", v.Position)
	}
}
