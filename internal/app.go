package internal

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// App holds the application state and dependencies
type App struct {
	store         *Store
	files         FileStorage
	audio         *Audio
	ai            *AI
	promptManager *PromptManager
	scraper       *Scraper
	hub           *Hub
	metrics       *Metrics
	config        *Config
	ui            UIManager
	cmdRunner     CommandRunner

	transcriber *Transcriber
	generator   *Generator
}

// NewApp initializes the application. The store and file storage are opened
// from config unless supplied as options.
func NewApp(ctx context.Context, config *Config, options ...AppOption) (*App, error) {
	app := &App{
		config: config,
		hub:    NewHub(),
	}

	// Apply any custom options
	for _, option := range options {
		option(app)
	}

	if app.ui == nil {
		app.ui = NewUIManager(config.Verbose, config.Quiet)
	}
	if app.cmdRunner == nil {
		app.cmdRunner = &DefaultCommandRunner{}
	}
	if app.audio == nil {
		app.audio = NewAudio(app.cmdRunner, config.TempDir, config.Verbose)
	}
	if app.ai == nil {
		app.ai = NewAIWithKey(config.OpenAIAPIKey, app.audio, AIOptions{
			ChatModel:         config.ChatModel,
			ImageModel:        config.ImageModel,
			WhisperLimit:      WhisperLimit,
			Timeout:           config.GenerationTimeout,
			RequestsPerMinute: config.LLMRequestsPerMinute,
			Verbose:           config.Verbose,
		})
	}
	if app.promptManager == nil {
		app.promptManager = NewPromptManager(config.ConfigDir, config.Prompt, config.MaxTranscriptChars)
	}
	if app.scraper == nil {
		app.scraper = NewScraper(config.ScrapeAPIURL, config.ScrapeAPIKey)
	}
	if app.store == nil {
		if err := EnsureDirs(config.DataDir); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		store, err := OpenStore(config.DBPath)
		if err != nil {
			return nil, err
		}
		app.store = store
	}
	if app.files == nil {
		files, err := NewFileStorage(ctx, config)
		if err != nil {
			app.store.Close()
			return nil, err
		}
		app.files = files
	}
	if app.metrics != nil {
		app.hub.OnDrop(func(Event) { app.metrics.eventDropped() })
	}

	app.transcriber = NewTranscriber(app.store, app.files, app.ai, app.audio, app.hub, app.metrics, app.ui, config.TempDir, config.WhisperTimeout)
	app.generator = NewGenerator(app.store, app.files, app.ai, app.promptManager, app.hub, app.metrics, app.ui, config.MaxConcurrentGenerations)

	return app, nil
}

// AppOption customizes App creation
type AppOption func(*App)

// WithStore sets an already opened store
func WithStore(store *Store) AppOption {
	return func(a *App) {
		a.store = store
	}
}

// WithFileStorage sets the media storage backend
func WithFileStorage(files FileStorage) AppOption {
	return func(a *App) {
		a.files = files
	}
}

// WithAudio sets a custom audio processor
func WithAudio(audio *Audio) AppOption {
	return func(a *App) {
		a.audio = audio
	}
}

// WithAI sets a custom AI processor
func WithAI(ai *AI) AppOption {
	return func(a *App) {
		a.ai = ai
	}
}

// WithCommandRunner sets the runner used for ffmpeg and ffprobe
func WithCommandRunner(runner CommandRunner) AppOption {
	return func(a *App) {
		a.cmdRunner = runner
	}
}

// WithScraper sets the web scraper
func WithScraper(scraper *Scraper) AppOption {
	return func(a *App) {
		a.scraper = scraper
	}
}

// WithMetrics enables Prometheus instrumentation
func WithMetrics(metrics *Metrics) AppOption {
	return func(a *App) {
		a.metrics = metrics
	}
}

// WithUI sets the user interface manager
func WithUI(ui UIManager) AppOption {
	return func(a *App) {
		a.ui = ui
	}
}

// SetPromptManager sets a new prompt manager
func (app *App) SetPromptManager(pm *PromptManager) {
	app.promptManager = pm
	app.generator.SetPromptManager(pm)
}

// Close releases the database
func (app *App) Close() error {
	return app.store.Close()
}

// Config returns the effective configuration
func (app *App) Config() *Config {
	return app.config
}

// Hub returns the change event hub
func (app *App) Hub() *Hub {
	return app.hub
}

// Metrics returns the metrics collectors, or nil when disabled
func (app *App) Metrics() *Metrics {
	return app.metrics
}

type userKey struct{}

// WithUserID scopes ctx to a user. Calls without a user act as the configured
// user_id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

func (app *App) userID(ctx context.Context) string {
	if id, ok := ctx.Value(userKey{}).(string); ok && id != "" {
		return id
	}
	return app.config.UserID
}

func (app *App) publish(kind EventKind, projectID, entityID string) {
	app.hub.Publish(Event{Kind: kind, ProjectID: projectID, EntityID: entityID})
}

// deleteFiles removes stored media. Failures are reported but do not fail the
// caller, since the records are already gone.
func (app *App) deleteFiles(ctx context.Context, keys []string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := app.files.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
			app.ui.Warnf("failed to delete %s: %v\n", key, err)
			LogError("deleting %s: %v", key, err)
		}
	}
}

// Projects

// CreateProject creates a draft project
func (app *App) CreateProject(ctx context.Context, title, description string) (*Project, error) {
	p, err := app.store.CreateProject(ctx, app.userID(ctx), strings.TrimSpace(title), strings.TrimSpace(description))
	if err != nil {
		return nil, err
	}
	app.publish(EventProjectUpdated, p.ID, p.ID)
	return p, nil
}

// ListProjects returns the user's projects, most recently updated first
func (app *App) ListProjects(ctx context.Context) ([]*Project, error) {
	return app.store.ListProjects(ctx, app.userID(ctx))
}

// GetProject returns one project
func (app *App) GetProject(ctx context.Context, id string) (*Project, error) {
	return app.store.GetProject(ctx, app.userID(ctx), id)
}

// ProjectUpdate lists the project fields to change. Nil fields are left alone.
type ProjectUpdate struct {
	Title       *string        `json:"title,omitempty"`
	Description *string        `json:"description,omitempty"`
	Status      *ProjectStatus `json:"status,omitempty"`
}

// UpdateProject applies a partial update
func (app *App) UpdateProject(ctx context.Context, id string, update ProjectUpdate) (*Project, error) {
	p, err := app.store.GetProject(ctx, app.userID(ctx), id)
	if err != nil {
		return nil, err
	}
	if update.Title != nil {
		p.Title = strings.TrimSpace(*update.Title)
	}
	if update.Description != nil {
		p.Description = strings.TrimSpace(*update.Description)
	}
	if update.Status != nil {
		p.Status = *update.Status
	}
	if err := app.store.UpdateProject(ctx, p); err != nil {
		return nil, err
	}
	app.publish(EventProjectUpdated, p.ID, p.ID)
	return p, nil
}

// DeleteProject removes a project, everything in it and its stored media
func (app *App) DeleteProject(ctx context.Context, id string) error {
	keys, err := app.store.DeleteProject(ctx, app.userID(ctx), id)
	if err != nil {
		return err
	}
	app.deleteFiles(ctx, keys)
	app.publish(EventProjectDeleted, id, id)
	return nil
}

// ProjectDetails is a project with everything shown on its canvas
type ProjectDetails struct {
	Project *Project `json:"project"`
	Videos  []*Video `json:"videos"`
	Agents  []*Agent `json:"agents"`
	Canvas  *Canvas  `json:"canvas"`
}

// GetProjectDetails loads a project with its videos, agents and canvas
func (app *App) GetProjectDetails(ctx context.Context, id string) (*ProjectDetails, error) {
	userID := app.userID(ctx)
	p, err := app.store.GetProject(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	canvas, videos, agents, err := app.syncedCanvas(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ProjectDetails{Project: p, Videos: videos, Agents: agents, Canvas: canvas}, nil
}

// Profile

// GetProfile returns the creator profile
func (app *App) GetProfile(ctx context.Context) (*Profile, error) {
	return app.store.GetProfile(ctx, app.userID(ctx))
}

// SaveProfile creates or replaces the creator profile
func (app *App) SaveProfile(ctx context.Context, p *Profile) error {
	p.UserID = app.userID(ctx)
	p.ChannelName = strings.TrimSpace(p.ChannelName)
	if err := app.store.UpsertProfile(ctx, p); err != nil {
		return err
	}
	app.publish(EventProfileUpdated, "", p.UserID)
	return nil
}

// ImportProfileContext scrapes pageURL and stores a summary of it as the
// profile context. The URL is added to the profile links.
func (app *App) ImportProfileContext(ctx context.Context, pageURL string) (*Profile, error) {
	p, err := app.store.GetProfile(ctx, app.userID(ctx))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, Wrap(ErrValidation, "import profile", fmt.Errorf("create a profile first with `youpac profile set`"))
		}
		return nil, err
	}

	page, err := app.scraper.Scrape(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	p.Context = page.ProfileContext()
	if !slices.Contains(p.Links, pageURL) {
		p.Links = append(p.Links, pageURL)
	}
	if err := app.SaveProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
