package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// maxHistoryMessages bounds how much refinement conversation is replayed
const maxHistoryMessages = 10

// Generator produces agent drafts from a video transcription, the creator
// profile and the outputs of connected agents
type Generator struct {
	store       *Store
	files       FileStorage
	ai          *AI
	prompts     *PromptManager
	hub         *Hub
	metrics     *Metrics
	ui          UIManager
	concurrency int
}

// NewGenerator wires a generator. hub and metrics may be nil.
func NewGenerator(store *Store, files FileStorage, ai *AI, prompts *PromptManager, hub *Hub, metrics *Metrics, ui UIManager, concurrency int) *Generator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Generator{
		store:       store,
		files:       files,
		ai:          ai,
		prompts:     prompts,
		hub:         hub,
		metrics:     metrics,
		ui:          ui,
		concurrency: concurrency,
	}
}

// SetPromptManager replaces the prompt source
func (g *Generator) SetPromptManager(pm *PromptManager) {
	g.prompts = pm
}

// Generate writes a new draft for an agent. A non-empty feedback refines the
// current draft and continues the agent's chat history.
func (g *Generator) Generate(ctx context.Context, userID, agentID, feedback string) (*Agent, error) {
	agent, err := g.store.GetAgent(ctx, userID, agentID)
	if err != nil {
		return nil, err
	}
	video, err := g.store.GetVideo(ctx, userID, agent.VideoID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(video.Transcription) == "" {
		return nil, ErrTranscriptionMissing
	}

	profile, err := g.store.GetProfile(ctx, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	upstream, err := g.upstreamAgents(ctx, userID, agent)
	if err != nil {
		return nil, err
	}

	if err := g.store.SetAgentStatus(ctx, userID, agentID, AgentGenerating); err != nil {
		return nil, err
	}
	g.publish(EventAgentUpdated, agent)

	start := time.Now()
	err = g.generate(ctx, agent, video, profile, upstream, strings.TrimSpace(feedback))
	g.metrics.observeGeneration(agent.Type, start, err)
	if err != nil {
		saveCtx := context.WithoutCancel(ctx)
		if serr := g.store.SetAgentStatus(saveCtx, userID, agentID, AgentError); serr != nil {
			LogError("recording generation failure for %s: %v", agentID, serr)
		}
		g.publish(EventAgentUpdated, agent)
		return nil, err
	}

	g.publish(EventAgentUpdated, agent)
	return agent, nil
}

func (g *Generator) generate(ctx context.Context, agent *Agent, video *Video, profile *Profile, upstream []*Agent, feedback string) error {
	data := g.prompts.BuildPromptData(agent.Type, video, profile, upstream)
	if feedback != "" {
		data.Feedback = feedback
		data.PreviousDraft = agent.Draft
	}

	prompt, err := g.prompts.CreatePrompt(data)
	if err != nil {
		return err
	}

	messages := []ChatMessage{{Role: "system", Content: SystemPrompt(agent.Type)}}
	if feedback != "" {
		messages = append(messages, recentHistory(agent.ChatHistory)...)
	}
	messages = append(messages, ChatMessage{Role: "user", Content: prompt})

	g.ui.Verbose("Generating %s for %s (%d upstream)\n", strings.ToLower(agent.Type.String()), video.Title, len(data.Connected))

	content, err := g.ai.Complete(ctx, messages)
	if err != nil {
		return err
	}
	if content == "" {
		return Wrap(ErrAI, "generate", fmt.Errorf("model returned an empty response"))
	}

	if agent.Type == AgentTypeThumbnail {
		if err := g.storeThumbnail(ctx, agent, content); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	request := feedback
	if request == "" {
		request = "Generate " + strings.ToLower(agent.Type.String())
	}
	agent.ChatHistory = append(agent.ChatHistory,
		ChatMessage{Role: "user", Content: request, Timestamp: now},
		ChatMessage{Role: "assistant", Content: content, Timestamp: now},
	)
	agent.Draft = content
	agent.Status = AgentReady

	return g.store.UpdateAgent(ctx, agent)
}

// storeThumbnail renders the image prompt and replaces the agent's thumbnail
func (g *Generator) storeThumbnail(ctx context.Context, agent *Agent, imagePrompt string) error {
	img, err := g.ai.Image(ctx, imagePrompt)
	if err != nil {
		return err
	}

	key := path.Join("projects", agent.ProjectID, "thumbnails",
		agent.ID+"-"+strconv.FormatInt(time.Now().UnixNano(), 36)+".png")
	if err := g.files.Put(ctx, key, bytes.NewReader(img), int64(len(img)), "image/png"); err != nil {
		return err
	}

	old := agent.ThumbnailKey
	agent.ThumbnailKey = key
	if old != "" {
		if err := g.files.Delete(ctx, old); err != nil {
			g.ui.Warnf("removing old thumbnail %s: %v\n", old, err)
		}
	}
	return nil
}

// upstreamAgents returns the agents feeding into agent on the project canvas.
// Without a canvas node the stored connections are used.
func (g *Generator) upstreamAgents(ctx context.Context, userID string, agent *Agent) ([]*Agent, error) {
	canvas, err := g.store.LoadCanvas(ctx, userID, agent.ProjectID)
	if err != nil {
		return nil, err
	}

	var ids []string
	if _, ok := canvas.Node(AgentNodeID(agent.ID)); ok {
		for _, n := range canvas.Upstream(AgentNodeID(agent.ID)) {
			if n.Type == NodeTypeAgent {
				ids = append(ids, n.Data.RefID)
			}
		}
	} else {
		ids = agent.Connections
	}

	upstream := make([]*Agent, 0, len(ids))
	for _, id := range ids {
		a, err := g.store.GetAgent(ctx, userID, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		upstream = append(upstream, a)
	}
	return upstream, nil
}

// GenerateAll regenerates every agent in a project in canvas order. Agents on
// the same level run concurrently; later levels see the fresh drafts of
// earlier ones. Failures are collected and do not stop other agents.
func (g *Generator) GenerateAll(ctx context.Context, userID, projectID string) ([]*Agent, error) {
	canvas, err := g.store.LoadCanvas(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	videos, err := g.store.ListVideos(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	agents, err := g.store.ListAgents(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	canvas.Sync(videos, agents)

	levels, err := canvas.TopoLevels()
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		results []*Agent
		errs    []error
	)

	for _, level := range levels {
		var eg errgroup.Group
		eg.SetLimit(g.concurrency)

		for _, node := range level {
			if node.Type != NodeTypeAgent {
				continue
			}
			agentID := node.Data.RefID
			eg.Go(func() error {
				a, err := g.Generate(ctx, userID, agentID, "")
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, fmt.Errorf("agent %s: %w", agentID, err))
					return nil
				}
				results = append(results, a)
				return nil
			})
		}
		_ = eg.Wait()

		if err := ctx.Err(); err != nil {
			return results, err
		}
	}

	return results, errors.Join(errs...)
}

func recentHistory(history []ChatMessage) []ChatMessage {
	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}
	out := make([]ChatMessage, 0, len(history))
	for _, m := range history {
		if m.Role == "user" || m.Role == "assistant" {
			out = append(out, m)
		}
	}
	return out
}

func (g *Generator) publish(kind EventKind, a *Agent) {
	if g.hub == nil {
		return
	}
	g.hub.Publish(Event{Kind: kind, ProjectID: a.ProjectID, EntityID: a.ID})
}
