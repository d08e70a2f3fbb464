package internal

import (
	"context"
	"fmt"
	"io"
	"slices"

	"gopkg.in/yaml.v3"
)

// syncedCanvas loads a project canvas and repairs it against the stored
// videos and agents
func (app *App) syncedCanvas(ctx context.Context, projectID string) (*Canvas, []*Video, []*Agent, error) {
	userID := app.userID(ctx)
	canvas, err := app.store.LoadCanvas(ctx, userID, projectID)
	if err != nil {
		return nil, nil, nil, err
	}
	videos, err := app.store.ListVideos(ctx, userID, projectID)
	if err != nil {
		return nil, nil, nil, err
	}
	agents, err := app.store.ListAgents(ctx, userID, projectID)
	if err != nil {
		return nil, nil, nil, err
	}
	if canvas.Sync(videos, agents) {
		if err := app.store.SaveCanvas(ctx, userID, canvas); err != nil {
			return nil, nil, nil, err
		}
	}
	return canvas, videos, agents, nil
}

// GetCanvas returns the project canvas
func (app *App) GetCanvas(ctx context.Context, projectID string) (*Canvas, error) {
	canvas, _, _, err := app.syncedCanvas(ctx, projectID)
	return canvas, err
}

// SaveCanvas persists a canvas snapshot sent by a client. Nodes must refer to
// records in the project; positions are mirrored onto those records and the
// agents' connections follow the edges.
func (app *App) SaveCanvas(ctx context.Context, projectID string, c *Canvas) error {
	userID := app.userID(ctx)
	c.ProjectID = projectID
	c.SetViewport(c.Viewport)
	if err := c.Validate(); err != nil {
		return err
	}

	videos, err := app.store.ListVideos(ctx, userID, projectID)
	if err != nil {
		return err
	}
	agents, err := app.store.ListAgents(ctx, userID, projectID)
	if err != nil {
		return err
	}

	// node type and data always come from the records
	known := make(map[string]Node, len(videos)+len(agents))
	for _, v := range videos {
		known[VideoNodeID(v.ID)] = videoNode(v)
	}
	for _, a := range agents {
		known[AgentNodeID(a.ID)] = agentNode(a)
	}
	for i, n := range c.Nodes {
		canonical, ok := known[n.ID]
		if !ok {
			return Wrap(ErrValidation, "save canvas", fmt.Errorf("node %s does not belong to project", n.ID))
		}
		c.Nodes[i].Type = canonical.Type
		c.Nodes[i].Data = canonical.Data
	}
	for _, e := range c.Edges {
		target, _ := c.Node(e.Target)
		if target.Type != NodeTypeAgent {
			return Wrap(ErrValidation, "save canvas", fmt.Errorf("edge %s must target an agent", e.ID))
		}
		if source, _ := c.Node(e.Source); source.Type == NodeTypeVideo && source.Data.RefID != target.Data.VideoID {
			return Wrap(ErrValidation, "save canvas", fmt.Errorf("edge %s connects an agent to another video", e.ID))
		}
	}
	c.Sync(videos, agents)

	if err := app.store.SaveCanvas(ctx, userID, c); err != nil {
		return err
	}
	if err := app.mirrorCanvas(ctx, c, videos, agents); err != nil {
		return err
	}
	app.publish(EventCanvasUpdated, projectID, "")
	return nil
}

// mirrorCanvas copies node positions and agent edges back to the records
func (app *App) mirrorCanvas(ctx context.Context, c *Canvas, videos []*Video, agents []*Agent) error {
	for _, v := range videos {
		n, ok := c.Node(VideoNodeID(v.ID))
		if !ok || n.Position == v.Position {
			continue
		}
		v.Position = n.Position
		if err := app.store.UpdateVideo(ctx, v); err != nil {
			return err
		}
	}

	for _, a := range agents {
		n, ok := c.Node(AgentNodeID(a.ID))
		if !ok {
			continue
		}
		connections := agentConnections(c, a.ID)
		if n.Position == a.Position && slices.Equal(connections, a.Connections) {
			continue
		}
		a.Position = n.Position
		a.Connections = connections
		if err := app.store.UpdateAgent(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// agentConnections lists the ids of agents feeding into agentID
func agentConnections(c *Canvas, agentID string) []string {
	connections := []string{}
	for _, n := range c.Upstream(AgentNodeID(agentID)) {
		if n.Type == NodeTypeAgent {
			connections = append(connections, n.Data.RefID)
		}
	}
	return connections
}

// MoveNode changes a node's position
func (app *App) MoveNode(ctx context.Context, projectID, nodeID string, pos Position) error {
	canvas, err := app.GetCanvas(ctx, projectID)
	if err != nil {
		return err
	}
	if err := canvas.MoveNode(nodeID, pos); err != nil {
		return err
	}
	return app.SaveCanvas(ctx, projectID, canvas)
}

// Connect feeds the output of source into the target agent
func (app *App) Connect(ctx context.Context, projectID, source, target string) (Edge, error) {
	canvas, err := app.GetCanvas(ctx, projectID)
	if err != nil {
		return Edge{}, err
	}
	edge, err := canvas.Connect(source, target)
	if err != nil {
		return Edge{}, err
	}
	if err := app.SaveCanvas(ctx, projectID, canvas); err != nil {
		return Edge{}, err
	}
	return edge, nil
}

// Disconnect removes an edge
func (app *App) Disconnect(ctx context.Context, projectID, edgeID string) error {
	canvas, err := app.GetCanvas(ctx, projectID)
	if err != nil {
		return err
	}
	if _, err := canvas.Disconnect(edgeID); err != nil {
		return err
	}
	return app.SaveCanvas(ctx, projectID, canvas)
}

// SetViewport stores the canvas pan and zoom
func (app *App) SetViewport(ctx context.Context, projectID string, vp Viewport) (Viewport, error) {
	canvas, err := app.GetCanvas(ctx, projectID)
	if err != nil {
		return Viewport{}, err
	}
	canvas.SetViewport(vp)
	if err := app.store.SaveCanvas(ctx, app.userID(ctx), canvas); err != nil {
		return Viewport{}, err
	}
	return canvas.Viewport, nil
}

// NewAutosaver returns a debouncer that saves canvas snapshots for a project.
// The caller's user scope is kept for the background saves.
func (app *App) NewAutosaver(ctx context.Context, projectID string) *Debouncer {
	userID := app.userID(ctx)
	d := NewDebouncer(app.config.AutosaveDelay, func(saveCtx context.Context, c *Canvas) error {
		return app.SaveCanvas(WithUserID(saveCtx, userID), projectID, c)
	})
	d.OnError(func(err error) {
		LogError("autosave canvas %s: %v", projectID, err)
	})
	return d
}

// ExportCanvas writes the project canvas as YAML
func (app *App) ExportCanvas(ctx context.Context, projectID string, w io.Writer) error {
	canvas, err := app.GetCanvas(ctx, projectID)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(canvas); err != nil {
		return fmt.Errorf("encoding canvas: %w", err)
	}
	return enc.Close()
}

// ImportCanvas replaces the project canvas layout with one read from YAML.
// Nodes are matched by id, so an export can be re-imported after editing.
func (app *App) ImportCanvas(ctx context.Context, projectID string, r io.Reader) (*Canvas, error) {
	var c Canvas
	if err := yaml.NewDecoder(r).Decode(&c); err != nil {
		return nil, Wrap(ErrValidation, "import canvas", err)
	}
	if c.Nodes == nil {
		c.Nodes = []Node{}
	}
	if c.Edges == nil {
		c.Edges = []Edge{}
	}
	if err := app.SaveCanvas(ctx, projectID, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
