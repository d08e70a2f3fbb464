package internal

import (
	"fmt"
	"slices"
	"time"
)

// NodeType distinguishes video nodes from agent nodes on the canvas
type NodeType string

const (
	NodeTypeVideo NodeType = "video"
	NodeTypeAgent NodeType = "agent"
)

const (
	minZoom = 0.1
	maxZoom = 4.0
)

// Position is a point on the canvas
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// NodeData links a node to the record it renders
type NodeData struct {
	RefID     string    `json:"refId" yaml:"ref_id"`
	VideoID   string    `json:"videoId,omitempty" yaml:"video_id,omitempty"`
	AgentType AgentType `json:"agentType,omitempty" yaml:"agent_type,omitempty"`
	Label     string    `json:"label,omitempty" yaml:"label,omitempty"`
}

// Node is a video or agent on the canvas
type Node struct {
	ID       string   `json:"id" yaml:"id"`
	Type     NodeType `json:"type" yaml:"type"`
	Position Position `json:"position" yaml:"position"`
	Data     NodeData `json:"data" yaml:"data"`
}

// Edge feeds the output of Source into Target
type Edge struct {
	ID     string `json:"id" yaml:"id"`
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

// Viewport is the pan and zoom of the canvas
type Viewport struct {
	X    float64 `json:"x" yaml:"x"`
	Y    float64 `json:"y" yaml:"y"`
	Zoom float64 `json:"zoom" yaml:"zoom"`
}

// Canvas is the persisted graph of a project
type Canvas struct {
	ProjectID string    `json:"projectId" yaml:"project_id"`
	Nodes     []Node    `json:"nodes" yaml:"nodes"`
	Edges     []Edge    `json:"edges" yaml:"edges"`
	Viewport  Viewport  `json:"viewport" yaml:"viewport"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updated_at"`
}

// NewCanvas returns an empty canvas at the default zoom
func NewCanvas(projectID string) *Canvas {
	return &Canvas{
		ProjectID: projectID,
		Nodes:     []Node{},
		Edges:     []Edge{},
		Viewport:  Viewport{Zoom: 1},
	}
}

// VideoNodeID returns the canvas node id for a video record
func VideoNodeID(videoID string) string { return "video-" + videoID }

// AgentNodeID returns the canvas node id for an agent record
func AgentNodeID(agentID string) string { return "agent-" + agentID }

func edgeID(source, target string) string { return "e-" + source + "-" + target }

// Clone returns a deep copy
func (c *Canvas) Clone() *Canvas {
	out := *c
	out.Nodes = slices.Clone(c.Nodes)
	out.Edges = slices.Clone(c.Edges)
	if out.Nodes == nil {
		out.Nodes = []Node{}
	}
	if out.Edges == nil {
		out.Edges = []Edge{}
	}
	return &out
}

// Node looks up a node by id
func (c *Canvas) Node(id string) (Node, bool) {
	i := c.nodeIndex(id)
	if i < 0 {
		return Node{}, false
	}
	return c.Nodes[i], true
}

func (c *Canvas) nodeIndex(id string) int {
	return slices.IndexFunc(c.Nodes, func(n Node) bool { return n.ID == id })
}

// AddNode places a new node on the canvas
func (c *Canvas) AddNode(n Node) error {
	if n.ID == "" || n.Data.RefID == "" {
		return Wrap(ErrValidation, "add node", fmt.Errorf("node id and ref id are required"))
	}
	if n.Type != NodeTypeVideo && n.Type != NodeTypeAgent {
		return Wrap(ErrValidation, "add node", fmt.Errorf("unknown node type %q", n.Type))
	}
	if n.Type == NodeTypeAgent && n.Data.VideoID == "" {
		return Wrap(ErrValidation, "add node", fmt.Errorf("agent node %s has no video", n.ID))
	}
	if c.nodeIndex(n.ID) >= 0 {
		return Wrap(ErrValidation, "add node", fmt.Errorf("node %s already exists", n.ID))
	}
	c.Nodes = append(c.Nodes, n)
	return nil
}

// RemoveNode deletes a node and every edge touching it. Removing a video node
// also removes the agent nodes that belong to that video. The removed nodes
// are returned.
func (c *Canvas) RemoveNode(id string) ([]Node, error) {
	target, ok := c.Node(id)
	if !ok {
		return nil, Wrap(ErrNotFound, "remove node", fmt.Errorf("node %s", id))
	}

	removed := map[string]bool{id: true}
	if target.Type == NodeTypeVideo {
		for _, n := range c.Nodes {
			if n.Type == NodeTypeAgent && n.Data.VideoID == target.Data.RefID {
				removed[n.ID] = true
			}
		}
	}

	var gone []Node
	kept := c.Nodes[:0]
	for _, n := range c.Nodes {
		if removed[n.ID] {
			gone = append(gone, n)
			continue
		}
		kept = append(kept, n)
	}
	c.Nodes = kept

	c.Edges = slices.DeleteFunc(c.Edges, func(e Edge) bool {
		return removed[e.Source] || removed[e.Target]
	})

	return gone, nil
}

// MoveNode updates a node's position
func (c *Canvas) MoveNode(id string, pos Position) error {
	i := c.nodeIndex(id)
	if i < 0 {
		return Wrap(ErrNotFound, "move node", fmt.Errorf("node %s", id))
	}
	c.Nodes[i].Position = pos
	return nil
}

// Connect adds an edge from source to target. Targets must be agents; sources
// may be videos or agents. Self loops, duplicates and cycles are rejected.
func (c *Canvas) Connect(source, target string) (Edge, error) {
	src, ok := c.Node(source)
	if !ok {
		return Edge{}, Wrap(ErrNotFound, "connect", fmt.Errorf("source node %s", source))
	}
	dst, ok := c.Node(target)
	if !ok {
		return Edge{}, Wrap(ErrNotFound, "connect", fmt.Errorf("target node %s", target))
	}
	if source == target {
		return Edge{}, Wrap(ErrValidation, "connect", fmt.Errorf("node %s cannot connect to itself", source))
	}
	if dst.Type != NodeTypeAgent {
		return Edge{}, Wrap(ErrValidation, "connect", fmt.Errorf("only agent nodes accept connections"))
	}
	if src.Type == NodeTypeVideo && dst.Data.VideoID != src.Data.RefID {
		return Edge{}, Wrap(ErrValidation, "connect", fmt.Errorf("agent %s belongs to a different video", target))
	}
	if c.hasEdge(source, target) {
		return Edge{}, Wrap(ErrValidation, "connect", fmt.Errorf("%s is already connected to %s", source, target))
	}
	if c.reachable(target, source) {
		return Edge{}, ErrCycle
	}

	e := Edge{ID: edgeID(source, target), Source: source, Target: target}
	c.Edges = append(c.Edges, e)
	return e, nil
}

// Disconnect removes an edge by id. The edge from an agent's own video
// cannot be removed.
func (c *Canvas) Disconnect(id string) (Edge, error) {
	i := slices.IndexFunc(c.Edges, func(e Edge) bool { return e.ID == id })
	if i < 0 {
		return Edge{}, Wrap(ErrNotFound, "disconnect", fmt.Errorf("edge %s", id))
	}
	e := c.Edges[i]
	if src, ok := c.Node(e.Source); ok && src.Type == NodeTypeVideo {
		return Edge{}, Wrap(ErrValidation, "disconnect", fmt.Errorf("agent %s always takes input from its video", e.Target))
	}
	c.Edges = slices.Delete(c.Edges, i, i+1)
	return e, nil
}

// SetViewport stores the pan and zoom, clamping zoom to the supported range
func (c *Canvas) SetViewport(v Viewport) {
	if v.Zoom <= 0 {
		v.Zoom = 1
	}
	v.Zoom = max(minZoom, min(maxZoom, v.Zoom))
	c.Viewport = v
}

// Upstream returns the nodes with an edge into id, in edge order
func (c *Canvas) Upstream(id string) []Node {
	var out []Node
	for _, e := range c.Edges {
		if e.Target != id {
			continue
		}
		if n, ok := c.Node(e.Source); ok {
			out = append(out, n)
		}
	}
	return out
}

// TopoLevels groups nodes so every node appears after all of its sources.
// Nodes within a level do not depend on each other.
func (c *Canvas) TopoLevels() ([][]Node, error) {
	indegree := make(map[string]int, len(c.Nodes))
	for _, n := range c.Nodes {
		indegree[n.ID] = 0
	}
	for _, e := range c.Edges {
		if _, ok := indegree[e.Target]; ok {
			indegree[e.Target]++
		}
	}

	var levels [][]Node
	var current []Node
	for _, n := range c.Nodes {
		if indegree[n.ID] == 0 {
			current = append(current, n)
		}
	}

	seen := 0
	for len(current) > 0 {
		levels = append(levels, current)
		seen += len(current)
		var next []Node
		for _, n := range current {
			for _, e := range c.Edges {
				if e.Source != n.ID {
					continue
				}
				indegree[e.Target]--
				if indegree[e.Target] == 0 {
					if t, ok := c.Node(e.Target); ok {
						next = append(next, t)
					}
				}
			}
		}
		current = next
	}

	if seen != len(c.Nodes) {
		return nil, ErrCycle
	}
	return levels, nil
}

// Validate checks a canvas received from a client before it is persisted
func (c *Canvas) Validate() error {
	ids := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if ids[n.ID] {
			return Wrap(ErrValidation, "validate canvas", fmt.Errorf("duplicate node %s", n.ID))
		}
		ids[n.ID] = true
	}

	edges := make(map[[2]string]bool, len(c.Edges))
	for _, e := range c.Edges {
		if !ids[e.Source] || !ids[e.Target] {
			return Wrap(ErrValidation, "validate canvas", fmt.Errorf("edge %s references a missing node", e.ID))
		}
		if e.Source == e.Target {
			return Wrap(ErrValidation, "validate canvas", fmt.Errorf("edge %s is a self loop", e.ID))
		}
		key := [2]string{e.Source, e.Target}
		if edges[key] {
			return Wrap(ErrValidation, "validate canvas", fmt.Errorf("duplicate edge %s", e.ID))
		}
		edges[key] = true
	}

	_, err := c.TopoLevels()
	return err
}

// Sync makes the canvas agree with the stored records: every video and agent
// gets a node, nodes for deleted records are dropped, and each agent has an
// edge from its video. It reports whether anything changed.
func (c *Canvas) Sync(videos []*Video, agents []*Agent) bool {
	changed := false
	want := make(map[string]bool, len(videos)+len(agents))

	for _, v := range videos {
		id := VideoNodeID(v.ID)
		want[id] = true
		if c.nodeIndex(id) < 0 {
			c.Nodes = append(c.Nodes, videoNode(v))
			changed = true
		}
	}
	for _, a := range agents {
		id := AgentNodeID(a.ID)
		want[id] = true
		if c.nodeIndex(id) < 0 {
			c.Nodes = append(c.Nodes, agentNode(a))
			changed = true
		}
	}

	for _, n := range slices.Clone(c.Nodes) {
		if !want[n.ID] {
			if _, err := c.RemoveNode(n.ID); err == nil {
				changed = true
			}
		}
	}

	for _, a := range agents {
		source := VideoNodeID(a.VideoID)
		target := AgentNodeID(a.ID)
		if _, ok := c.Node(source); !ok {
			continue
		}
		if !c.hasEdge(source, target) {
			c.Edges = append(c.Edges, Edge{ID: edgeID(source, target), Source: source, Target: target})
			changed = true
		}
	}

	return changed
}

// Reconcile merges a snapshot pushed by the server with local state. Entities
// listed in pending have local changes that have not been saved yet, so the
// local version wins (and absence locally means it was deleted). Everything
// else follows the remote snapshot. The viewport is always local.
func Reconcile(remote, local *Canvas, pending map[string]bool) *Canvas {
	out := remote.Clone()
	out.Viewport = local.Viewport

	for id := range pending {
		ln, inLocal := local.Node(id)
		ri := out.nodeIndex(id)
		switch {
		case inLocal && ri >= 0:
			out.Nodes[ri] = ln
		case inLocal:
			out.Nodes = append(out.Nodes, ln)
		case ri >= 0:
			out.Nodes = slices.Delete(out.Nodes, ri, ri+1)
		}

		li := slices.IndexFunc(local.Edges, func(e Edge) bool { return e.ID == id })
		re := slices.IndexFunc(out.Edges, func(e Edge) bool { return e.ID == id })
		switch {
		case li >= 0 && re >= 0:
			out.Edges[re] = local.Edges[li]
		case li >= 0:
			out.Edges = append(out.Edges, local.Edges[li])
		case re >= 0:
			out.Edges = slices.Delete(out.Edges, re, re+1)
		}
	}

	// drop edges left dangling by local deletions
	out.Edges = slices.DeleteFunc(out.Edges, func(e Edge) bool {
		return out.nodeIndex(e.Source) < 0 || out.nodeIndex(e.Target) < 0
	})

	return out
}

func (c *Canvas) hasEdge(source, target string) bool {
	return slices.ContainsFunc(c.Edges, func(e Edge) bool {
		return e.Source == source && e.Target == target
	})
}

// reachable reports whether to can be reached from from by following edges
func (c *Canvas) reachable(from, to string) bool {
	visited := map[string]bool{}
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == to {
			return true
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		for _, e := range c.Edges {
			if e.Source == cur {
				stack = append(stack, e.Target)
			}
		}
	}
	return false
}

func videoNode(v *Video) Node {
	return Node{
		ID:       VideoNodeID(v.ID),
		Type:     NodeTypeVideo,
		Position: v.Position,
		Data:     NodeData{RefID: v.ID, Label: v.Title},
	}
}

func agentNode(a *Agent) Node {
	return Node{
		ID:       AgentNodeID(a.ID),
		Type:     NodeTypeAgent,
		Position: a.Position,
		Data:     NodeData{RefID: a.ID, VideoID: a.VideoID, AgentType: a.Type, Label: a.Type.String()},
	}
}
