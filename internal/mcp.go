package internal

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer wraps the MCP server and application dependencies
type MCPServer struct {
	app       *App
	mcpServer *server.MCPServer
}

// NewMCPServer creates a new MCP server instance
func NewMCPServer(app *App, version string) *MCPServer {
	mcpServer := server.NewMCPServer(
		"youpac",
		version,
		server.WithToolCapabilities(true),
	)

	s := &MCPServer{
		app:       app,
		mcpServer: mcpServer,
	}

	s.registerTools()

	return s
}

func (s *MCPServer) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_projects",
		mcp.WithDescription("List the creator's projects with their ids, titles and status, most recently updated first."),
	), s.handleListProjects)

	s.mcpServer.AddTool(mcp.NewTool("list_agents",
		mcp.WithDescription("List the videos and content agents of a project. Agent ids are needed for generate_agent_content."),
		mcp.WithString("project_id",
			mcp.Description("Project id from list_projects"),
			mcp.Required(),
		),
	), s.handleListAgents)

	s.mcpServer.AddTool(mcp.NewTool("get_transcription",
		mcp.WithDescription("Get the transcription of an uploaded video. Fails if the video has not been transcribed yet."),
		mcp.WithString("video_id",
			mcp.Description("Video id from list_agents"),
			mcp.Required(),
		),
	), s.handleGetTranscription)

	s.mcpServer.AddTool(mcp.NewTool("transcribe_video",
		mcp.WithDescription("Transcribe an uploaded video. Uses its captions file when one was uploaded, otherwise OpenAI Whisper (PAID). Always ask the user for confirmation before calling this tool."),
		mcp.WithString("video_id",
			mcp.Description("Video id from list_agents"),
			mcp.Required(),
		),
	), s.handleTranscribe)

	s.mcpServer.AddTool(mcp.NewTool("generate_agent_content",
		mcp.WithDescription("Generate content for an agent (title, description, thumbnail or social posts) from its video's transcription, the creator profile and connected agents. Pass feedback to refine the current draft instead."),
		mcp.WithString("agent_id",
			mcp.Description("Agent id from list_agents"),
			mcp.Required(),
		),
		mcp.WithString("feedback",
			mcp.Description("Optional refinement instructions for the current draft"),
		),
	), s.handleGenerate)
}

func (s *MCPServer) handleListProjects(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := s.app.ListProjects(ctx)
	if err != nil {
		MCPLogError("list_projects: %v", err)
		return mcp.NewToolResultErrorFromErr("failed to list projects", err), nil
	}
	if len(projects) == 0 {
		return mcp.NewToolResultText("No projects yet."), nil
	}

	var buf strings.Builder
	for _, p := range projects {
		fmt.Fprintf(&buf, "%s\t%s\t%s\tupdated %s\n", p.ID, p.Title, p.Status, p.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return mcp.NewToolResultText(buf.String()), nil
}

func (s *MCPServer) handleListAgents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := request.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError("project_id parameter is required and must be a string"), nil
	}

	videos, err := s.app.ListVideos(ctx, projectID)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("failed to list videos", err), nil
	}
	agents, err := s.app.ListAgents(ctx, projectID)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("failed to list agents", err), nil
	}

	var buf strings.Builder
	for _, v := range videos {
		fmt.Fprintf(&buf, "Video %s: %s (transcription %s)\n", v.ID, v.Title, v.TranscriptionStatus)
		for _, a := range agents {
			if a.VideoID != v.ID {
				continue
			}
			fmt.Fprintf(&buf, "  Agent %s: %s [%s]\n", a.ID, a.Type, a.Status)
		}
	}
	if buf.Len() == 0 {
		return mcp.NewToolResultText("Project has no videos."), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}

func (s *MCPServer) handleGetTranscription(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	videoID, err := request.RequireString("video_id")
	if err != nil {
		return mcp.NewToolResultError("video_id parameter is required and must be a string"), nil
	}

	v, err := s.app.GetVideo(ctx, videoID)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("failed to load video", err), nil
	}
	if v.Transcription == "" {
		return mcp.NewToolResultError(fmt.Sprintf("video is not transcribed (status: %s) - use transcribe_video first", v.TranscriptionStatus)), nil
	}
	return mcp.NewToolResultText(v.Transcription), nil
}

func (s *MCPServer) handleTranscribe(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	videoID, err := request.RequireString("video_id")
	if err != nil {
		return mcp.NewToolResultError("video_id parameter is required and must be a string"), nil
	}

	MCPLogInfo("transcribing video %s", videoID)
	v, err := s.app.TranscribeVideo(ctx, videoID)
	if err != nil {
		MCPLogError("transcribe %s: %v", videoID, err)
		return mcp.NewToolResultErrorFromErr(UserMessage(err), err), nil
	}
	return mcp.NewToolResultText(v.Transcription), nil
}

func (s *MCPServer) handleGenerate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID, err := request.RequireString("agent_id")
	if err != nil {
		return mcp.NewToolResultError("agent_id parameter is required and must be a string"), nil
	}
	feedback := strings.TrimSpace(request.GetString("feedback", ""))

	MCPLogDebug("generating agent %s (refine: %t)", agentID, feedback != "")
	var agent *Agent
	if feedback != "" {
		agent, err = s.app.RefineAgent(ctx, agentID, feedback)
	} else {
		agent, err = s.app.GenerateAgent(ctx, agentID)
	}
	if err != nil {
		MCPLogError("generate %s: %v", agentID, err)
		return mcp.NewToolResultErrorFromErr(UserMessage(err), err), nil
	}

	content, err := s.app.ExportAgent(ctx, agent.ID)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("failed to export agent content", err), nil
	}
	return mcp.NewToolResultText(content), nil
}

// Start starts the MCP server using the specified transport
func (s *MCPServer) Start(ctx context.Context, transport string, port int) error {
	if transport == "http" {
		httpServer := server.NewStreamableHTTPServer(s.mcpServer)
		addr := fmt.Sprintf(":%d", port)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		MCPLogInfo("serving MCP over http on %s", addr)
		return httpServer.Start(addr)
	}

	MCPLogInfo("serving MCP over stdio")
	return server.ServeStdio(s.mcpServer)
}

// GetServer returns the underlying MCP server for advanced configuration
func (s *MCPServer) GetServer() *server.MCPServer {
	return s.mcpServer
}
