package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rtzll/youpac/internal"
)

var canvasCmd = &cobra.Command{
	Use:     "canvas",
	Aliases: []string{"c"},
	Short:   "Inspect and edit a project canvas",
	Long: `Inspect and edit the node graph of a project.

Nodes can be referenced by canvas node id (video-<id>, agent-<id>) or by the
plain video or agent id.`,
}

var canvasShowCmd = &cobra.Command{
	Use:   "show <project-id>",
	Short: "List canvas nodes and edges",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		c, err := app.GetCanvas(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		nodeRows := make([][]string, 0, len(c.Nodes))
		for _, n := range c.Nodes {
			nodeRows = append(nodeRows, []string{
				n.ID, string(n.Type), n.Data.Label, formatFloat(n.Position.X), formatFloat(n.Position.Y),
			})
		}
		renderTable(os.Stdout, []string{"Node", "Type", "Label", "X", "Y"}, nodeRows, 3, 4)

		if len(c.Edges) > 0 {
			edgeRows := make([][]string, 0, len(c.Edges))
			for _, e := range c.Edges {
				edgeRows = append(edgeRows, []string{e.ID, e.Source, e.Target})
			}
			renderTable(os.Stdout, []string{"Edge", "Source", "Target"}, edgeRows)
		}

		fmt.Printf("Viewport: x=%s y=%s zoom=%s\n", formatFloat(c.Viewport.X), formatFloat(c.Viewport.Y), formatFloat(c.Viewport.Zoom))
		return nil
	},
}

var canvasConnectCmd = &cobra.Command{
	Use:   "connect <project-id> <source> <target>",
	Short: "Feed the output of one node into an agent",
	Example: `  # Let the thumbnail agent see the generated title
  youpac canvas connect <project-id> <title-agent-id> <thumbnail-agent-id>`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		source, err := resolveNode(cmd.Context(), app, args[1])
		if err != nil {
			return err
		}
		target, err := resolveNode(cmd.Context(), app, args[2])
		if err != nil {
			return err
		}

		edge, err := app.Connect(cmd.Context(), args[0], source, target)
		if err != nil {
			return err
		}
		fmt.Println(edge.ID)
		return nil
	},
}

var canvasDisconnectCmd = &cobra.Command{
	Use:   "disconnect <project-id> <edge-id>",
	Short: "Remove an edge",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.Disconnect(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Println("Disconnected")
		return nil
	},
}

var canvasMoveCmd = &cobra.Command{
	Use:   "move <project-id> <node> <x,y>",
	Short: "Move a node",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		pos, err := internal.ParsePosition(args[2])
		if err != nil {
			return err
		}

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		nodeID, err := resolveNode(cmd.Context(), app, args[1])
		if err != nil {
			return err
		}
		return app.MoveNode(cmd.Context(), args[0], nodeID, pos)
	},
}

var canvasViewportCmd = &cobra.Command{
	Use:   "viewport <project-id> <x,y> [zoom]",
	Short: "Set the canvas pan and zoom",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		pos, err := internal.ParsePosition(args[1])
		if err != nil {
			return err
		}
		vp := internal.Viewport{X: pos.X, Y: pos.Y, Zoom: 1}
		if len(args) == 3 {
			vp.Zoom, err = strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid zoom %q", args[2])
			}
		}

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		vp, err = app.SetViewport(cmd.Context(), args[0], vp)
		if err != nil {
			return err
		}
		fmt.Printf("Viewport: x=%s y=%s zoom=%s\n", formatFloat(vp.X), formatFloat(vp.Y), formatFloat(vp.Zoom))
		return nil
	},
}

var canvasExportCmd = &cobra.Command{
	Use:   "export <project-id>",
	Short: "Export the canvas layout as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outputFile, _ := cmd.Flags().GetString("output")

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		if outputFile == "" {
			return app.ExportCanvas(cmd.Context(), args[0], os.Stdout)
		}
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("creating %s: %w", outputFile, err)
		}
		if err := app.ExportCanvas(cmd.Context(), args[0], f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	},
}

var canvasImportCmd = &cobra.Command{
	Use:   "import <project-id> <file>",
	Short: "Replace the canvas layout from a YAML export",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[1])
		if err != nil {
			return fmt.Errorf("opening %s: %w", args[1], err)
		}
		defer f.Close()

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		c, err := app.ImportCanvas(cmd.Context(), args[0], f)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d nodes and %d edges\n", len(c.Nodes), len(c.Edges))
		return nil
	},
}

var canvasGenerateCmd = &cobra.Command{
	Use:   "generate <project-id>",
	Short: "Generate every agent in canvas order",
	Long: `Generate drafts for every agent in the project. Agents run after the
agents connected to them, so downstream agents see fresh upstream drafts.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := internal.ValidateOpenAIRequirements(cmd, config); err != nil {
			return err
		}

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		agents, genErr := app.GenerateAll(cmd.Context(), args[0])
		rows := make([][]string, 0, len(agents))
		for _, a := range agents {
			rows = append(rows, []string{a.ID, a.Type.String(), string(a.Status), preview(a.Draft, 50)})
		}
		if len(rows) > 0 {
			renderTable(os.Stdout, []string{"Agent", "Type", "Status", "Draft"}, rows)
		}
		return genErr
	},
}

// resolveNode maps a video id, agent id or node id to a canvas node id
func resolveNode(ctx context.Context, app *internal.App, ref string) (string, error) {
	if strings.HasPrefix(ref, "video-") || strings.HasPrefix(ref, "agent-") {
		return ref, nil
	}
	if _, err := app.GetAgent(ctx, ref); err == nil {
		return internal.AgentNodeID(ref), nil
	} else if !errors.Is(err, internal.ErrNotFound) {
		return "", err
	}
	if _, err := app.GetVideo(ctx, ref); err == nil {
		return internal.VideoNodeID(ref), nil
	} else if !errors.Is(err, internal.ErrNotFound) {
		return "", err
	}
	return "", fmt.Errorf("%q is not a video or agent", ref)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func init() {
	canvasExportCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	internal.AddOpenAIFlags(canvasGenerateCmd)

	canvasCmd.AddCommand(canvasShowCmd, canvasConnectCmd, canvasDisconnectCmd, canvasMoveCmd, canvasViewportCmd,
		canvasExportCmd, canvasImportCmd, canvasGenerateCmd)
	rootCmd.AddCommand(canvasCmd)
}
