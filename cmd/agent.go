package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rtzll/youpac/internal"
)

var agentCmd = &cobra.Command{
	Use:     "agent",
	Aliases: []string{"agents", "a"},
	Short:   "Add content agents to videos and generate drafts",
}

var agentAddCmd = &cobra.Command{
	Use:   "add <video-id> <type>",
	Short: "Add an agent to a video",
	Long: `Add a content agent to a video. The agent is placed on the project canvas
and connected to its video.

Agent types: title, description, thumbnail, tweets`,
	Example: `  youpac agent add <video-id> title
  youpac agent add <video-id> thumbnail --at 520,300`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentType, err := internal.ParseAgentType(args[1])
		if err != nil {
			return err
		}
		pos, err := internal.PositionFlag(cmd)
		if err != nil {
			return err
		}

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		a, err := app.AddAgent(cmd.Context(), args[0], agentType, pos)
		if err != nil {
			return err
		}
		fmt.Println(a.ID)
		return nil
	},
}

var agentListCmd = &cobra.Command{
	Use:     "list <project-id>",
	Aliases: []string{"ls"},
	Short:   "List the agents of a project",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		agents, err := app.ListAgents(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(agents) == 0 {
			fmt.Println("No agents in this project")
			return nil
		}

		rows := make([][]string, 0, len(agents))
		for _, a := range agents {
			rows = append(rows, []string{
				a.ID, internal.ShortID(a.VideoID), a.Type.String(), string(a.Status), preview(a.Draft, 40), humanize.Time(a.UpdatedAt),
			})
		}
		renderTable(os.Stdout, []string{"ID", "Video", "Type", "Status", "Draft", "Updated"}, rows)
		return nil
	},
}

var agentShowCmd = &cobra.Command{
	Use:   "show <agent-id>",
	Short: "Show an agent's draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		md, err := app.ExportAgent(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printMarkdown(md)
	},
}

var agentGenerateCmd = &cobra.Command{
	Use:   "generate <agent-id>",
	Short: "Generate a fresh draft for an agent",
	Long: `Generate a draft from the video transcription, your creator profile and
the drafts of any agents connected to this one. Thumbnail agents also render
an image.`,
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

		a, err := app.GenerateAgent(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		md, err := app.ExportAgent(cmd.Context(), a.ID)
		if err != nil {
			return err
		}
		return printMarkdown(md)
	},
}

var agentRefineCmd = &cobra.Command{
	Use:   "refine <agent-id> <feedback>",
	Short: "Revise an agent's draft with feedback",
	Example: `  youpac agent refine <agent-id> "shorter, and mention the benchmark results"`,
	Args:    cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := internal.ValidateOpenAIRequirements(cmd, config); err != nil {
			return err
		}

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		a, err := app.RefineAgent(cmd.Context(), args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		md, err := app.ExportAgent(cmd.Context(), a.ID)
		if err != nil {
			return err
		}
		return printMarkdown(md)
	},
}

var agentEditCmd = &cobra.Command{
	Use:   "edit <agent-id> [file]",
	Short: "Replace an agent's draft with your own text",
	Long:  "Replace an agent's draft with the contents of a file, or stdin when no file is given.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			content []byte
			err     error
		)
		if len(args) == 2 {
			content, err = os.ReadFile(args[1])
		} else {
			content, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return fmt.Errorf("reading draft: %w", err)
		}

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		a, err := app.UpdateAgentDraft(cmd.Context(), args[0], string(content))
		if err != nil {
			return err
		}
		fmt.Printf("Updated %s draft\n", a.Type)
		return nil
	},
}

var agentExportCmd = &cobra.Command{
	Use:   "export <agent-id>",
	Short: "Export an agent's content as markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outputFile, _ := cmd.Flags().GetString("output")

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		md, err := app.ExportAgent(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if outputFile != "" {
			return internal.WriteTextFile(outputFile, md)
		}
		fmt.Print(md)
		return nil
	},
}

var agentDeleteCmd = &cobra.Command{
	Use:     "delete <agent-id>",
	Aliases: []string{"rm"},
	Short:   "Delete an agent",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.DeleteAgent(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("Deleted agent")
		return nil
	},
}

// printMarkdown renders markdown on a terminal and prints it raw otherwise
func printMarkdown(md string) error {
	if !isTerminal() {
		fmt.Print(md)
		return nil
	}
	rendered, err := internal.RenderMarkdown(md)
	if err != nil {
		return err
	}
	fmt.Print(rendered)
	return nil
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

func init() {
	internal.AddPositionFlag(agentAddCmd)
	internal.AddOpenAIFlags(agentGenerateCmd)
	internal.AddOpenAIFlags(agentRefineCmd)
	agentExportCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")

	agentCmd.AddCommand(agentAddCmd, agentListCmd, agentShowCmd, agentGenerateCmd, agentRefineCmd, agentEditCmd, agentExportCmd, agentDeleteCmd)
	rootCmd.AddCommand(agentCmd)
}
