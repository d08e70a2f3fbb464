package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rtzll/youpac/internal"
)

var projectCmd = &cobra.Command{
	Use:     "project",
	Aliases: []string{"projects", "p"},
	Short:   "Manage projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a project",
	Example: `  youpac project create "Go generics deep dive"
  youpac project create "Weekly vlog" --description "Episode 12"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		title := ""
		if len(args) == 1 {
			title = args[0]
		}
		description, _ := cmd.Flags().GetString("description")

		p, err := app.CreateProject(cmd.Context(), title, description)
		if err != nil {
			return err
		}
		fmt.Println(p.ID)
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List projects",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		projects, err := app.ListProjects(cmd.Context())
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			fmt.Println("No projects yet. Create one with `youpac project create`.")
			return nil
		}

		rows := make([][]string, 0, len(projects))
		for _, p := range projects {
			rows = append(rows, []string{p.ID, p.Title, string(p.Status), humanize.Time(p.UpdatedAt)})
		}
		renderTable(os.Stdout, []string{"ID", "Title", "Status", "Updated"}, rows)
		return nil
	},
}

var projectShowCmd = &cobra.Command{
	Use:   "show <project-id>",
	Short: "Show a project with its videos and agents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		details, err := app.GetProjectDetails(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		p := details.Project
		fmt.Printf("%s (%s)\n", p.Title, p.Status)
		if p.Description != "" {
			fmt.Println(p.Description)
		}
		fmt.Printf("Created %s, updated %s\n\n", humanize.Time(p.CreatedAt), humanize.Time(p.UpdatedAt))

		if len(details.Videos) == 0 {
			fmt.Println("No videos. Upload one with `youpac video upload`.")
			return nil
		}

		videoRows := make([][]string, 0, len(details.Videos))
		for _, v := range details.Videos {
			videoRows = append(videoRows, []string{
				v.ID, v.Title, internal.FormatDuration(v.Duration), internal.HumanSize(v.FileSize), string(v.TranscriptionStatus),
			})
		}
		renderTable(os.Stdout, []string{"Video", "Title", "Duration", "Size", "Transcription"}, videoRows, 2, 3)

		if len(details.Agents) > 0 {
			agentRows := make([][]string, 0, len(details.Agents))
			for _, a := range details.Agents {
				agentRows = append(agentRows, []string{
					a.ID, internal.ShortID(a.VideoID), a.Type.String(), string(a.Status), strconv.Itoa(len(a.Connections)),
				})
			}
			renderTable(os.Stdout, []string{"Agent", "Video", "Type", "Status", "Inputs"}, agentRows, 4)
		}

		fmt.Printf("Canvas: %d nodes, %d edges\n", len(details.Canvas.Nodes), len(details.Canvas.Edges))
		return nil
	},
}

var projectUpdateCmd = &cobra.Command{
	Use:   "update <project-id>",
	Short: "Change a project's title, description or status",
	Example: `  youpac project update <id> --title "New title"
  youpac project update <id> --status archived`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var update internal.ProjectUpdate
		if cmd.Flags().Changed("title") {
			title, _ := cmd.Flags().GetString("title")
			update.Title = &title
		}
		if cmd.Flags().Changed("description") {
			description, _ := cmd.Flags().GetString("description")
			update.Description = &description
		}
		if cmd.Flags().Changed("status") {
			raw, _ := cmd.Flags().GetString("status")
			status := internal.ProjectStatus(raw)
			if !status.Valid() {
				return fmt.Errorf("unknown status %q (expected draft, active or archived)", raw)
			}
			update.Status = &status
		}
		if update.Title == nil && update.Description == nil && update.Status == nil {
			return fmt.Errorf("nothing to update: pass --title, --description or --status")
		}

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		p, err := app.UpdateProject(cmd.Context(), args[0], update)
		if err != nil {
			return err
		}
		fmt.Printf("Updated %s (%s)\n", p.Title, p.Status)
		return nil
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:     "delete <project-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a project with its videos, agents and media",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		p, err := app.GetProject(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("yes")
		if !force && !internal.AskUser(fmt.Sprintf("Delete project %q and all its media?", p.Title)) {
			fmt.Println("Aborted")
			return nil
		}

		if err := app.DeleteProject(cmd.Context(), p.ID); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", p.Title)
		return nil
	},
}

func init() {
	projectCreateCmd.Flags().StringP("description", "d", "", "Project description")

	projectUpdateCmd.Flags().String("title", "", "New title")
	projectUpdateCmd.Flags().StringP("description", "d", "", "New description")
	projectUpdateCmd.Flags().String("status", "", "New status (draft, active, archived)")

	projectDeleteCmd.Flags().BoolP("yes", "y", false, "Skip confirmation")

	projectCmd.AddCommand(projectCreateCmd, projectListCmd, projectShowCmd, projectUpdateCmd, projectDeleteCmd)
	rootCmd.AddCommand(projectCmd)
}
