package cmd

import (
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
)

// cpCmd copies agent content or a transcription to the system clipboard
var cpCmd = &cobra.Command{
	Use:   "cp <agent-id>",
	Short: "Copy an agent's draft to the clipboard",
	Example: `  # Copy a generated title
  youpac cp <agent-id>

  # Copy a video transcription
  youpac cp --transcription <video-id>`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		transcription, _ := cmd.Flags().GetBool("transcription")

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		var content, what string
		if transcription {
			v, err := app.GetVideo(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if v.Transcription == "" {
				return fmt.Errorf("%s has no transcription yet (status: %s)", v.Title, v.TranscriptionStatus)
			}
			content, what = v.Transcription, "Transcription"
		} else {
			a, err := app.GetAgent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.Draft == "" {
				return fmt.Errorf("agent has no draft yet, run `youpac agent generate %s`", a.ID)
			}
			content, what = a.Draft, a.Type.String()
		}

		if err := clipboard.WriteAll(content); err != nil {
			return fmt.Errorf("copying to clipboard: %w", err)
		}
		if !config.Quiet {
			fmt.Printf("%s copied to clipboard\n", what)
		}
		return nil
	},
}

func init() {
	cpCmd.Flags().Bool("transcription", false, "Copy a video transcription instead of an agent draft")
	rootCmd.AddCommand(cpCmd)
}
