package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rtzll/youpac/internal"
)

var (
	config *internal.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "youpac",
	Short: "Turn videos into YouTube titles, descriptions, thumbnails and posts",
	Long: `YouPac AI turns an uploaded video into publishing content.

Videos are transcribed from an uploaded captions file or with OpenAI Whisper.
Each video sits on a project canvas next to content agents (title,
description, thumbnail and social posts) that generate drafts from the
transcription, your creator profile and any agents connected to them.

Use the CLI directly or run 'youpac serve' for the HTTP and websocket API.`,
	Example: `  # Create a project and upload a video (captions next to it are picked up)
  youpac project create "Go generics deep dive"
  youpac video upload <project-id> ./episode.mp4

  # Transcribe it
  youpac video transcribe <video-id>

  # Add agents, connect title to thumbnail, then generate everything
  youpac agent add <video-id> title
  youpac agent add <video-id> thumbnail
  youpac canvas connect <project-id> <title-agent-id> <thumbnail-agent-id>
  youpac canvas generate <project-id>`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		config = internal.InitConfig(configFile)

		if err := internal.EnsureDirs(config.ConfigDir, config.DataDir, config.CacheDir); err != nil {
			return fmt.Errorf("creating XDG directories: %w", err)
		}
		if err := internal.EnsureDefaultConfig(config.ConfigDir); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to ensure default config: %v\n", err)
		}
		if err := internal.EnsureDefaultPrompts(config.ConfigDir); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to ensure default prompts: %v\n", err)
		}

		if err := internal.HandleVerboseFlag(cmd, config); err != nil {
			return err
		}
		internal.InitFileLogging(config)
		return config.Validate()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal. Cleaning up and shutting down...")

		// Cancel the main context so servers and long operations stop
		cancel()

		cleanupDone := make(chan struct{})
		go func() {
			if config != nil {
				if err := internal.CleanupTempDir(config.TempDir); err != nil {
					fmt.Fprintf(os.Stderr, "Error cleaning up temporary files: %v\n", err)
				}
			}
			close(cleanupDone)
		}()

		select {
		case <-cleanupDone:
		case <-time.After(3 * time.Second):
			fmt.Fprintln(os.Stderr, "Warning: Cleanup timed out")
		}

		// A second signal forces exit
		<-sigCh
		os.Exit(1)
	}()

	rootCmd.SetContext(ctx)

	return rootCmd.Execute()
}

// openApp builds the application for a command and applies the --prompt flag
func openApp(cmd *cobra.Command, options ...internal.AppOption) (*internal.App, error) {
	app, err := internal.NewApp(cmd.Context(), config, options...)
	if err != nil {
		return nil, err
	}
	if err := internal.HandlePromptFlag(cmd, app); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output for debugging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress progress output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default is $XDG_CONFIG_HOME/youpac/config.toml)")
}
