package cmd

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rtzll/youpac/internal"
)

var videoCmd = &cobra.Command{
	Use:     "video",
	Aliases: []string{"videos", "v"},
	Short:   "Upload, transcribe and manage videos",
}

var videoUploadCmd = &cobra.Command{
	Use:   "upload <project-id> <file>",
	Short: "Upload a video into a project",
	Long: `Upload a video into a project and place it on the project canvas.

A captions file (.srt or .vtt) with the same base name as the video is
uploaded with it and used for transcription instead of Whisper.`,
	Example: `  youpac video upload <project-id> ./episode.mp4
  youpac video upload <project-id> ./episode.mp4 --captions ./episode.en.vtt --title "Episode 12"
  youpac video upload <project-id> ./episode.mp4 --transcribe`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		captions, _ := cmd.Flags().GetString("captions")
		transcribe, _ := cmd.Flags().GetBool("transcribe")

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		v, err := app.UploadVideoFile(cmd.Context(), args[0], args[1], title, captions)
		if err != nil {
			return err
		}
		if !config.Quiet {
			fmt.Printf("Uploaded %s (%s, %s)\n", v.Title, internal.HumanSize(v.FileSize), internal.FormatDuration(v.Duration))
		}

		if transcribe {
			v, err = app.TranscribeVideo(cmd.Context(), v.ID)
			if err != nil {
				return err
			}
			if !config.Quiet {
				fmt.Printf("Transcribed %s\n", v.Title)
			}
		}

		fmt.Println(v.ID)
		return nil
	},
}

var videoListCmd = &cobra.Command{
	Use:     "list <project-id>",
	Aliases: []string{"ls"},
	Short:   "List the videos of a project",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		videos, err := app.ListVideos(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(videos) == 0 {
			fmt.Println("No videos in this project")
			return nil
		}

		rows := make([][]string, 0, len(videos))
		for _, v := range videos {
			rows = append(rows, []string{
				v.ID, v.Title, internal.FormatDuration(v.Duration), internal.HumanSize(v.FileSize),
				string(v.TranscriptionStatus), humanize.Time(v.CreatedAt),
			})
		}
		renderTable(os.Stdout, []string{"ID", "Title", "Duration", "Size", "Transcription", "Uploaded"}, rows, 2, 3)
		return nil
	},
}

var videoTranscribeCmd = &cobra.Command{
	Use:   "transcribe <video-id>",
	Short: "Transcribe a video from its captions or with Whisper",
	Long: `Transcribe a video. An uploaded captions file is used when present;
otherwise the audio is extracted with ffmpeg and sent to OpenAI Whisper
(costs money).

By default the transcription runs in the foreground. With --background it is
started and the command returns; use 'youpac video status --wait' to follow it.`,
	Example: `  youpac video transcribe <video-id>
  youpac video transcribe <video-id> -o transcript.txt`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		background, _ := cmd.Flags().GetBool("background")
		outputFile, _ := cmd.Flags().GetString("output")

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		if background {
			// The process must stay alive for the background job, so wait here
			if err := app.StartTranscription(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("Transcription started")
			v, err := app.WaitForTranscription(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printTranscription(v, outputFile)
		}

		v, err := app.TranscribeVideo(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printTranscription(v, outputFile)
	},
}

var videoStatusCmd = &cobra.Command{
	Use:   "status <video-id>",
	Short: "Show the transcription status of a video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wait, _ := cmd.Flags().GetBool("wait")

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		var v *internal.Video
		if wait {
			v, err = app.WaitForTranscription(cmd.Context(), args[0])
		} else {
			v, err = app.GetVideo(cmd.Context(), args[0])
		}
		if v == nil && err != nil {
			return err
		}

		fmt.Printf("%s: %s\n", v.Title, v.TranscriptionStatus)
		if v.TranscriptionError != "" {
			fmt.Printf("Error: %s\n", v.TranscriptionError)
		}
		if v.Transcription != "" {
			fmt.Printf("Transcription: %d characters\n", len(v.Transcription))
		}
		return err
	},
}

var videoRenameCmd = &cobra.Command{
	Use:   "rename <video-id> <title>",
	Short: "Rename a video",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		v, err := app.RenameVideo(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Renamed to %s\n", v.Title)
		return nil
	},
}

var videoDeleteCmd = &cobra.Command{
	Use:     "delete <video-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a video, its agents and its media",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		v, err := app.GetVideo(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("yes")
		if !force && !internal.AskUser(fmt.Sprintf("Delete video %q and its agents?", v.Title)) {
			fmt.Println("Aborted")
			return nil
		}

		if err := app.DeleteVideo(cmd.Context(), v.ID); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", v.Title)
		return nil
	},
}

func printTranscription(v *internal.Video, outputFile string) error {
	if outputFile != "" {
		return internal.WriteTextFile(outputFile, v.Transcription)
	}
	fmt.Println(v.Transcription)
	return nil
}

func init() {
	videoUploadCmd.Flags().StringP("title", "t", "", "Video title (default: file name)")
	videoUploadCmd.Flags().String("captions", "", "Captions file (.srt or .vtt)")
	videoUploadCmd.Flags().Bool("transcribe", false, "Transcribe right after uploading")

	videoTranscribeCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	videoTranscribeCmd.Flags().Bool("background", false, "Run as a background job and poll for the result")

	videoStatusCmd.Flags().BoolP("wait", "w", false, "Wait until the transcription completes or fails")

	videoDeleteCmd.Flags().BoolP("yes", "y", false, "Skip confirmation")

	videoCmd.AddCommand(videoUploadCmd, videoListCmd, videoTranscribeCmd, videoStatusCmd, videoRenameCmd, videoDeleteCmd)
	rootCmd.AddCommand(videoCmd)
}
