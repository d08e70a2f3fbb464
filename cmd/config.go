package cmd

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// effectiveConfig is the printable form of the loaded settings. Secrets are
// reported as set or unset only.
type effectiveConfig struct {
	ChatModel                string `toml:"chat_model"`
	ImageModel               string `toml:"image_model"`
	MaxTranscriptChars       int    `toml:"max_transcript_chars"`
	GenerationTimeout        string `toml:"generation_timeout"`
	WhisperTimeout           string `toml:"whisper_timeout"`
	PollInterval             string `toml:"poll_interval"`
	AutosaveDelay            string `toml:"autosave_delay"`
	MaxConcurrentGenerations int    `toml:"max_concurrent_generations"`
	LLMRequestsPerMinute     int    `toml:"llm_requests_per_minute"`
	MaxUploadSize            int64  `toml:"max_upload_size"`
	UserID                   string `toml:"user_id"`
	ListenAddr               string `toml:"listen_addr"`
	StorageBackend           string `toml:"storage_backend"`
	S3Bucket                 string `toml:"s3_bucket,omitempty"`
	S3Region                 string `toml:"s3_region,omitempty"`
	S3Endpoint               string `toml:"s3_endpoint,omitempty"`
	ScrapeAPIURL             string `toml:"scrape_api_url"`
	Prompt                   string `toml:"prompt,omitempty"`

	Secrets map[string]bool `toml:"secrets"`
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Print the configuration after merging config.toml, environment variables
and defaults, in config.toml format. API keys are only reported as set or unset.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		view := effectiveConfig{
			ChatModel:                config.ChatModel,
			ImageModel:               config.ImageModel,
			MaxTranscriptChars:       config.MaxTranscriptChars,
			GenerationTimeout:        config.GenerationTimeout.String(),
			WhisperTimeout:           config.WhisperTimeout.String(),
			PollInterval:             config.PollInterval.String(),
			AutosaveDelay:            config.AutosaveDelay.String(),
			MaxConcurrentGenerations: config.MaxConcurrentGenerations,
			LLMRequestsPerMinute:     config.LLMRequestsPerMinute,
			MaxUploadSize:            config.MaxUploadSize,
			UserID:                   config.UserID,
			ListenAddr:               config.ListenAddr,
			StorageBackend:           config.StorageBackend,
			S3Bucket:                 config.S3Bucket,
			S3Region:                 config.S3Region,
			S3Endpoint:               config.S3Endpoint,
			ScrapeAPIURL:             config.ScrapeAPIURL,
			Prompt:                   config.Prompt,
			Secrets: map[string]bool{
				"openai_api_key": config.OpenAIAPIKey != "",
				"s3_access_key":  config.S3AccessKey != "",
				"s3_secret_key":  config.S3SecretKey != "",
				"scrape_api_key": config.ScrapeAPIKey != "",
			},
		}

		data, err := toml.Marshal(view)
		if err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
