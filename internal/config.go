package internal

import (
	"context"
	"embed"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// CommandRunner executes external commands
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// DefaultCommandRunner implements CommandRunner
type DefaultCommandRunner struct{}

func (r *DefaultCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// Config holds application settings
type Config struct {
	// User configurable settings
	ChatModel                string        `toml:"chat_model"`
	ImageModel               string        `toml:"image_model"`
	MaxTranscriptChars       int           `toml:"max_transcript_chars"`
	GenerationTimeout        time.Duration `toml:"generation_timeout"`
	WhisperTimeout           time.Duration `toml:"whisper_timeout"`
	PollInterval             time.Duration `toml:"poll_interval"`
	AutosaveDelay            time.Duration `toml:"autosave_delay"`
	MaxConcurrentGenerations int           `toml:"max_concurrent_generations"`
	LLMRequestsPerMinute     int           `toml:"llm_requests_per_minute"`
	MaxUploadSize            int64         `toml:"max_upload_size"`
	UserID                   string        `toml:"user_id"`
	ListenAddr               string        `toml:"listen_addr"`
	Verbose                  bool          `toml:"verbose"`
	Quiet                    bool          `toml:"quiet"`
	LogFileEnabled           bool          `toml:"log_file_enabled"`
	OpenAIAPIKey             string        `toml:"-"`
	Prompt                   string        `toml:"prompt"`

	// Object storage
	StorageBackend string `toml:"storage_backend"`
	S3Bucket       string `toml:"s3_bucket"`
	S3Region       string `toml:"s3_region"`
	S3Endpoint     string `toml:"s3_endpoint"`
	S3AccessKey    string `toml:"-"`
	S3SecretKey    string `toml:"-"`

	// Hosted scraping service
	ScrapeAPIURL string `toml:"scrape_api_url"`
	ScrapeAPIKey string `toml:"-"`

	// Fixed XDG paths (not configurable)
	ConfigDir string `toml:"-"`
	DataDir   string `toml:"-"`
	CacheDir  string `toml:"-"`
	TempDir   string `toml:"-"`
	MediaDir  string `toml:"-"`
	DBPath    string `toml:"-"`
}

//go:embed config.toml prompts/*.txt
var defaultFS embed.FS

// WhisperLimit is the maximum file size accepted by OpenAI's Whisper API (25 MiB)
const WhisperLimit int64 = 25 << 20

// DefaultMaxUploadSize caps uploaded media files (2 GiB)
const DefaultMaxUploadSize int64 = 2 << 30

// ensureDefaultFile checks if a file exists in the specified directory
// and creates it from the embedded default if it doesn't exist
func ensureDefaultFile(configDir, embedFilename, description string) error {
	filePath := filepath.Join(configDir, embedFilename)

	if FileExists(filePath) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	defaultContent, err := defaultFS.ReadFile(embedFilename)
	if err != nil {
		return fmt.Errorf("reading embedded default %s: %w", description, err)
	}

	if err := os.WriteFile(filePath, defaultContent, 0644); err != nil {
		return fmt.Errorf("writing default %s: %w", description, err)
	}

	fmt.Fprintf(os.Stderr, "Created default %s at %s\n", description, filePath)
	return nil
}

// EnsureDefaultConfig checks if a config file exists in the XDG config directory
// and creates it from the embedded default if it doesn't exist
func EnsureDefaultConfig(configDir string) error {
	return ensureDefaultFile(configDir, "config.toml", "configuration")
}

// EnsureDefaultPrompts writes the embedded agent prompt templates into the
// config directory so users can edit them
func EnsureDefaultPrompts(configDir string) error {
	for _, agentType := range AgentTypes {
		name := promptFileName(agentType)
		if err := ensureDefaultFile(configDir, name, agentType.String()+" prompt template"); err != nil {
			return err
		}
	}
	return nil
}

// InitConfig initializes Viper and loads configuration. An explicit config
// file path takes precedence over the XDG location.
func InitConfig(configFile string) *Config {
	configDir := filepath.Join(xdg.ConfigHome, "youpac")
	dataDir := filepath.Join(xdg.DataHome, "youpac")
	cacheDir := filepath.Join(xdg.CacheHome, "youpac")

	mediaDir := filepath.Join(dataDir, "media")
	tempDir := filepath.Join(cacheDir, "temp_chunks")

	v := viper.New()

	v.SetDefault("chat_model", "gpt-4o-mini")
	v.SetDefault("image_model", "dall-e-3")
	v.SetDefault("max_transcript_chars", 12000)
	v.SetDefault("generation_timeout", 2*time.Minute)
	v.SetDefault("whisper_timeout", 10*time.Minute)
	v.SetDefault("poll_interval", 3*time.Second)
	v.SetDefault("autosave_delay", time.Second)
	v.SetDefault("max_concurrent_generations", 3)
	v.SetDefault("llm_requests_per_minute", 60)
	v.SetDefault("max_upload_size", DefaultMaxUploadSize)
	v.SetDefault("user_id", defaultUserID())
	v.SetDefault("listen_addr", "127.0.0.1:8787")
	v.SetDefault("verbose", false)
	v.SetDefault("quiet", false)
	v.SetDefault("log_file_enabled", true)
	v.SetDefault("prompt", "")
	v.SetDefault("storage_backend", "local")
	v.SetDefault("s3_region", "us-east-1")
	v.SetDefault("scrape_api_url", "https://api.firecrawl.dev/v1/scrape")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("YOUPAC")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	_ = v.BindEnv("openai_api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("s3_access_key", "YOUPAC_S3_ACCESS_KEY", "AWS_ACCESS_KEY_ID")
	_ = v.BindEnv("s3_secret_key", "YOUPAC_S3_SECRET_KEY", "AWS_SECRET_ACCESS_KEY")
	_ = v.BindEnv("scrape_api_key", "YOUPAC_SCRAPE_API_KEY", "FIRECRAWL_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Warning: Error reading config file: %v\n", err)
		}
	}

	config := &Config{
		ChatModel:                v.GetString("chat_model"),
		ImageModel:               v.GetString("image_model"),
		MaxTranscriptChars:       v.GetInt("max_transcript_chars"),
		GenerationTimeout:        v.GetDuration("generation_timeout"),
		WhisperTimeout:           v.GetDuration("whisper_timeout"),
		PollInterval:             v.GetDuration("poll_interval"),
		AutosaveDelay:            v.GetDuration("autosave_delay"),
		MaxConcurrentGenerations: v.GetInt("max_concurrent_generations"),
		LLMRequestsPerMinute:     v.GetInt("llm_requests_per_minute"),
		MaxUploadSize:            v.GetInt64("max_upload_size"),
		UserID:                   v.GetString("user_id"),
		ListenAddr:               v.GetString("listen_addr"),
		Verbose:                  v.GetBool("verbose"),
		Quiet:                    v.GetBool("quiet"),
		LogFileEnabled:           v.GetBool("log_file_enabled"),
		OpenAIAPIKey:             v.GetString("openai_api_key"),
		Prompt:                   v.GetString("prompt"),

		StorageBackend: v.GetString("storage_backend"),
		S3Bucket:       v.GetString("s3_bucket"),
		S3Region:       v.GetString("s3_region"),
		S3Endpoint:     v.GetString("s3_endpoint"),
		S3AccessKey:    v.GetString("s3_access_key"),
		S3SecretKey:    v.GetString("s3_secret_key"),

		ScrapeAPIURL: v.GetString("scrape_api_url"),
		ScrapeAPIKey: v.GetString("scrape_api_key"),

		ConfigDir: configDir,
		DataDir:   dataDir,
		CacheDir:  cacheDir,
		TempDir:   tempDir,
		MediaDir:  mediaDir,
		DBPath:    filepath.Join(dataDir, "youpac.db"),
	}

	if config.Verbose {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	return config
}

// Validate checks settings that would otherwise fail deep inside a command
func (c *Config) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return Wrap(ErrValidation, "config", fmt.Errorf("user_id must not be empty"))
	}
	switch c.StorageBackend {
	case "local":
	case "s3":
		if c.S3Bucket == "" {
			return Wrap(ErrValidation, "config", fmt.Errorf("s3_bucket is required when storage_backend is s3"))
		}
	default:
		return Wrap(ErrValidation, "config", fmt.Errorf("unknown storage_backend %q (expected local or s3)", c.StorageBackend))
	}
	if c.MaxConcurrentGenerations < 1 {
		c.MaxConcurrentGenerations = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	return nil
}

func defaultUserID() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "local"
}
