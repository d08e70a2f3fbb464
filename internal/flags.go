package internal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// AddOpenAIFlags adds flags related to OpenAI API functionality
func AddOpenAIFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("model", "m", "", "OpenAI chat model used for generation")
	cmd.Flags().StringP("prompt", "p", "", "Custom prompt template (string or file path)")
}

// AddPositionFlag adds a --at flag for placing a node on the canvas
func AddPositionFlag(cmd *cobra.Command) {
	cmd.Flags().String("at", "", "Canvas position as x,y (default: automatic layout)")
}

// PositionFlag reads the --at flag. It returns nil when the flag is unset.
func PositionFlag(cmd *cobra.Command) (*Position, error) {
	raw, _ := cmd.Flags().GetString("at")
	if raw == "" {
		return nil, nil
	}
	pos, err := ParsePosition(raw)
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

// ParsePosition parses "x,y" into a canvas position
func ParsePosition(s string) (Position, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return Position{}, Wrap(ErrValidation, "position", fmt.Errorf("expected x,y but got %q", s))
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return Position{}, Wrap(ErrValidation, "position", fmt.Errorf("invalid x %q", xs))
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return Position{}, Wrap(ErrValidation, "position", fmt.Errorf("invalid y %q", ys))
	}
	return Position{X: x, Y: y}, nil
}

// HandlePromptFlag processes the --prompt flag to set custom prompt
func HandlePromptFlag(cmd *cobra.Command, app *App) error {
	promptFlag := cmd.Flags().Lookup("prompt")
	if promptFlag == nil || !promptFlag.Changed {
		return nil
	}

	prompt, err := cmd.Flags().GetString("prompt")
	if err != nil {
		return fmt.Errorf("failed to get prompt flag: %w", err)
	}
	if prompt == "" {
		return nil
	}

	app.SetPromptManager(NewPromptManager(app.config.ConfigDir, prompt, app.config.MaxTranscriptChars))

	if app.config.Verbose {
		if IsLikelyFilePath(prompt) && FileExists(prompt) {
			fmt.Printf("Using custom prompt file: %s\n", prompt)
		} else {
			fmt.Printf("Using custom prompt string\n")
		}
	}

	return nil
}

// HandleVerboseFlag processes the --verbose and --quiet flags to update config
func HandleVerboseFlag(cmd *cobra.Command, config *Config) error {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return fmt.Errorf("failed to get verbose flag: %w", err)
	}
	if verbose {
		config.Verbose = true
	}
	if quiet, err := cmd.Flags().GetBool("quiet"); err == nil && quiet {
		config.Quiet = true
		config.Verbose = false
	}
	return nil
}

// ValidateOpenAIRequirements validates OpenAI API key and model from command flags and config
func ValidateOpenAIRequirements(cmd *cobra.Command, config *Config) error {
	if err := ValidateOpenAIAPIKey(config.OpenAIAPIKey); err != nil {
		return err
	}

	modelFlag, _ := cmd.Flags().GetString("model")
	if modelFlag != "" {
		if err := ValidateModel(modelFlag); err != nil {
			return err
		}
		config.ChatModel = modelFlag
	} else if err := ValidateModel(config.ChatModel); err != nil {
		return fmt.Errorf("invalid model in config: %w", err)
	}

	if err := ValidateImageModel(config.ImageModel); err != nil {
		return fmt.Errorf("invalid image model in config: %w", err)
	}

	return nil
}
