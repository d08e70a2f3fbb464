package internal

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"unicode/utf8"
)

// contextTemplate is shared by every agent prompt. Custom templates can include
// it with {{template "context" .}}.
const contextTemplate = `{{define "context"}}
{{- if .Profile.ChannelName}}
Channel: {{.Profile.ChannelName}}
{{- end}}
{{- if .Profile.ContentType}}
Content type: {{.Profile.ContentType}}
{{- end}}
{{- if .Profile.Niche}}
Niche: {{.Profile.Niche}}
{{- end}}
{{- if .Profile.Tone}}
Tone: {{.Profile.Tone}}
{{- end}}
{{- if .Profile.TargetAudience}}
Target audience: {{.Profile.TargetAudience}}
{{- end}}
{{- if .Profile.Context}}
About the creator:
{{.Profile.Context}}
{{- end}}
{{- if .VideoTitle}}

Video: {{.VideoTitle}}
{{- end}}
{{- if .Duration}}
Duration: {{.Duration}}
{{- end}}
{{- range .Connected}}

Connected {{.Label}}:
{{.Content}}
{{- end}}
{{- if .PreviousDraft}}

Previous version:
{{.PreviousDraft}}
{{- end}}
{{- if .Feedback}}

Revise according to this feedback:
{{.Feedback}}
{{- end}}

Transcription:
{{.Transcript}}
{{- end}}`

const truncationMarker = "\n[transcription truncated]"

// ConnectedContent is output from an upstream agent fed into a prompt
type ConnectedContent struct {
	Type    AgentType
	Label   string
	Content string
}

// PromptData for template injection
type PromptData struct {
	AgentType     AgentType
	VideoTitle    string
	Duration      string
	Transcript    string
	Truncated     bool
	Profile       Profile
	Connected     []ConnectedContent
	Feedback      string
	PreviousDraft string
}

// PromptManager handles loading and processing prompt templates
type PromptManager struct {
	promptFile         string
	promptString       string
	configDir          string
	maxTranscriptChars int
}

// NewPromptManager creates a new prompt manager
func NewPromptManager(configDir, promptSetting string, maxTranscriptChars int) *PromptManager {
	pm := &PromptManager{
		configDir:          configDir,
		maxTranscriptChars: maxTranscriptChars,
	}

	if promptSetting != "" {
		if IsLikelyFilePath(promptSetting) && FileExists(promptSetting) {
			pm.promptFile = promptSetting
		} else {
			pm.promptString = promptSetting
		}
	}

	return pm
}

// BuildPromptData assembles template data from a video, the creator profile and
// the outputs of upstream agents. Upstream agents without a draft are skipped.
func (pm *PromptManager) BuildPromptData(agentType AgentType, video *Video, profile *Profile, upstream []*Agent) PromptData {
	data := PromptData{AgentType: agentType}

	if video != nil {
		data.VideoTitle = video.Title
		if video.Duration > 0 {
			data.Duration = FormatDuration(video.Duration)
		}
		data.Transcript, data.Truncated = TruncateTranscript(video.Transcription, pm.maxTranscriptChars)
	}

	if profile != nil {
		data.Profile = *profile
	}

	for _, agent := range upstream {
		if agent == nil {
			continue
		}
		content := strings.TrimSpace(agent.Draft)
		if content == "" {
			continue
		}
		data.Connected = append(data.Connected, ConnectedContent{
			Type:    agent.Type,
			Label:   strings.ToLower(agent.Type.String()),
			Content: content,
		})
	}

	return data
}

// CreatePrompt renders the prompt for an agent type
func (pm *PromptManager) CreatePrompt(data PromptData) (string, error) {
	tmplContent, err := pm.templateFor(data.AgentType)
	if err != nil {
		return "", err
	}
	return buildPromptFromTemplate(tmplContent, data)
}

// templateFor resolves the template source: explicit string, explicit file,
// user override in the config directory, then the embedded default.
func (pm *PromptManager) templateFor(agentType AgentType) (string, error) {
	if pm.promptString != "" {
		return pm.promptString, nil
	}

	if pm.promptFile != "" {
		content, err := os.ReadFile(pm.promptFile)
		if err != nil {
			return "", fmt.Errorf("reading prompt template: %w", err)
		}
		return string(content), nil
	}

	name := promptFileName(agentType)
	if pm.configDir != "" {
		override := filepath.Join(pm.configDir, name)
		if FileExists(override) {
			content, err := os.ReadFile(override)
			if err != nil {
				return "", fmt.Errorf("reading prompt template: %w", err)
			}
			return string(content), nil
		}
	}

	content, err := defaultFS.ReadFile(name)
	if err != nil {
		return "", Wrap(ErrValidation, "prompt template", fmt.Errorf("no template for agent type %q", agentType))
	}
	return string(content), nil
}

// buildPromptFromTemplate builds the AI prompt from template content
func buildPromptFromTemplate(templateContent string, data PromptData) (string, error) {
	tmpl, err := template.New("prompt").Parse(contextTemplate + templateContent)
	if err != nil {
		return "", fmt.Errorf("parsing prompt template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing prompt template: %w", err)
	}

	return strings.TrimSpace(buf.String()), nil
}

// SystemPrompt returns the system message for an agent type
func SystemPrompt(agentType AgentType) string {
	base := "You are an expert YouTube strategist who writes content that matches the creator's voice and channel."
	switch agentType {
	case AgentTypeTitle:
		return base + " You write titles that maximize click-through without misleading viewers."
	case AgentTypeDescription:
		return base + " You write descriptions optimized for search and viewer retention."
	case AgentTypeThumbnail:
		return base + " You design thumbnail concepts and describe them precisely for image generation models."
	case AgentTypeTweets:
		return base + " You write concise, engaging social media posts."
	default:
		return base
	}
}

// TruncateTranscript limits a transcript to maxChars runes. A non-positive
// limit disables truncation.
func TruncateTranscript(transcript string, maxChars int) (string, bool) {
	transcript = strings.TrimSpace(transcript)
	if maxChars <= 0 || utf8.RuneCountInString(transcript) <= maxChars {
		return transcript, false
	}

	runes := []rune(transcript)
	cut := string(runes[:maxChars])
	// prefer ending on a word boundary
	if idx := strings.LastIndexAny(cut, " \n"); idx > maxChars/2 {
		cut = cut[:idx]
	}
	return cut + truncationMarker, true
}

// FormatDuration renders seconds as m:ss or h:mm:ss
func FormatDuration(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

func promptFileName(agentType AgentType) string {
	return "prompts/" + string(agentType) + ".txt"
}

// IsLikelyFilePath uses heuristics to determine if a string is likely a file path
func IsLikelyFilePath(s string) bool {
	if strings.Contains(s, "/") || strings.Contains(s, "\\") {
		return true
	}

	if strings.Contains(s, ".txt") || strings.Contains(s, ".md") ||
		strings.Contains(s, ".template") || strings.Contains(s, ".tmpl") {
		return true
	}

	// If it's longer than 200 characters, it's likely a prompt string
	if len(s) > 200 {
		return false
	}

	return !strings.Contains(s, " ") && !strings.Contains(s, "\n")
}
