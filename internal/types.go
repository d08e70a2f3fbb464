package internal

import (
	"fmt"
	"strings"
	"time"
)

// AgentType represents the kind of content an agent generates
type AgentType string

const (
	AgentTypeTitle       AgentType = "title"
	AgentTypeDescription AgentType = "description"
	AgentTypeThumbnail   AgentType = "thumbnail"
	AgentTypeTweets      AgentType = "tweets"
)

// AgentTypes lists every supported agent type in canvas order
var AgentTypes = []AgentType{AgentTypeTitle, AgentTypeDescription, AgentTypeThumbnail, AgentTypeTweets}

// String returns a human-readable representation of the agent type
func (t AgentType) String() string {
	switch t {
	case AgentTypeTitle:
		return "Title"
	case AgentTypeDescription:
		return "Description"
	case AgentTypeThumbnail:
		return "Thumbnail"
	case AgentTypeTweets:
		return "Social Posts"
	default:
		return "unknown"
	}
}

// Valid reports whether the agent type is supported
func (t AgentType) Valid() bool {
	for _, known := range AgentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseAgentType normalizes user input into an AgentType
func ParseAgentType(s string) (AgentType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "tweet", "social", "posts":
		s = string(AgentTypeTweets)
	case "titles":
		s = string(AgentTypeTitle)
	}
	t := AgentType(s)
	if !t.Valid() {
		return "", Wrap(ErrValidation, "parse agent type", fmt.Errorf("unknown agent type %q", s))
	}
	return t, nil
}

// TranscriptionStatus tracks where a video is in the transcription pipeline
type TranscriptionStatus string

const (
	TranscriptionIdle       TranscriptionStatus = "idle"
	TranscriptionUploading  TranscriptionStatus = "uploading"
	TranscriptionProcessing TranscriptionStatus = "processing"
	TranscriptionCompleted  TranscriptionStatus = "completed"
	TranscriptionFailed     TranscriptionStatus = "failed"
)

// Done reports whether the status is terminal
func (s TranscriptionStatus) Done() bool {
	return s == TranscriptionCompleted || s == TranscriptionFailed
}

// AgentStatus tracks the generation state of an agent
type AgentStatus string

const (
	AgentIdle       AgentStatus = "idle"
	AgentGenerating AgentStatus = "generating"
	AgentReady      AgentStatus = "ready"
	AgentError      AgentStatus = "error"
)

// ProjectStatus is the lifecycle state of a project
type ProjectStatus string

const (
	ProjectDraft    ProjectStatus = "draft"
	ProjectActive   ProjectStatus = "active"
	ProjectArchived ProjectStatus = "archived"
)

// Valid reports whether the project status is known
func (s ProjectStatus) Valid() bool {
	return s == ProjectDraft || s == ProjectActive || s == ProjectArchived
}

// Project groups one or more videos and their agents on a single canvas
type Project struct {
	ID           string        `json:"id"`
	UserID       string        `json:"userId"`
	Title        string        `json:"title"`
	Description  string        `json:"description,omitempty"`
	ThumbnailKey string        `json:"thumbnailKey,omitempty"`
	Status       ProjectStatus `json:"status"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Video is an uploaded media file and its transcription
type Video struct {
	ID                  string              `json:"id"`
	ProjectID           string              `json:"projectId"`
	UserID              string              `json:"userId"`
	Title               string              `json:"title"`
	FileName            string              `json:"fileName"`
	StorageKey          string              `json:"storageKey"`
	CaptionsKey         string              `json:"captionsKey,omitempty"`
	FileSize            int64               `json:"fileSize"`
	Duration            float64             `json:"duration"`
	Transcription       string              `json:"transcription,omitempty"`
	TranscriptionStatus TranscriptionStatus `json:"transcriptionStatus"`
	TranscriptionError  string              `json:"transcriptionError,omitempty"`
	Position            Position            `json:"canvasPosition"`
	CreatedAt           time.Time           `json:"createdAt"`
	UpdatedAt           time.Time           `json:"updatedAt"`
}

// ChatMessage is one turn of an agent's refinement conversation
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Agent is a content-generation node attached to a video
type Agent struct {
	ID           string        `json:"id"`
	VideoID      string        `json:"videoId"`
	ProjectID    string        `json:"projectId"`
	UserID       string        `json:"userId"`
	Type         AgentType     `json:"type"`
	Draft        string        `json:"draft"`
	ThumbnailKey string        `json:"thumbnailKey,omitempty"`
	Status       AgentStatus   `json:"status"`
	Connections  []string      `json:"connections"`
	ChatHistory  []ChatMessage `json:"chatHistory"`
	Position     Position      `json:"canvasPosition"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Profile describes the creator so generated content matches their channel
type Profile struct {
	UserID         string    `json:"userId"`
	ChannelName    string    `json:"channelName"`
	ContentType    string    `json:"contentType"`
	Niche          string    `json:"niche"`
	Links          []string  `json:"links"`
	Tone           string    `json:"tone,omitempty"`
	TargetAudience string    `json:"targetAudience,omitempty"`
	Context        string    `json:"context,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
