package internal

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"golang.org/x/time/rate"
)

// OpenAIClientInterface defines the interface for OpenAI client operations
type OpenAIClientInterface interface {
	CreateTranscription(ctx context.Context, file *os.File) (string, error)
	CreateChatCompletion(ctx context.Context, model string, messages []ChatMessage) (string, error)
	CreateImage(ctx context.Context, model, prompt string) ([]byte, error)
}

// OpenAIClient wraps the official OpenAI Go SDK
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(apiKey string) *OpenAIClient {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIClient{client: &client}
}

// CreateTranscription implements the transcription method
func (c *OpenAIClient) CreateTranscription(ctx context.Context, file *os.File) (string, error) {
	resp, err := c.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  file,
		Model: openai.AudioModelWhisper1,
	})
	if err != nil {
		return "", classifyAPIError(ErrTranscription, "whisper", err)
	}
	return resp.Text, nil
}

// CreateChatCompletion implements the chat completion method
func (c *OpenAIClient) CreateChatCompletion(ctx context.Context, model string, messages []ChatMessage) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	for _, m := range messages {
		switch m.Role {
		case "system":
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case "assistant":
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classifyAPIError(ErrAI, "chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", Wrap(ErrAI, "chat completion", fmt.Errorf("no response choices from OpenAI"))
	}
	return resp.Choices[0].Message.Content, nil
}

// CreateImage generates a landscape image and returns the decoded bytes
func (c *OpenAIClient) CreateImage(ctx context.Context, model, prompt string) ([]byte, error) {
	params := openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(model),
		N:      openai.Int(1),
	}
	if strings.HasPrefix(model, "dall-e") {
		params.Size = openai.ImageGenerateParamsSize("1792x1024")
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormat("b64_json")
	} else {
		params.Size = openai.ImageGenerateParamsSize("1536x1024")
	}

	resp, err := c.client.Images.Generate(ctx, params)
	if err != nil {
		return nil, classifyAPIError(ErrAI, "image generation", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, Wrap(ErrAI, "image generation", fmt.Errorf("no image data from OpenAI"))
	}

	img, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, Wrap(ErrAI, "decoding image", err)
	}
	return img, nil
}

// classifyAPIError tags SDK errors so rate limits are retried with backoff
func classifyAPIError(marker error, op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return Wrap(ErrRateLimit, op, err)
		case apiErr.StatusCode >= 500:
			return Wrap(ErrNetwork, op, err)
		}
	}
	return Wrap(marker, op, err)
}

// AI handles OpenAI API interactions for transcription and generation
type AI struct {
	client       OpenAIClientInterface
	audio        *Audio
	chatModel    string
	imageModel   string
	whisperLimit int64
	timeout      time.Duration
	verbose      bool
	apiKey       string
	clientOnce   sync.Once
	clientErr    error
	limiter      *rate.Limiter
	retry        RetryPolicy
}

// AIOptions configures an AI processor
type AIOptions struct {
	ChatModel         string
	ImageModel        string
	WhisperLimit      int64
	Timeout           time.Duration
	RequestsPerMinute int
	Verbose           bool
}

// NewAI creates a new AI processor around an existing client
func NewAI(client OpenAIClientInterface, audio *Audio, opts AIOptions) *AI {
	ai := &AI{
		client:       client,
		audio:        audio,
		chatModel:    opts.ChatModel,
		imageModel:   opts.ImageModel,
		whisperLimit: opts.WhisperLimit,
		timeout:      opts.Timeout,
		verbose:      opts.Verbose,
		retry:        DefaultRetryPolicy,
	}
	if ai.whisperLimit <= 0 {
		ai.whisperLimit = WhisperLimit
	}
	if ai.timeout <= 0 {
		ai.timeout = 2 * time.Minute
	}
	if opts.RequestsPerMinute > 0 {
		ai.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return ai
}

// NewAIWithKey creates a new AI processor with lazy client initialization
func NewAIWithKey(apiKey string, audio *Audio, opts AIOptions) *AI {
	ai := NewAI(nil, audio, opts)
	ai.apiKey = apiKey
	return ai
}

// SetRetryPolicy overrides the retry behaviour for API calls
func (ai *AI) SetRetryPolicy(policy RetryPolicy) {
	ai.retry = policy
}

// ensureClient initializes the OpenAI client on first use
func (ai *AI) ensureClient() error {
	ai.clientOnce.Do(func() {
		if ai.client != nil {
			return
		}
		if ai.apiKey == "" {
			ai.clientErr = ValidateOpenAIAPIKey("")
			return
		}
		ai.client = NewOpenAIClient(ai.apiKey)
	})
	return ai.clientErr
}

func (ai *AI) wait(ctx context.Context) error {
	if ai.limiter == nil {
		return nil
	}
	if err := ai.limiter.Wait(ctx); err != nil {
		return Wrap(ErrRateLimit, "waiting for rate limiter", err)
	}
	return nil
}

// Transcribe transcribes audio using OpenAI's Whisper API. Files over the
// upload limit are split into chunks first.
func (ai *AI) Transcribe(ctx context.Context, audioFile string, bar ProgressBar) (string, error) {
	if err := ai.ensureClient(); err != nil {
		return "", err
	}

	if ai.verbose {
		fmt.Printf("Transcribing audio file: %s\n", audioFile)
	}

	info, err := os.Stat(audioFile)
	if err != nil {
		return "", fmt.Errorf("getting audio file info: %w", err)
	}

	fileSize := info.Size()
	numChunks := int(math.Ceil(float64(fileSize) / float64(ai.whisperLimit)))

	var chunks []string
	if numChunks > 1 {
		chunks, err = ai.audio.Split(ctx, audioFile, numChunks)
		if err != nil {
			return "", Wrap(ErrTranscription, "splitting audio", err)
		}
		defer cleanupFiles(chunks...)
	} else {
		chunks = []string{audioFile}
	}

	transcript, err := ai.processAudioChunks(ctx, chunks, bar)
	if err != nil {
		return "", Wrap(ErrTranscription, "transcribing audio", err)
	}
	return transcript, nil
}

// processAudioChunks transcribes audio chunks in order, one request at a time,
// and joins the results with newlines
func (ai *AI) processAudioChunks(ctx context.Context, chunks []string, bar ProgressBar) (string, error) {
	numChunks := len(chunks)

	if ai.verbose {
		fmt.Printf("Transcribing chunks (%d)\n", numChunks)
	}

	var sb strings.Builder
	for i, chunkPath := range chunks {
		var text string
		err := Retry(ctx, ai.retry, func(ctx context.Context) error {
			if err := ai.wait(ctx); err != nil {
				return err
			}
			file, err := os.Open(chunkPath)
			if err != nil {
				return fmt.Errorf("opening chunk %s: %w", chunkPath, err)
			}
			defer file.Close()

			text, err = ai.client.CreateTranscription(ctx, file)
			return err
		})
		if err != nil {
			return "", fmt.Errorf("transcribing chunk %d: %w", i+1, err)
		}

		sb.WriteString(strings.TrimSpace(text))
		if i < numChunks-1 {
			sb.WriteString("\n")
		}

		if bar != nil {
			bar.Set((i + 1) * 100 / numChunks)
		}
		if ai.verbose {
			fmt.Printf("Transcribed chunk %d/%d\n", i+1, numChunks)
		}
	}

	return sb.String(), nil
}

// Complete sends a conversation to the chat model and returns the reply
func (ai *AI) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	if err := ai.ensureClient(); err != nil {
		return "", err
	}

	var content string
	err := Retry(ctx, ai.retry, func(ctx context.Context) error {
		if err := ai.wait(ctx); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, ai.timeout)
		defer cancel()

		var err error
		content, err = ai.client.CreateChatCompletion(callCtx, ai.chatModel, messages)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("creating chat completion: %w", err)
	}

	return strings.TrimSpace(content), nil
}

// Image generates an image from a prompt
func (ai *AI) Image(ctx context.Context, prompt string) ([]byte, error) {
	if err := ai.ensureClient(); err != nil {
		return nil, err
	}

	var img []byte
	err := Retry(ctx, ai.retry, func(ctx context.Context) error {
		if err := ai.wait(ctx); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, ai.timeout)
		defer cancel()

		var err error
		img, err = ai.client.CreateImage(callCtx, ai.imageModel, prompt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("generating image: %w", err)
	}
	return img, nil
}
