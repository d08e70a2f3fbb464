package internal

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Transcriber turns uploaded videos into text. A stored captions file is used
// when present; otherwise the audio track goes through Whisper.
type Transcriber struct {
	store   *Store
	files   FileStorage
	ai      *AI
	audio   *Audio
	hub     *Hub
	metrics *Metrics
	ui      UIManager
	tempDir string
	timeout time.Duration
}

// NewTranscriber wires a transcriber. hub and metrics may be nil.
func NewTranscriber(store *Store, files FileStorage, ai *AI, audio *Audio, hub *Hub, metrics *Metrics, ui UIManager, tempDir string, timeout time.Duration) *Transcriber {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Transcriber{
		store:   store,
		files:   files,
		ai:      ai,
		audio:   audio,
		hub:     hub,
		metrics: metrics,
		ui:      ui,
		tempDir: tempDir,
		timeout: timeout,
	}
}

// Transcribe runs the pipeline for one video and records the outcome on the
// video record. The returned video reflects the final state.
func (t *Transcriber) Transcribe(ctx context.Context, userID, videoID string) (*Video, error) {
	v, err := t.store.GetVideo(ctx, userID, videoID)
	if err != nil {
		return nil, err
	}
	if v.TranscriptionStatus == TranscriptionUploading {
		return nil, Wrap(ErrValidation, "transcribe", fmt.Errorf("video %s is still uploading", videoID))
	}

	if err := t.store.SetTranscriptionStatus(ctx, userID, videoID, TranscriptionProcessing, ""); err != nil {
		return nil, err
	}
	t.publish(EventVideoUpdated, v)

	text, source, err := t.run(ctx, v)
	t.metrics.observeTranscription(source, err)
	if err != nil {
		// record the failure even when ctx was cancelled
		saveCtx := context.WithoutCancel(ctx)
		if serr := t.store.SetTranscriptionStatus(saveCtx, userID, videoID, TranscriptionFailed, UserMessage(err)); serr != nil {
			LogError("recording transcription failure for %s: %v", videoID, serr)
		}
		t.publish(EventTranscriptError, v)
		return nil, err
	}

	if err := t.store.SaveTranscription(ctx, userID, videoID, text); err != nil {
		return nil, err
	}
	t.publish(EventTranscriptDone, v)

	return t.store.GetVideo(ctx, userID, videoID)
}

func (t *Transcriber) run(ctx context.Context, v *Video) (string, string, error) {
	if v.CaptionsKey != "" {
		text, err := t.fromCaptions(ctx, v)
		if err == nil && text != "" {
			return text, "captions", nil
		}
		if err != nil {
			t.ui.Warnf("could not read captions for %s, falling back to Whisper: %v\n", v.Title, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	text, err := t.fromAudio(ctx, v)
	if err != nil {
		return "", "whisper", err
	}
	if strings.TrimSpace(text) == "" {
		return "", "whisper", Wrap(ErrTranscription, "whisper", fmt.Errorf("empty transcription"))
	}
	return text, "whisper", nil
}

func (t *Transcriber) fromCaptions(ctx context.Context, v *Video) (string, error) {
	t.ui.Verbose("Using captions file for %s\n", v.Title)

	rc, err := t.files.Open(ctx, v.CaptionsKey)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	return ReadCaptions(rc)
}

func (t *Transcriber) fromAudio(ctx context.Context, v *Video) (string, error) {
	videoPath, cleanup, err := LocalCopy(ctx, t.files, v.StorageKey, t.tempDir)
	if err != nil {
		return "", Wrap(ErrTranscription, "fetching media", err)
	}
	defer cleanup()

	audioFile, err := t.audio.ExtractAudio(ctx, videoPath, v.ID)
	if err != nil {
		return "", Wrap(ErrTranscription, "extracting audio", err)
	}
	defer cleanupFiles(audioFile)

	bar := t.ui.NewProgressBar(100, "Transcribing")
	defer bar.Finish()

	return t.ai.Transcribe(ctx, audioFile, bar)
}

// WaitForTranscription polls the video record until transcription completes,
// fails, or ctx is done. A failed transcription is returned as an error along
// with the video.
func (t *Transcriber) WaitForTranscription(ctx context.Context, userID, videoID string, interval time.Duration) (*Video, error) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		v, err := t.store.GetVideo(ctx, userID, videoID)
		if err != nil {
			return nil, err
		}
		switch v.TranscriptionStatus {
		case TranscriptionCompleted:
			return v, nil
		case TranscriptionFailed:
			return v, Wrap(ErrTranscription, "transcription failed", fmt.Errorf("%s", v.TranscriptionError))
		}

		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (t *Transcriber) publish(kind EventKind, v *Video) {
	if t.hub == nil {
		return
	}
	t.hub.Publish(Event{Kind: kind, ProjectID: v.ProjectID, EntityID: v.ID})
}
