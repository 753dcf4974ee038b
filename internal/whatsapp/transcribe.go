package whatsapp

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoTranscriber reports that a voice note arrived but no transcription
// backend is configured.
var ErrNoTranscriber = errors.New("whatsapp: no transcriber configured")

// Transcriber turns a voice note into text. The engine is a collaborator;
// the worker only cares about the resulting text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// MediaFetcher resolves and downloads provider-hosted media. *Client
// satisfies it.
type MediaFetcher interface {
	MediaURL(ctx context.Context, mediaID string) (string, error)
	DownloadMedia(ctx context.Context, mediaURL string) ([]byte, error)
}

// TranscribeVoice fetches a voice note by media id and runs it through the
// transcriber.
func TranscribeVoice(ctx context.Context, fetcher MediaFetcher, transcriber Transcriber, mediaID, mimeType string) (string, error) {
	if transcriber == nil {
		return "", ErrNoTranscriber
	}
	mediaURL, err := fetcher.MediaURL(ctx, mediaID)
	if err != nil {
		return "", fmt.Errorf("whatsapp: resolve voice media: %w", err)
	}
	audio, err := fetcher.DownloadMedia(ctx, mediaURL)
	if err != nil {
		return "", fmt.Errorf("whatsapp: fetch voice media: %w", err)
	}
	text, err := transcriber.Transcribe(ctx, audio, mimeType)
	if err != nil {
		return "", fmt.Errorf("whatsapp: transcribe voice: %w", err)
	}
	return text, nil
}
