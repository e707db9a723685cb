package transcribe

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// Whisper transcribes speech-task recordings through the OpenAI audio API.
type Whisper struct {
	client *openai.Client
	model  string
}

func NewWhisper(apiKey, model string) *Whisper {
	if model == "" {
		model = openai.Whisper1
	}
	return &Whisper{client: openai.NewClient(apiKey), model: model}
}

// Transcribe returns the recognized text for an audio file.
func (w *Whisper) Transcribe(ctx context.Context, audioPath string) (string, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: audioPath,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create transcription: %w", err)
	}
	return resp.Text, nil
}
