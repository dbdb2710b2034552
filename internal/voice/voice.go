// Package voice turns recorded audio into text and replies into speech.
package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"github.com/chris/helpem/internal/quota"
)

var (
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrSpeechFailed        = errors.New("speech synthesis failed")
	ErrInvalidVoice        = errors.New("unknown voice")
)

const (
	DefaultVoice = "nova"
	// MaxSpeechChars caps synthesized text; longer text is cut and
	// suffixed with "...".
	MaxSpeechChars = 4000

	// audioBytesPerSecond estimates duration for billing, about 128 kbps.
	audioBytesPerSecond = 16000
)

var Voices = []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, contentType string) (string, error)
}

type Speaker interface {
	Speak(ctx context.Context, text, voice string) ([]byte, error)
}

// OpenAI implements Transcriber with whisper-1 and Speaker with tts-1.
// Every call is metered through the quota gate first.
type OpenAI struct {
	client openai.Client
	gate   quota.Gate
	voice  string
	logger *zap.Logger
}

type Option func(*OpenAI, *[]option.RequestOption)

func WithBaseURL(url string) Option {
	return func(_ *OpenAI, opts *[]option.RequestOption) {
		*opts = append(*opts, option.WithBaseURL(url))
	}
}

func WithDefaultVoice(v string) Option {
	return func(o *OpenAI, _ *[]option.RequestOption) {
		if ValidVoice(v) {
			o.voice = v
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *OpenAI, _ *[]option.RequestOption) { o.logger = l }
}

func NewOpenAI(apiKey string, gate quota.Gate, opts ...Option) *OpenAI {
	o := &OpenAI{gate: gate, voice: DefaultVoice, logger: zap.NewNop()}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	for _, opt := range opts {
		opt(o, &reqOpts)
	}
	o.client = openai.NewClient(reqOpts...)
	return o
}

func (o *OpenAI) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("%w: no audio", ErrTranscriptionFailed)
	}
	if _, err := o.gate.Record(ctx, quota.Whisper(EstimateSeconds(len(audio)))); err != nil {
		return "", err
	}

	if contentType == "" {
		contentType = "audio/m4a"
	}
	name := "audio." + Extension(contentType)
	res, err := o.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:     openai.File(bytes.NewReader(audio), name, contentType),
		Model:    openai.AudioModelWhisper1,
		Language: openai.String("en"),
	})
	if err != nil {
		o.logger.Warn("transcription failed", zap.Int("bytes", len(audio)), zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}

	o.logger.Debug("transcribed", zap.Int("bytes", len(audio)), zap.Int("chars", len(res.Text)))
	return strings.TrimSpace(res.Text), nil
}

func (o *OpenAI) Speak(ctx context.Context, text, voice string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: no text", ErrSpeechFailed)
	}
	if voice == "" {
		voice = o.voice
	}
	if !ValidVoice(voice) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVoice, voice)
	}
	text = Truncate(text, MaxSpeechChars)
	if _, err := o.gate.Record(ctx, quota.Speech(utf8.RuneCountInString(text))); err != nil {
		return nil, err
	}

	resp, err := o.client.Audio.Speech.New(ctx,
		openai.AudioSpeechNewParams{Input: text, Model: openai.SpeechModelTTS1},
		option.WithJSONSet("voice", voice),
		option.WithJSONSet("response_format", "mp3"),
	)
	if err != nil {
		o.logger.Warn("speech failed", zap.String("voice", voice), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrSpeechFailed, err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading audio: %w", ErrSpeechFailed, err)
	}
	return audio, nil
}

// Extension picks the upload file extension Whisper uses to detect the
// container format.
func Extension(contentType string) string {
	ct := strings.ToLower(contentType)
	for _, ext := range []string{"wav", "mp3", "webm", "ogg"} {
		if strings.Contains(ct, ext) {
			return ext
		}
	}
	if strings.Contains(ct, "mpeg") {
		return "mp3"
	}
	return "m4a"
}

func ValidVoice(v string) bool {
	return slices.Contains(Voices, v)
}

// Truncate cuts text to n runes, adding "..." when it was cut.
func Truncate(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n]) + "..."
}

// EstimateSeconds approximates audio length from its size, never less than
// one second.
func EstimateSeconds(size int) float64 {
	return max(float64(size)/audioBytesPerSecond, 1)
}
