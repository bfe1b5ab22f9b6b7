package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/voxcall/internal/callconfig"
	"github.com/MrWong99/voxcall/internal/observe"
	"github.com/MrWong99/voxcall/pkg/frame"
	"github.com/MrWong99/voxcall/pkg/provider/llm"
	"github.com/MrWong99/voxcall/pkg/provider/stt"
	"github.com/MrWong99/voxcall/pkg/provider/tts"
)

// ---- STT ----

// STTProcessor turns caller audio into a user [frame.TextFrame].
type STTProcessor struct {
	provider stt.Provider
	cfg      callconfig.CallConfig
}

var _ Processor = (*STTProcessor)(nil)

// NewSTTProcessor returns a processor transcribing with provider in the
// language and sample rate of cfg.
func NewSTTProcessor(provider stt.Provider, cfg callconfig.CallConfig) *STTProcessor {
	return &STTProcessor{provider: provider, cfg: cfg}
}

// Name implements [Processor].
func (p *STTProcessor) Name() string { return observe.StageSTT }

// Process implements [Processor].
func (p *STTProcessor) Process(ctx context.Context, f frame.Frame) (frame.Frame, error) {
	af, ok := f.(frame.AudioFrame)
	if !ok {
		return f, nil
	}
	text, err := p.provider.Transcribe(ctx, af.Data, stt.StreamConfig{
		Language:   p.cfg.STTLanguage,
		SampleRate: p.cfg.SampleRate,
		Channels:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	return frame.NewTextFrame(af, text, frame.RoleUser), nil
}

// ---- LLM ----

// LLMProcessor answers a user [frame.TextFrame] with an assistant one and
// records both sides in the call history.
type LLMProcessor struct {
	provider llm.Provider
	cfg      callconfig.CallConfig
	history  *History
}

var _ Processor = (*LLMProcessor)(nil)

// NewLLMProcessor returns a processor completing against history with the
// model parameters of cfg.
func NewLLMProcessor(provider llm.Provider, cfg callconfig.CallConfig, history *History) *LLMProcessor {
	return &LLMProcessor{provider: provider, cfg: cfg, history: history}
}

// Name implements [Processor].
func (p *LLMProcessor) Name() string { return observe.StageLLM }

// Process implements [Processor].
//
// The user message stays in the history even when the completion fails or
// is empty; the assistant message is appended only for a non-empty reply.
func (p *LLMProcessor) Process(ctx context.Context, f frame.Frame) (frame.Frame, error) {
	tf, ok := f.(frame.TextFrame)
	if !ok || tf.Role != frame.RoleUser {
		return f, nil
	}

	p.history.Append(llm.RoleUser, tf.Text)
	ch, err := p.provider.StreamCompletion(ctx, llm.CompletionRequest{
		Messages:    p.history.Messages(),
		Model:       p.cfg.LLMModel,
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("stream completion: %w", err)
	}
	if ch == nil {
		return nil, errors.New("stream completion: provider returned nil channel")
	}

	reply, err := llm.Collect(ctx, ch)
	if err != nil {
		return nil, err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil, nil
	}
	p.history.Append(llm.RoleAssistant, reply)
	return frame.NewTextFrame(tf, reply, frame.RoleAssistant), nil
}

// ---- TTS ----

// TTSProcessor synthesizes an assistant [frame.TextFrame] into audio in the
// wire format of the call's client.
type TTSProcessor struct {
	provider tts.Provider
	cfg      callconfig.CallConfig
}

var _ Processor = (*TTSProcessor)(nil)

// NewTTSProcessor returns a processor synthesizing with the voice of cfg.
func NewTTSProcessor(provider tts.Provider, cfg callconfig.CallConfig) *TTSProcessor {
	return &TTSProcessor{provider: provider, cfg: cfg}
}

// Name implements [Processor].
func (p *TTSProcessor) Name() string { return observe.StageTTS }

// Process implements [Processor].
func (p *TTSProcessor) Process(ctx context.Context, f frame.Frame) (frame.Frame, error) {
	tf, ok := f.(frame.TextFrame)
	if !ok || tf.Role != frame.RoleAssistant {
		return f, nil
	}
	if strings.TrimSpace(tf.Text) == "" {
		return nil, nil
	}

	voice, err := callconfig.FromCallConfig(p.cfg)
	if err != nil {
		return nil, err
	}
	data, err := p.provider.Synthesize(ctx, voice.TTSParams(tf.Text, p.cfg.AudioFormat()))
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return frame.AudioFrame{
		Meta:       frame.MetaOf(tf),
		Data:       data,
		SampleRate: p.cfg.SampleRate,
		Channels:   1,
	}, nil
}

// CallProcessors returns the standard STT, LLM and TTS chain of a call turn.
func CallProcessors(s stt.Provider, l llm.Provider, t tts.Provider, cfg callconfig.CallConfig, history *History) []Processor {
	return []Processor{
		NewSTTProcessor(s, cfg),
		NewLLMProcessor(l, cfg, history),
		NewTTSProcessor(t, cfg),
	}
}
