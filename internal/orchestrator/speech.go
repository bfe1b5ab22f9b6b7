package orchestrator

import (
	"context"
	"strings"

	"github.com/MrWong99/voxcall/internal/callconfig"
	"github.com/MrWong99/voxcall/internal/observe"
	"github.com/MrWong99/voxcall/internal/pipeline"
	"github.com/MrWong99/voxcall/pkg/frame"
	"github.com/MrWong99/voxcall/pkg/provider/llm"
)

// say synthesizes text with the call's voice and sends it. It reports
// whether audio was sent.
func (o *Orchestrator) say(ctx context.Context, cfg callconfig.CallConfig, text string) (bool, error) {
	voice, err := callconfig.FromCallConfig(cfg)
	if err != nil {
		return false, err
	}
	data, err := o.tts.Synthesize(ctx, voice.TTSParams(text, cfg.AudioFormat()))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	o.transport.SendAudio(ctx, data, cfg.SampleRate)
	o.lastTTSSentAt = o.now()
	return true, nil
}

// speakFirst greets the caller with the configured first message and
// records it as the opening assistant turn.
func (o *Orchestrator) speakFirst(ctx context.Context, cfg callconfig.CallConfig, history *pipeline.History) error {
	sent, err := o.say(ctx, cfg, cfg.FirstMessage)
	if err != nil {
		return err
	}
	if !sent {
		observe.Logger(ctx).Warn("orchestrator: first message produced no audio")
		return nil
	}
	history.Append(llm.RoleAssistant, cfg.FirstMessage)
	if err := o.liveTranscript(ctx, frame.NewTextFrame(nil, cfg.FirstMessage, frame.RoleAssistant)); err != nil {
		observe.Logger(ctx).Warn("orchestrator: live transcript failed", "err", err)
	}
	return nil
}

// apologize speaks the apology message, best-effort.
func (o *Orchestrator) apologize(ctx context.Context) {
	cfg := o.Config()
	msg := strings.TrimSpace(cfg.ApologyMessage)
	if msg == "" {
		return
	}
	if !o.transport.IsConnected() {
		return
	}
	if _, err := o.say(ctx, cfg, msg); err != nil {
		observe.Logger(ctx).Warn("orchestrator: apology failed, closing anyway", "err", err)
	}
}
