// Package extraction derives structured data from a finished call: a short
// summary, the caller's intent and sentiment, contact details and the next
// action for a human follow-up.
package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/voxcall/internal/persistence"
	"github.com/MrWong99/voxcall/pkg/provider/llm"
)

// Extractor analyses a call transcript.
type Extractor interface {
	// Extract returns the extracted fields for the transcript of streamID.
	// It never fails; an empty map means there is nothing to store.
	Extract(ctx context.Context, streamID string, items []persistence.Item) map[string]any
}

// Defaults of [LLMExtractor].
const (
	DefaultTimeout     = 10 * time.Second
	DefaultTemperature = 0.1
)

type entitySchema struct {
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	Email           string `json:"email"`
	AppointmentDate string `json:"appointment_date"`
}

type resultSchema struct {
	Summary           string       `json:"summary"`
	Intent            string       `json:"intent"`
	Sentiment         string       `json:"sentiment"`
	ExtractedEntities entitySchema `json:"extracted_entities"`
	NextAction        string       `json:"next_action"`
}

var schema = resultSchema{
	Summary:   "Resumen breve de la conversación (1-2 frases).",
	Intent:    "agendar_cita | consulta | queja | irrelevante | buzon",
	Sentiment: "positive | neutral | negative",
	ExtractedEntities: entitySchema{
		Name:            "Nombre del usuario (si se mencionó)",
		Phone:           "Teléfono alternativo (si se mencionó)",
		Email:           "Correo (si se mencionó)",
		AppointmentDate: "Fecha ISO (si se agendó)",
	},
	NextAction: "follow_up | do_nothing",
}

// SystemPrompt is the analyst instruction sent with every extraction.
var SystemPrompt = func() string {
	b, _ := json.MarshalIndent(schema, "", "  ")
	return "Eres un analista experto de llamadas. " +
		"Tu tarea es extraer información estructurada del siguiente diálogo en formato JSON estricto. " +
		"No inventes datos. Si no hay datos, usa null.\n\n" +
		"SCHEMA ESPERADO:\n" + string(b)
}()

// LLMExtractor asks an LLM in JSON mode to fill the extraction schema.
type LLMExtractor struct {
	provider    llm.Provider
	model       string
	timeout     time.Duration
	temperature float64
}

var _ Extractor = (*LLMExtractor)(nil)

// Option configures an [LLMExtractor].
type Option func(*LLMExtractor)

// WithModel overrides the provider's default model.
func WithModel(model string) Option {
	return func(e *LLMExtractor) { e.model = model }
}

// WithTimeout bounds a single extraction. Defaults to [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(e *LLMExtractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewLLMExtractor returns an extractor backed by provider.
func NewLLMExtractor(provider llm.Provider, opts ...Option) (*LLMExtractor, error) {
	if provider == nil {
		return nil, errors.New("extraction: provider must not be nil")
	}
	e := &LLMExtractor{provider: provider, timeout: DefaultTimeout, temperature: DefaultTemperature}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Extract implements [Extractor].
func (e *LLMExtractor) Extract(ctx context.Context, streamID string, items []persistence.Item) map[string]any {
	if len(items) == 0 {
		return map[string]any{}
	}
	log := slog.With("stream_id", streamID, "messages", len(items))

	out, err := e.extract(ctx, items)
	if err != nil {
		log.Warn("extraction: failed", "err", err)
		return map[string]any{}
	}
	log.Info("extraction: done", "intent", out["intent"])
	return out
}

func (e *LLMExtractor) extract(ctx context.Context, items []persistence.Item) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: SystemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "DIÁLOGO:\n" + Dialogue(items)}},
		Model:        e.model,
		Temperature:  e.temperature,
		JSONMode:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}
	if resp == nil {
		return nil, errors.New("complete: empty response")
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(stripFence(resp.Content)), &out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if out == nil {
		return map[string]any{}, nil
	}
	return out, nil
}

// Dialogue renders items as "ROLE: content" lines.
func Dialogue(items []persistence.Item) string {
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = strings.ToUpper(it.Role) + ": " + it.Content
	}
	return strings.Join(lines, "\n")
}

// stripFence removes a surrounding markdown code fence some models emit
// even in JSON mode.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
