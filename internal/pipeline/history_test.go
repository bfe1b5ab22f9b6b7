package pipeline

import (
	"testing"

	"github.com/MrWong99/voxcall/pkg/provider/llm"
)

func TestNewHistory(t *testing.T) {
	t.Parallel()

	if got := NewHistory("   ").Len(); got != 0 {
		t.Errorf("blank prompt: Len = %d, want 0", got)
	}
	h := NewHistory("  Eres Ana.  ")
	msgs := h.Messages()
	if len(msgs) != 1 || msgs[0].Role != llm.RoleSystem || msgs[0].Content != "Eres Ana." {
		t.Errorf("Messages = %+v", msgs)
	}
}

func TestHistory_MessagesIsCopy(t *testing.T) {
	t.Parallel()

	h := NewHistory("sys")
	msgs := h.Messages()
	msgs[0].Content = "changed"
	if h.Messages()[0].Content != "sys" {
		t.Error("Messages must return a copy")
	}
}

func TestHistory_Transcript(t *testing.T) {
	t.Parallel()

	h := NewHistory("sys")
	h.Append(llm.RoleAssistant, "hola")
	h.Append(llm.RoleUser, "quiero una cita")
	h.Append(llm.RoleAssistant, "claro")

	items := h.Transcript()
	want := []struct{ role, content string }{
		{"assistant", "hola"},
		{"user", "quiero una cita"},
		{"assistant", "claro"},
	}
	if len(items) != len(want) {
		t.Fatalf("len = %d, want %d", len(items), len(want))
	}
	for i, w := range want {
		if items[i].Role != w.role || items[i].Content != w.content {
			t.Errorf("item %d = %+v, want %s/%s", i, items[i], w.role, w.content)
		}
	}
	if h.Len() != 4 {
		t.Errorf("Len = %d, want 4", h.Len())
	}
}
