package delivery

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// payloadOfSize returns a payload whose fenced inline message is exactly n runes for eventType.
func payloadOfSize(t *testing.T, eventType string, n int) map[string]any {
	t.Helper()
	base, _ := Formatter{InlineLimit: 1 << 30}.Format(eventType, map[string]any{"x": ""})
	pad := n - utf8.RuneCountInString(base.Text)
	if pad < 0 {
		t.Fatalf("n=%d too small (base %d)", n, utf8.RuneCountInString(base.Text))
	}
	return map[string]any{"x": strings.Repeat("a", pad)}
}

func TestFormatSizeModes(t *testing.T) {
	tests := []struct {
		name string
		size int
		want Mode
	}{
		{"well under", 500, ModeInline},
		{"exactly at limit", 2000, ModeInline},
		{"one over", 2001, ModeAttachment},
		{"far over", 2500, ModeAttachment},
	}
	f := Formatter{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := f.Format("guildUpdate", payloadOfSize(t, "guildUpdate", tt.size))
			if err != nil {
				t.Fatalf("Format: %v", err)
			}
			if p.Mode != tt.want {
				t.Fatalf("Mode = %v, want %v", p.Mode, tt.want)
			}
			switch p.Mode {
			case ModeInline:
				if p.Attachment != nil {
					t.Fatal("inline payload has attachment")
				}
				if !strings.Contains(p.Text, "```json\n") || !strings.HasSuffix(p.Text, "\n```") {
					t.Fatalf("inline text not fenced: %q", p.Text)
				}
				if got := utf8.RuneCountInString(p.Text); got != tt.size {
					t.Fatalf("inline length = %d, want %d", got, tt.size)
				}
			case ModeAttachment:
				if p.Attachment == nil || !strings.HasSuffix(p.Attachment.Name, ".json") {
					t.Fatalf("attachment = %+v, want *.json", p.Attachment)
				}
				if utf8.RuneCountInString(p.Text) > DefaultInlineLimit {
					t.Fatalf("notice too long: %d", utf8.RuneCountInString(p.Text))
				}
				if strings.Contains(string(p.Attachment.Data), "```") {
					t.Fatal("attachment is fenced")
				}
				if !strings.Contains(p.Text, "output too long, sent as file") {
					t.Fatalf("notice = %q", p.Text)
				}
			}
		})
	}
}

func TestFormatDeterministic(t *testing.T) {
	payload := map[string]any{"b": []any{"x", "y"}, "a": map[string]any{"z": true}}
	f := Formatter{InlineLimit: 40}
	first, _ := f.Format("messageUpdate", payload)
	for i := 0; i < 20; i++ {
		p, _ := f.Format("messageUpdate", payload)
		if p.Mode != first.Mode || p.Text != first.Text || string(p.Attachment.Data) != string(first.Attachment.Data) {
			t.Fatalf("run %d differs", i)
		}
	}
}

func TestFormatCountsRunesNotBytes(t *testing.T) {
	// 700 three-byte runes: over 2000 bytes, well under 2000 runes.
	p, err := Formatter{}.Format("e", map[string]any{"x": strings.Repeat("€", 700)})
	if err != nil {
		t.Fatal(err)
	}
	if p.Mode != ModeInline {
		t.Fatalf("Mode = %v, want inline", p.Mode)
	}
}

func TestFormatNoticeCountsTowardLimit(t *testing.T) {
	notice := "\n\n:warning: rename this channel\n\n"
	payload := payloadOfSize(t, "e", 1990)
	if p, _ := (Formatter{}).Format("e", payload); p.Mode != ModeInline {
		t.Fatalf("without notice Mode = %v, want inline", p.Mode)
	}
	p, _ := Formatter{}.WithNotice(notice).Format("e", payload)
	if p.Mode != ModeAttachment {
		t.Fatalf("with notice Mode = %v, want attachment", p.Mode)
	}
	if !strings.Contains(p.Text, notice) {
		t.Fatalf("notice missing from %q", p.Text)
	}
}

func TestAttachmentName(t *testing.T) {
	tests := map[string]string{
		"guildUpdate": "guildUpdate.json",
		"a/b c":       "a_b_c.json",
		"":            "event.json",
		"..":          "event.json",
	}
	for in, want := range tests {
		if got := AttachmentName(in); got != want {
			t.Fatalf("AttachmentName(%q) = %q, want %q", in, got, want)
		}
	}
}
