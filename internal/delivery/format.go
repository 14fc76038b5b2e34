// Package delivery renders a redacted event into the message sent to a log channel.
package delivery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"bigbrother/internal/transport"
)

// DefaultInlineLimit is the longest inline message, in characters.
const DefaultInlineLimit = 2000

type Mode string

const (
	ModeInline     Mode = "inline"
	ModeAttachment Mode = "attachment"
)

// Payload is what gets sent: Text always, Attachment only in ModeAttachment.
type Payload struct {
	Mode       Mode
	Text       string
	Attachment *transport.Attachment
}

func (p Payload) Message() transport.OutboundMessage {
	return transport.OutboundMessage{Text: p.Text, Attachment: p.Attachment}
}

// Formatter is a pure function of its inputs: no clock, no randomness.
type Formatter struct {
	// InlineLimit is measured in Unicode code points; <=0 means DefaultInlineLimit.
	InlineLimit int
	// Notice is appended to the heading (e.g. a channel rename warning).
	Notice string
}

func (f Formatter) WithNotice(notice string) Formatter {
	f.Notice = notice
	return f
}

func (f Formatter) limit() int {
	if f.InlineLimit <= 0 {
		return DefaultInlineLimit
	}
	return f.InlineLimit
}

// Format renders payload as indented JSON under a heading naming eventType.
//
// When the fenced message fits the inline limit it is sent as is; otherwise a
// short notice is sent with the unfenced JSON attached as <eventType>.json.
func (f Formatter) Format(eventType string, payload any) (Payload, error) {
	body, err := Serialize(payload)
	if err != nil {
		return Payload{}, err
	}
	heading := "**logJSON/" + eventType + "**"

	inline := heading + f.Notice + "\n```json\n" + body + "\n```"
	if utf8.RuneCountInString(inline) <= f.limit() {
		return Payload{Mode: ModeInline, Text: inline}, nil
	}

	text := heading + " _(output too long, sent as file)_" + f.Notice + "\n"
	return Payload{
		Mode: ModeAttachment,
		Text: truncateRunes(text, f.limit()),
		Attachment: &transport.Attachment{
			Name:        AttachmentName(eventType),
			ContentType: "application/json",
			Data:        []byte(body),
		},
	}, nil
}

// Serialize renders v as two-space indented JSON without HTML escaping.
func Serialize(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("serialize payload: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// AttachmentName is "<eventType>.json" with unsafe file name characters replaced.
func AttachmentName(eventType string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, eventType)
	name = strings.Trim(name, ".")
	if name == "" {
		name = "event"
	}
	return name + ".json"
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
