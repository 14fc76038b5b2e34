package relay

import (
	"bigbrother/internal/delivery"
	"bigbrother/internal/redact"
)

// LegacyChannelNotice is appended to deliveries into a channel still using an old name.
const LegacyChannelNotice = "\n\n:warning: **WARNING:** This channel should be renamed to `%s` instead of `%s` to avoid issues with the bot in the future.\n\n"

// Settings are the hot-reloadable knobs of the pipeline. A Settings value is
// never mutated after it is handed to Pipeline.SetSettings.
type Settings struct {
	Formatter delivery.Formatter
	Redactor  *redact.Redactor
	// ChannelName is the name legacy channels should be renamed to.
	ChannelName string
	LegacyNames []string
	Exclude     []string

	exclude map[string]struct{}
	legacy  map[string]struct{}
}

func (s *Settings) index() {
	s.exclude = make(map[string]struct{}, len(s.Exclude))
	for _, e := range s.Exclude {
		s.exclude[e] = struct{}{}
	}
	s.legacy = make(map[string]struct{}, len(s.LegacyNames))
	for _, n := range s.LegacyNames {
		s.legacy[n] = struct{}{}
	}
}

func (s *Settings) excluded(eventType string) bool {
	_, ok := s.exclude[eventType]
	return ok
}

func (s *Settings) legacyName(name string) bool {
	_, ok := s.legacy[name]
	return ok
}
