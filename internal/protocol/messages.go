package protocol

import "time"

// SpeakRequest asks the voice service to deliver text. Any of Slow, Language
// or Volume switches to a single attempt with those settings.
type SpeakRequest struct {
	SessionID string   `json:"session_id"`
	Text      string   `json:"text"`
	Language  string   `json:"language,omitempty"`
	Slow      bool     `json:"slow,omitempty"`
	Volume    *float64 `json:"volume,omitempty"`
}

// HasOverrides reports whether the request changes synthesis settings.
func (r SpeakRequest) HasOverrides() bool {
	return r.Slow || r.Language != "" || r.Volume != nil
}

// SpeakResult is published after every request and sent as the reply when
// the request carried a reply subject.
type SpeakResult struct {
	SessionID string    `json:"session_id"`
	Outcome   string    `json:"outcome"`
	Strategy  string    `json:"strategy,omitempty"`
	Played    int       `json:"played"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectSpeak       = "voice.speak"
	SubjectSpeakResult = "voice.speak.result"
)
