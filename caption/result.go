package caption

// Result is a translated utterance ready for display.
type Result struct {
	ID             string  `json:"id"` // res_<UUIDv7>
	SessionID      string  `json:"session_id"`
	PageID         string  `json:"page_id"`
	OriginalText   string  `json:"original_text"`
	TranslatedText string  `json:"translated_text"`
	Confidence     float64 `json:"confidence"`
	TargetLanguage string  `json:"target_language"`
	Degraded       bool    `json:"degraded,omitempty"` // fallback text, backend failed
	Timestamp      int64   `json:"timestamp"`          // epoch milliseconds
}

// Audio is synthesized speech for a Result, forwarded untouched to playback.
type Audio struct {
	ResultID  string `json:"result_id"`
	SessionID string `json:"session_id"`
	PageID    string `json:"page_id"`
	Data      []byte `json:"data"` // base64 in JSON
	Timestamp int64  `json:"timestamp"`
}

// Command names accepted by the control plane.
const (
	CommandStart = "start"
	CommandStop  = "stop"
)

// Command starts or stops monitoring of one page.
type Command struct {
	Command        string `json:"command"`
	TargetLanguage string `json:"target_language,omitempty"`
	VoiceID        string `json:"voice_id,omitempty"`
}
