package session

// Event types delivered over a session's feedback channel.
const (
	EventFillerWord = "FILLER_WORD"
)

// Event is a tagged payload pushed to exactly one session's outbound
// channel. Ordering across events for the same session is best-effort: two
// chunk analyses racing may notify the client out of dispatch order.
type Event struct {
	Type  string   `json:"type"`
	Words []string `json:"words,omitempty"`
}
