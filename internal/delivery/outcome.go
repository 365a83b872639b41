package delivery

// Outcome is the result of delivering one response.
type Outcome int

const (
	// Failed means no audio played; the response is available as text only.
	Failed Outcome = iota
	Succeeded
	// Degraded means part of the response, or only the fallback phrase, played.
	Degraded
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Degraded:
		return "degraded"
	default:
		return "failed"
	}
}

// Result describes how a delivery ended. Strategy is empty when Outcome is Failed.
type Result struct {
	Outcome   Outcome
	Strategy  string
	Played    int
	Attempted int
}
