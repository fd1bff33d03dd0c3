package capture

// Event is the bus payload for capture.* events.
type Event struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason,omitempty"`
	Media  string `json:"media,omitempty"`
	Human  bool   `json:"human,omitempty"`
	Motion bool   `json:"motion,omitempty"`
	Error  string `json:"error,omitempty"`
}

// BusEvent describes the artifact for bus subscribers (ledger, diagnostics).
func BusEvent(a Artifact) Event {
	e := Event{
		Kind:   a.Kind.String(),
		Reason: a.Reason.String(),
		Human:  a.Human,
		Motion: a.Motion,
	}
	if a.IsVideo() {
		e.Media = "video"
	} else {
		e.Media = "photo"
	}
	return e
}
