package dispatch

// State is a step in an invocation's lifecycle.
type State int

const (
	Received State = iota
	Decoded
	Executed
	Committed
	Aborted
	Replied
)

var stateNames = [...]string{
	Received:  "Received",
	Decoded:   "Decoded",
	Executed:  "Executed",
	Committed: "Committed",
	Aborted:   "Aborted",
	Replied:   "Replied",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}
