package framebus

// State is the position of the publish loop
type State int32

const (
	Idle State = iota
	Capturing
	Encoding
	AwaitingCredit
	Publishing
	Dropping
	Stopped
)

var stateNames = map[State]string{
	Idle:           "idle",
	Capturing:      "capturing",
	Encoding:       "encoding",
	AwaitingCredit: "awaiting_credit",
	Publishing:     "publishing",
	Dropping:       "dropping",
	Stopped:        "stopped",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}
