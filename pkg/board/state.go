package board

// State is the bring-up state of a session.
type State int

// States of a session.
const (
	Disconnected State = iota
	AwaitingChannels
	AwaitingStatus
	AwaitingExpansionHandshake
	SettingReportType
	Streaming
	Failed
)

var stateNames = [...]string{
	Disconnected:               "disconnected",
	AwaitingChannels:           "awaiting-channels",
	AwaitingStatus:             "awaiting-status",
	AwaitingExpansionHandshake: "awaiting-expansion-handshake",
	SettingReportType:          "setting-report-type",
	Streaming:                  "streaming",
	Failed:                     "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Active reports whether the session is neither failed nor disconnected.
func (s State) Active() bool {
	return s != Disconnected && s != Failed
}
