package pcm

// StreamState is the lifecycle state of the playback stream.
type StreamState int32

// Stream states.
const (
	StreamDisabled StreamState = iota // no transfers in flight
	StreamStarting                    // primed, waiting for the first ack
	StreamRunning                     // dispatch loop active
	StreamStopping                    // cancelling transfers
)

// String returns the state name.
func (s StreamState) String() string {
	switch s {
	case StreamDisabled:
		return "disabled"
	case StreamStarting:
		return "starting"
	case StreamRunning:
		return "running"
	case StreamStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// TriggerCommand is a host trigger request.
type TriggerCommand int

// Trigger commands.
const (
	TriggerStop TriggerCommand = iota
	TriggerStart
	TriggerPausePush
	TriggerPauseRelease
	TriggerSuspend
	TriggerResume
)

// String returns the command name.
func (c TriggerCommand) String() string {
	switch c {
	case TriggerStop:
		return "stop"
	case TriggerStart:
		return "start"
	case TriggerPausePush:
		return "pause-push"
	case TriggerPauseRelease:
		return "pause-release"
	case TriggerSuspend:
		return "suspend"
	case TriggerResume:
		return "resume"
	default:
		return "unknown"
	}
}
