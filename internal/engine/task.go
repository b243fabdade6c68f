package engine

// Mode distinguishes a new utterance from a resume-at-index request.
type Mode int

const (
	// ModeSpeak speaks a new utterance.
	ModeSpeak Mode = iota
	// ModeSpeakIndex continues playback at a previously reported index.
	ModeSpeakIndex
)

// String returns the string representation of the mode
func (m Mode) String() string {
	switch m {
	case ModeSpeak:
		return "speak"
	case ModeSpeakIndex:
		return "speak_index"
	default:
		return "unknown"
	}
}

// Playable is the part of a voice instance the playback worker drives.
type Playable interface {
	// Name returns the public identity used in notifications.
	Name() string

	// Activate marks the instance as the one about to speak.
	Activate()

	// Dispatch hands the request to the native engine. It returns once the
	// engine has accepted the request, not once audio finishes. hold is the
	// token ticket the worker acquired; whoever observes end of speech
	// releases it.
	Dispatch(hold Ticket, mode Mode, text string, index int) error
}

// SpeechTask is one request consumed exactly once by the playback worker.
// A task with a nil Target is the worker's stop sentinel.
type SpeechTask struct {
	Target Playable
	Text   string
	Index  int
	Mode   Mode
}

// IsSentinel reports whether the task stops the worker loop.
func (t SpeechTask) IsSentinel() bool {
	return t.Target == nil
}

// TaskSink is the collaborator an instance submits asynchronous requests to.
// TaskDone marks the oldest dispatched task as finished once the native engine
// signals end of speech.
type TaskSink interface {
	Submit(task SpeechTask)
	TaskDone()
}
