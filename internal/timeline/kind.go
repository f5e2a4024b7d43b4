package timeline

// Kind tags an Event. The set is closed; Valid reports membership.
type Kind string

const (
	KindSchedulerReady    Kind = "scheduler-ready"
	KindSchedulerError    Kind = "scheduler-error"
	KindSchedulerComplete Kind = "scheduler-complete"

	KindPlay        Kind = "playback-play"
	KindPause       Kind = "playback-pause"
	KindStop        Kind = "playback-stop"
	KindSeek        Kind = "playback-seek"
	KindSpeedChange Kind = "playback-speed-change"

	KindLineStart    Kind = "line-start"
	KindLineProgress Kind = "line-progress"
	KindLineComplete Kind = "line-complete"

	// One-shot triggers.
	KindRipple  Kind = "ripple"
	KindCaption Kind = "caption"
)

var allKinds = []Kind{
	KindSchedulerReady, KindSchedulerError, KindSchedulerComplete,
	KindPlay, KindPause, KindStop, KindSeek, KindSpeedChange,
	KindLineStart, KindLineProgress, KindLineComplete,
	KindRipple, KindCaption,
}

// Kinds returns every known kind in declaration order.
func Kinds() []Kind {
	return append([]Kind(nil), allKinds...)
}

func (k Kind) String() string { return string(k) }

// Valid reports whether k belongs to the closed set.
func (k Kind) Valid() bool {
	for _, c := range allKinds {
		if c == k {
			return true
		}
	}
	return false
}

// IsLifecycle reports scheduler and playback markers emitted by the scheduler itself.
func (k Kind) IsLifecycle() bool {
	switch k {
	case KindSchedulerReady, KindSchedulerError, KindSchedulerComplete,
		KindPlay, KindPause, KindStop, KindSeek, KindSpeedChange:
		return true
	}
	return false
}

// IsLine reports the start/progress/complete triple.
func (k Kind) IsLine() bool {
	return k == KindLineStart || k == KindLineProgress || k == KindLineComplete
}

// IsTrigger reports one-shot visual triggers.
func (k Kind) IsTrigger() bool {
	return k == KindRipple || k == KindCaption
}

// IsDiscrete is true for everything except the continuous progress signal.
func (k Kind) IsDiscrete() bool {
	return k.Valid() && k != KindLineProgress
}

// Schedulable reports kinds that may appear in a loaded timeline. Progress and
// lifecycle events are synthesized by the scheduler and never come from a source.
func (k Kind) Schedulable() bool {
	return k == KindLineStart || k == KindLineComplete || k.IsTrigger()
}
