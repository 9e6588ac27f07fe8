package domain

import (
	"time"
)

// Event is anything published on the event bus.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// EventType is a string identifier for different event types.
type EventType string

// Event type constants define all possible events in the system.
const (
	// Song events
	EventDownloadProgress EventType = "song.download_progress"
	EventDownloadFinished EventType = "song.download_finished"
	EventSongError        EventType = "song.error"
	EventSongStateChanged EventType = "song.state_changed"

	// Index events
	EventIndexLoaded           EventType = "index.loaded"
	EventIndexRefreshCompleted EventType = "index.refresh_completed"
)

// EventHandler is a function that handles events.
type EventHandler func(event Event)

// SubscriptionID uniquely identifies an event subscription.
type SubscriptionID string

// EventFilter reports whether a subscriber wants an event.
type EventFilter func(event Event) bool

// ForVariant matches the download events of one variant.
func ForVariant(uniqueID string) EventFilter {
	return func(event Event) bool {
		switch e := event.(type) {
		case DownloadProgressEvent:
			return e.UniqueID == uniqueID
		case DownloadFinishedEvent:
			return e.UniqueID == uniqueID
		}
		return false
	}
}

// ForSong matches events that concern a single song.
func ForSong(gdID int) EventFilter {
	return func(event Event) bool {
		switch e := event.(type) {
		case DownloadProgressEvent:
			return e.GDID == gdID
		case DownloadFinishedEvent:
			return e.GDID == gdID
		case SongStateChangedEvent:
			return e.GDID == gdID
		}
		return false
	}
}

// baseEvent provides common event functionality.
// All concrete events should embed this struct.
type baseEvent struct {
	timestamp time.Time
}

// Timestamp returns when the event occurred.
func (e baseEvent) Timestamp() time.Time {
	return e.timestamp
}

// newBaseEvent creates a new base event with the current timestamp.
func newBaseEvent() baseEvent {
	return baseEvent{timestamp: time.Now()}
}

// DownloadProgressEvent is published whenever a download task reports progress.
type DownloadProgressEvent struct {
	baseEvent
	GDID     int
	UniqueID string
	Progress float64 // 0.0 to 1.0
}

// Type returns the event type.
func (e DownloadProgressEvent) Type() EventType {
	return EventDownloadProgress
}

// NewDownloadProgressEvent creates a new DownloadProgressEvent.
func NewDownloadProgressEvent(gdID int, uniqueID string, progress float64) DownloadProgressEvent {
	return DownloadProgressEvent{
		baseEvent: newBaseEvent(),
		GDID:      gdID,
		UniqueID:  uniqueID,
		Progress:  progress,
	}
}

// DownloadFinishedEvent is published exactly once per download task.
type DownloadFinishedEvent struct {
	baseEvent
	GDID     int
	UniqueID string
	Outcome  DownloadOutcome
	Path     string // written file, empty if nothing was written
	Err      error  // nil when completed
}

// Type returns the event type.
func (e DownloadFinishedEvent) Type() EventType {
	return EventDownloadFinished
}

// NewDownloadFinishedEvent creates a new DownloadFinishedEvent.
func NewDownloadFinishedEvent(gdID int, uniqueID string, outcome DownloadOutcome, path string, err error) DownloadFinishedEvent {
	return DownloadFinishedEvent{
		baseEvent: newBaseEvent(),
		GDID:      gdID,
		UniqueID:  uniqueID,
		Outcome:   outcome,
		Path:      path,
		Err:       err,
	}
}

// SongErrorEvent reports a failure. UserFacing errors should be surfaced
// to the user; the rest are informational.
type SongErrorEvent struct {
	baseEvent
	UserFacing bool
	Message    string
	Err        error
}

// Type returns the event type.
func (e SongErrorEvent) Type() EventType {
	return EventSongError
}

// NewSongErrorEvent creates a new SongErrorEvent.
func NewSongErrorEvent(userFacing bool, message string, err error) SongErrorEvent {
	return SongErrorEvent{
		baseEvent:  newBaseEvent(),
		UserFacing: userFacing,
		Message:    message,
		Err:        err,
	}
}

// SongStateChangedEvent is published when the variants of a song changed.
type SongStateChangedEvent struct {
	baseEvent
	GDID int
}

// Type returns the event type.
func (e SongStateChangedEvent) Type() EventType {
	return EventSongStateChanged
}

// NewSongStateChangedEvent creates a new SongStateChangedEvent.
func NewSongStateChangedEvent(gdID int) SongStateChangedEvent {
	return SongStateChangedEvent{
		baseEvent: newBaseEvent(),
		GDID:      gdID,
	}
}

// IndexLoadedEvent is published after a catalog file is parsed into memory.
type IndexLoadedEvent struct {
	baseEvent
	Index    IndexMetadata
	Variants int // entries added to the index table
}

// Type returns the event type.
func (e IndexLoadedEvent) Type() EventType {
	return EventIndexLoaded
}

// NewIndexLoadedEvent creates a new IndexLoadedEvent.
func NewIndexLoadedEvent(index IndexMetadata, variants int) IndexLoadedEvent {
	return IndexLoadedEvent{
		baseEvent: newBaseEvent(),
		Index:     index,
		Variants:  variants,
	}
}

// IndexRefreshCompletedEvent is published when every source of a refresh
// has been processed.
type IndexRefreshCompletedEvent struct {
	baseEvent
	Sources int // enabled sources fetched
	Loaded  int // catalogs loaded into memory
	Songs   int // songs with at least one index variant
}

// Type returns the event type.
func (e IndexRefreshCompletedEvent) Type() EventType {
	return EventIndexRefreshCompleted
}

// NewIndexRefreshCompletedEvent creates a new IndexRefreshCompletedEvent.
func NewIndexRefreshCompletedEvent(sources, loaded, songs int) IndexRefreshCompletedEvent {
	return IndexRefreshCompletedEvent{
		baseEvent: newBaseEvent(),
		Sources:   sources,
		Loaded:    loaded,
		Songs:     songs,
	}
}
