package client

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// PlaybackGuard reports whether feed changes must be held back
type PlaybackGuard interface {
	IsProtectedMediaPlaying() bool
}

type PlaybackEventType int

const (
	PlaybackStarted PlaybackEventType = iota
	PlaybackStopped
)

func (t PlaybackEventType) String() string {
	if t == PlaybackStarted {
		return "started"
	}
	return "stopped"
}

// PlaybackEvent is published when protected playback starts or stops
type PlaybackEvent struct {
	Type PlaybackEventType
}

type mediaState struct {
	playing bool
	ended   bool
}

// PlaybackRegistry tracks the audio and video players of the page. Media
// counts as protected while it plays, has not ended and the page is visible.
type PlaybackRegistry struct {
	mu      sync.Mutex
	media   map[string]*mediaState
	visible bool
	active  bool
	events  chan PlaybackEvent
}

func NewPlaybackRegistry() *PlaybackRegistry {
	return &PlaybackRegistry{
		media:   map[string]*mediaState{},
		visible: true,
		events:  make(chan PlaybackEvent, 16),
	}
}

// Events delivers transitions of IsProtectedMediaPlaying. Events are dropped
// when nobody keeps up; the merger's periodic flush covers for them.
func (r *PlaybackRegistry) Events() <-chan PlaybackEvent {
	return r.events
}

func (r *PlaybackRegistry) Register(id string) {
	r.update(func() {
		if _, ok := r.media[id]; !ok {
			r.media[id] = &mediaState{}
		}
	})
}

func (r *PlaybackRegistry) Unregister(id string) {
	r.update(func() {
		delete(r.media, id)
	})
}

func (r *PlaybackRegistry) Play(id string) {
	r.update(func() {
		r.state(id).playing = true
		r.state(id).ended = false
	})
}

func (r *PlaybackRegistry) Pause(id string) {
	r.update(func() {
		r.state(id).playing = false
	})
}

func (r *PlaybackRegistry) End(id string) {
	r.update(func() {
		s := r.state(id)
		s.playing = false
		s.ended = true
	})
}

// SetVisible records whether the page is shown
func (r *PlaybackRegistry) SetVisible(visible bool) {
	r.update(func() {
		r.visible = visible
	})
}

func (r *PlaybackRegistry) IsProtectedMediaPlaying() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// state must be called with the lock held
func (r *PlaybackRegistry) state(id string) *mediaState {
	s, ok := r.media[id]
	if !ok {
		s = &mediaState{}
		r.media[id] = s
	}
	return s
}

func (r *PlaybackRegistry) update(mutate func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	mutate()
	active := false
	if r.visible {
		for _, s := range r.media {
			if s.playing && !s.ended {
				active = true
				break
			}
		}
	}
	if active == r.active {
		return
	}
	r.active = active

	event := PlaybackEvent{Type: PlaybackStopped}
	if active {
		event.Type = PlaybackStarted
	}
	select {
	case r.events <- event:
	default:
		log.Debugf("Dropping playback %s event", event.Type)
	}
}

var _ PlaybackGuard = (*PlaybackRegistry)(nil)
