package controller

import "sync"

// eventBufferSize matches the teacher's internal/playback/subscription.go,
// which this bus generalizes from a fixed set of playback events to the
// controller's own event/observable vocabulary.
const eventBufferSize = 16

// Subscription provides event and observable channels for one subscriber.
// Every channel is buffered and every send is non-blocking: a slow or
// absent subscriber drops events rather than stalling the controller.
type Subscription struct {
	StateChanged    <-chan StateChangedEvent
	SettingsChanged <-chan SettingsChangedEvent
	BufferTimestamp <-chan TimestampEvent
	PlaybackTime    <-chan TimestampEvent
	BufferComplete  <-chan BufferCompleteEvent
	PlaybackComplete <-chan PlaybackCompleteEvent
	Error           <-chan ErrorEvent
	Done            <-chan struct{}

	stateCh    chan StateChangedEvent
	settingsCh chan SettingsChangedEvent
	bufTsCh    chan TimestampEvent
	playTsCh   chan TimestampEvent
	bufCompCh  chan BufferCompleteEvent
	playCompCh chan PlaybackCompleteEvent
	errorCh    chan ErrorEvent
	doneCh     chan struct{}
}

func newSubscription() *Subscription {
	s := &Subscription{
		stateCh:    make(chan StateChangedEvent, eventBufferSize),
		settingsCh: make(chan SettingsChangedEvent, eventBufferSize),
		bufTsCh:    make(chan TimestampEvent, eventBufferSize),
		playTsCh:   make(chan TimestampEvent, eventBufferSize),
		bufCompCh:  make(chan BufferCompleteEvent, eventBufferSize),
		playCompCh: make(chan PlaybackCompleteEvent, eventBufferSize),
		errorCh:    make(chan ErrorEvent, eventBufferSize),
		doneCh:     make(chan struct{}),
	}
	s.StateChanged = s.stateCh
	s.SettingsChanged = s.settingsCh
	s.BufferTimestamp = s.bufTsCh
	s.PlaybackTime = s.playTsCh
	s.BufferComplete = s.bufCompCh
	s.PlaybackComplete = s.playCompCh
	s.Error = s.errorCh
	s.Done = s.doneCh
	return s
}

func (s *Subscription) close() { close(s.doneCh) }

func (s *Subscription) sendState(e StateChangedEvent) {
	select {
	case s.stateCh <- e:
	default:
	}
}

func (s *Subscription) sendSettings(e SettingsChangedEvent) {
	select {
	case s.settingsCh <- e:
	default:
	}
}

func (s *Subscription) sendBufferTimestamp(e TimestampEvent) {
	select {
	case s.bufTsCh <- e:
	default:
	}
}

func (s *Subscription) sendPlaybackTimestamp(e TimestampEvent) {
	select {
	case s.playTsCh <- e:
	default:
	}
}

func (s *Subscription) sendBufferComplete() {
	select {
	case s.bufCompCh <- BufferCompleteEvent{}:
	default:
	}
}

func (s *Subscription) sendPlaybackComplete() {
	select {
	case s.playCompCh <- PlaybackCompleteEvent{}:
	default:
	}
}

func (s *Subscription) sendError(e ErrorEvent) {
	select {
	case s.errorCh <- e:
	default:
	}
}

// bus fans a single controller's events out to every current subscriber.
// Subscribe/publish are called from command goroutines and from loop
// exception callbacks running on their own goroutine, so access is
// serialized by mu.
type bus struct {
	mu   sync.Mutex
	subs []*Subscription
}

func (b *bus) subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := newSubscription()
	b.subs = append(b.subs, sub)
	return sub
}

func (b *bus) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		s.close()
	}
	b.subs = nil
}

func (b *bus) publishState(e StateChangedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		s.sendState(e)
	}
}

func (b *bus) publishSettings(e SettingsChangedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		s.sendSettings(e)
	}
}

func (b *bus) publishBufferTimestamp(ts TimestampEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		s.sendBufferTimestamp(ts)
	}
}

func (b *bus) publishPlaybackTimestamp(ts TimestampEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		s.sendPlaybackTimestamp(ts)
	}
}

func (b *bus) publishBufferComplete() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		s.sendBufferComplete()
	}
}

func (b *bus) publishPlaybackComplete() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		s.sendPlaybackComplete()
	}
}

func (b *bus) publishError(e ErrorEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		s.sendError(e)
	}
}
