package playback

import "sync"

// stateCell holds the published playback snapshot and the subscriber set.
// The run loop is the only writer; readers take copies so status queries
// never block behind an in-flight command.
type stateCell struct {
	mu   sync.RWMutex
	snap Snapshot
	subs map[*Subscription]struct{}
}

func newStateCell(initial Snapshot) *stateCell {
	return &stateCell{
		snap: initial,
		subs: make(map[*Subscription]struct{}),
	}
}

func (c *stateCell) load() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.clone()
}

// commit applies a mutation to the snapshot and fans out events for
// whatever changed.
func (c *stateCell) commit(mutate func(*Snapshot)) {
	c.mu.Lock()
	prev := c.snap.clone()
	mutate(&c.snap)
	cur := c.snap.clone()
	c.mu.Unlock()

	c.mu.RLock()
	defer c.mu.RUnlock()
	for sub := range c.subs {
		if cur.Status != prev.Status {
			sub.sendState(StateChange{Previous: prev.Status, Current: cur.Status})
		}
		if cur.TrackPosition != prev.TrackPosition || cur.MediaID != prev.MediaID {
			sub.sendTrack(TrackChange{MediaID: cur.MediaID, Position: cur.TrackPosition, Track: cur.Track})
		}
		if cur.Volume != prev.Volume {
			sub.sendVolume(VolumeChange{Volume: cur.Volume})
		}
		if cur.ErrorMessage != "" && cur.ErrorMessage != prev.ErrorMessage {
			sub.sendError(ErrorEvent{MediaID: cur.MediaID, Message: cur.ErrorMessage})
		}
	}
}

func (c *stateCell) subscribe() *Subscription {
	sub := newSubscription()
	c.mu.Lock()
	c.subs[sub] = struct{}{}
	c.mu.Unlock()
	return sub
}

func (c *stateCell) unsubscribe(sub *Subscription) {
	c.mu.Lock()
	if _, ok := c.subs[sub]; ok {
		delete(c.subs, sub)
		sub.close()
	}
	c.mu.Unlock()
}

func (c *stateCell) closeSubs() {
	c.mu.Lock()
	for sub := range c.subs {
		sub.close()
		delete(c.subs, sub)
	}
	c.mu.Unlock()
}
