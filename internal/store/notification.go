package store

import (
	"iter"
	"sort"
	"sync"

	"github.com/dukerupert/healthnotify/internal/model"
)

// Classifier converts raw records into domain notifications.
type Classifier interface {
	Classify(raw model.RawNotification) model.DomainNotification
}

type ChangeKind string

const (
	ChangeSeeded   ChangeKind = "seeded"
	ChangeInserted ChangeKind = "inserted"
	ChangeReplaced ChangeKind = "replaced"
	ChangeRead     ChangeKind = "read"
)

// Change describes one mutation of the store.
type Change struct {
	Kind ChangeKind
	IDs  []int64
}

// Listener is called after every mutation, outside the store lock.
type Listener func(Change)

// NotificationStore is the in-memory, newest-first list of classified
// notifications. Identifiers are unique; Read is the only mutable field.
type NotificationStore struct {
	classifier Classifier

	mu    sync.RWMutex
	items []model.DomainNotification
	live  map[int64]struct{}

	listenerMu   sync.Mutex
	listeners    map[int]Listener
	nextListener int
}

func NewNotificationStore(c Classifier) *NotificationStore {
	return &NotificationStore{
		classifier: c,
		live:       make(map[int64]struct{}),
		listeners:  make(map[int]Listener),
	}
}

// Seed replaces the store contents with a historical batch ordered newest
// first by creation time. Live-pushed entries absent from the batch stay at
// the front in their current order.
func (s *NotificationStore) Seed(raws []model.RawNotification) {
	batch := make([]model.DomainNotification, 0, len(raws))
	pos := make(map[int64]int, len(raws))
	for _, raw := range raws {
		n := s.classifier.Classify(raw)
		if i, ok := pos[n.ID]; ok {
			batch[i] = n
			continue
		}
		pos[n.ID] = len(batch)
		batch = append(batch, n)
	}
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].CreatedAt.After(batch[j].CreatedAt)
	})

	s.mu.Lock()
	var kept []model.DomainNotification
	for _, n := range s.items {
		if _, isLive := s.live[n.ID]; !isLive {
			continue
		}
		if _, inBatch := pos[n.ID]; inBatch {
			delete(s.live, n.ID)
			continue
		}
		kept = append(kept, n)
	}
	s.items = append(kept, batch...)
	ids := make([]int64, len(s.items))
	for i, n := range s.items {
		ids[i] = n.ID
	}
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeSeeded, IDs: ids})
}

// IngestLive classifies raw and puts it at the front of the list. A record
// whose identifier is already present replaces that entry in place.
func (s *NotificationStore) IngestLive(raw model.RawNotification) model.DomainNotification {
	n := s.classifier.Classify(raw)

	s.mu.Lock()
	kind := ChangeInserted
	if i := s.indexOf(n.ID); i >= 0 {
		s.items[i] = n
		kind = ChangeReplaced
	} else {
		s.items = append(s.items, model.DomainNotification{})
		copy(s.items[1:], s.items)
		s.items[0] = n
	}
	s.live[n.ID] = struct{}{}
	s.mu.Unlock()

	s.notify(Change{Kind: kind, IDs: []int64{n.ID}})
	return n
}

// MarkRead sets the read flag on id and reports the previous value so a
// caller can roll back. ok is false when id is unknown.
func (s *NotificationStore) MarkRead(id int64) (previous bool, ok bool) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return false, false
	}
	previous = s.items[i].Read
	s.items[i].Read = true
	s.mu.Unlock()

	if !previous {
		s.notify(Change{Kind: ChangeRead, IDs: []int64{id}})
	}
	return previous, true
}

// SetRead forces the read flag on id. It reports whether id exists.
func (s *NotificationStore) SetRead(id int64, read bool) bool {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	changed := s.items[i].Read != read
	s.items[i].Read = read
	s.mu.Unlock()

	if changed {
		s.notify(Change{Kind: ChangeRead, IDs: []int64{id}})
	}
	return true
}

// MarkAllRead marks every unread entry as read and returns the affected ids.
func (s *NotificationStore) MarkAllRead() []int64 {
	s.mu.Lock()
	var ids []int64
	for i := range s.items {
		if !s.items[i].Read {
			s.items[i].Read = true
			ids = append(ids, s.items[i].ID)
		}
	}
	s.mu.Unlock()

	if len(ids) > 0 {
		s.notify(Change{Kind: ChangeRead, IDs: ids})
	}
	return ids
}

func (s *NotificationStore) Get(id int64) (model.DomainNotification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.items[i], true
	}
	return model.DomainNotification{}, false
}

// List returns a copy of the current entries, newest first.
func (s *NotificationStore) List() []model.DomainNotification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.DomainNotification, len(s.items))
	copy(out, s.items)
	return out
}

func (s *NotificationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *NotificationStore) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.items {
		if !n.Read {
			count++
		}
	}
	return count
}

// Filter returns a lazy view over the entries matching every predicate. Each
// iteration reads the store as it is at that moment; the store is never
// mutated by iterating.
func (s *NotificationStore) Filter(preds ...Predicate) iter.Seq[model.DomainNotification] {
	return func(yield func(model.DomainNotification) bool) {
		for _, n := range s.List() {
			if !matchAll(n, preds) {
				continue
			}
			if !yield(n) {
				return
			}
		}
	}
}

// OnChange registers l and returns a function that removes it.
func (s *NotificationStore) OnChange(l Listener) (cancel func()) {
	s.listenerMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l
	s.listenerMu.Unlock()

	return func() {
		s.listenerMu.Lock()
		delete(s.listeners, id)
		s.listenerMu.Unlock()
	}
}

func (s *NotificationStore) notify(c Change) {
	s.listenerMu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	ls := make([]Listener, len(ids))
	for i, id := range ids {
		ls[i] = s.listeners[id]
	}
	s.listenerMu.Unlock()

	for _, l := range ls {
		l(c)
	}
}

// indexOf must be called with s.mu held.
func (s *NotificationStore) indexOf(id int64) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}
