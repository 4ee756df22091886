package registry

import (
	"sync"

	"github.com/inaetics/node-wiring-go/interfaces"
	"github.com/stretchr/testify/mock"
)

// Notification is one callback received by a RecordingListener.
type Notification struct {
	Added  bool
	WireID string
	Filter string
}

// RecordingListener is an in-memory listener that remembers every callback.
// It is meant for tests and diagnostics.
type RecordingListener struct {
	mu     sync.Mutex
	events []Notification
	live   map[string]*interfaces.WiringEndpointDescription
}

// NewRecordingListener creates an empty recorder.
func NewRecordingListener() *RecordingListener {
	return &RecordingListener{live: map[string]*interfaces.WiringEndpointDescription{}}
}

func (l *RecordingListener) WiringEndpointAdded(ep *interfaces.WiringEndpointDescription, filter string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, Notification{Added: true, WireID: ep.WireID(), Filter: filter})
	l.live[ep.WireID()] = ep
	return nil
}

func (l *RecordingListener) WiringEndpointRemoved(ep *interfaces.WiringEndpointDescription, filter string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, Notification{Added: false, WireID: ep.WireID(), Filter: filter})
	delete(l.live, ep.WireID())
	return nil
}

// Events returns all notifications in delivery order.
func (l *RecordingListener) Events() []Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Notification(nil), l.events...)
}

// Added returns the wire ids of all "added" notifications in order.
func (l *RecordingListener) Added() []string {
	return l.filterEvents(true)
}

// Removed returns the wire ids of all "removed" notifications in order.
func (l *RecordingListener) Removed() []string {
	return l.filterEvents(false)
}

func (l *RecordingListener) filterEvents(added bool) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var ids []string
	for _, e := range l.events {
		if e.Added == added {
			ids = append(ids, e.WireID)
		}
	}
	return ids
}

// Live returns the endpoint last added under wireID and not removed since.
func (l *RecordingListener) Live(wireID string) (*interfaces.WiringEndpointDescription, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ep, ok := l.live[wireID]
	return ep, ok
}

// MockListener mocks interfaces.WiringEndpointListener.
type MockListener struct {
	mock.Mock
}

// WiringEndpointAdded mocks the WiringEndpointAdded method
func (m *MockListener) WiringEndpointAdded(ep *interfaces.WiringEndpointDescription, filter string) error {
	args := m.Called(ep, filter)
	return args.Error(0)
}

// WiringEndpointRemoved mocks the WiringEndpointRemoved method
func (m *MockListener) WiringEndpointRemoved(ep *interfaces.WiringEndpointDescription, filter string) error {
	args := m.Called(ep, filter)
	return args.Error(0)
}
