package roleooc

import (
	"sync"

	"github.com/golang/glog"
)

type EventType string

// lifecycle events consumed by every cache
const (
	EventStartup    EventType = "startup"
	EventLogin      EventType = "login"
	EventLogout     EventType = "logout"
	EventReconnect  EventType = "reconnect"
	EventDisconnect EventType = "disconnect"
	EventError      EventType = "error"
	EventAccess     EventType = "access"
	EventSwitchRoom EventType = "switchRoom"
)

type StartupPayload struct {
	ShouldReset bool
}

type LogoutPayload struct {
	Reset bool
}

type ErrorPayload struct {
	Event string
	Err   error
}

type AccessPayload struct {
	AccessLevel int
}

type SwitchRoomPayload struct {
	RoomId string
}

// ChangePayload carries one changed record for an entity type.
// REMOVE payloads carry at least the object id.
type ChangePayload struct {
	ChangeType ChangeType
	ObjectType string
	Record     Record
}

// CollectionPayload carries the full set after a fetch.
type CollectionPayload struct {
	ObjectType string
	Records    []Record
	HasReset   bool
}

type EventHandler func(payload any)

type eventWatcher struct {
	watcherId int
	handler   EventHandler
}

// EventCentral is the process-wide publish/subscribe registry.
// Handlers are invoked synchronously in registration order.
// There is no replay of missed events.
type EventCentral struct {
	mutex    sync.Mutex
	nextId   int
	watchers map[EventType][]*eventWatcher
}

func NewEventCentral() *EventCentral {
	return &EventCentral{
		watchers: map[EventType][]*eventWatcher{},
	}
}

// Subscribe registers a handler and returns a disposer.
// Teardown paths must call the disposer or the subscription leaks.
func (self *EventCentral) Subscribe(event EventType, handler EventHandler) func() {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	self.nextId += 1
	watcherId := self.nextId
	self.watchers[event] = append(self.watchers[event], &eventWatcher{
		watcherId: watcherId,
		handler:   handler,
	})

	return func() {
		self.mutex.Lock()
		defer self.mutex.Unlock()

		watchers := self.watchers[event]
		for i, watcher := range watchers {
			if watcher.watcherId == watcherId {
				next := make([]*eventWatcher, 0, len(watchers)-1)
				next = append(next, watchers[:i]...)
				next = append(next, watchers[i+1:]...)
				self.watchers[event] = next
				return
			}
		}
	}
}

// Publish invokes every currently registered handler for the event.
// A handler panicking does not prevent later handlers from running.
func (self *EventCentral) Publish(event EventType, payload any) {
	self.mutex.Lock()
	watchers := make([]*eventWatcher, len(self.watchers[event]))
	copy(watchers, self.watchers[event])
	self.mutex.Unlock()

	for _, watcher := range watchers {
		self.invoke(event, watcher, payload)
	}
}

func (self *EventCentral) invoke(event EventType, watcher *eventWatcher, payload any) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("[events]handler panic %s = %v\n", event, r)
		}
	}()
	watcher.handler(payload)
}
