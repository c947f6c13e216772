package roleooc

import (
	"sync"
	"testing"

	"github.com/go-playground/assert/v2"

	"golang.org/x/exp/slices"
)

// in-memory transport that answers from canned responders and can
// inject pushes, standing in for the service
type fakeTransport struct {
	mutex      sync.Mutex
	online     bool
	nextId     int
	listeners  map[string][]*pushListener
	responders map[string]func(params Params) (Params, error)
	emitted    []emittedEvent
}

type emittedEvent struct {
	event  string
	params Params
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		online:     true,
		listeners:  map[string][]*pushListener{},
		responders: map[string]func(params Params) (Params, error){},
	}
}

func (self *fakeTransport) IsOnline() bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.online
}

func (self *fakeTransport) setOnline(online bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.online = online
}

func (self *fakeTransport) respond(event string, responder func(params Params) (Params, error)) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.responders[event] = responder
}

func (self *fakeTransport) Emit(event string, params Params, callback ResponseCallback) {
	self.mutex.Lock()
	responder := self.responders[event]
	self.emitted = append(self.emitted, emittedEvent{event: event, params: params})
	self.mutex.Unlock()

	if callback == nil {
		callback = func(data Params, err error) {}
	}
	if responder == nil {
		callback(nil, &RemoteError{Type: RemoteErrorTypeDoesNotExist})
		return
	}
	data, err := responder(params)
	if err != nil {
		callback(nil, err)
		return
	}
	callback(data, nil)
}

func (self *fakeTransport) AddListener(event string, handler PushHandler) func() {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	self.nextId += 1
	listenerId := self.nextId
	self.listeners[event] = append(self.listeners[event], &pushListener{
		listenerId: listenerId,
		handler:    handler,
	})

	return func() {
		self.mutex.Lock()
		defer self.mutex.Unlock()

		listeners := self.listeners[event]
		for i, listener := range listeners {
			if listener.listenerId == listenerId {
				self.listeners[event] = append(
					append([]*pushListener{}, listeners[:i]...),
					listeners[i+1:]...,
				)
				return
			}
		}
	}
}

func (self *fakeTransport) push(event string, data Params) {
	self.mutex.Lock()
	listeners := make([]*pushListener, len(self.listeners[event]))
	copy(listeners, self.listeners[event])
	self.mutex.Unlock()

	for _, listener := range listeners {
		listener.handler(data)
	}
}

func (self *fakeTransport) lastEmitted() (emittedEvent, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if len(self.emitted) == 0 {
		return emittedEvent{}, false
	}
	return self.emitted[len(self.emitted)-1], true
}

func roomCacheSettings() *CacheSettings {
	return &CacheSettings{
		ObjectType:     "room",
		ObjectTypes:    "rooms",
		RetrieveEvents: EventPair{One: "getRoom", Many: "getRooms"},
		CreateEvents:   EventPair{One: "createRoom"},
		UpdateEvents:   EventPair{One: "updateRoom"},
		RemoveEvents:   EventPair{One: "removeRoom"},
		EmitTypes:      []string{"room"},
		EventTypes:     EventPair{One: "room", Many: "rooms"},
	}
}

func newTestCache() (*Cache, *fakeTransport, *EventCentral) {
	transport := newFakeTransport()
	events := NewEventCentral()
	cache := NewCache(roomCacheSettings(), transport, events)
	return cache, transport, events
}

func room(objectId string, fields Params) map[string]any {
	return object(objectId, fields)
}

func TestFetchAllReplacesOnReset(t *testing.T) {
	cache, transport, _ := newTestCache()

	transport.respond("getRooms", func(params Params) (Params, error) {
		return Params{"rooms": []any{
			room("a", Params{"roomName": "alpha"}),
			room("b", Params{"roomName": "beta"}),
		}}, nil
	})

	var fetchErr error
	cache.FetchAll(nil, false, func(data Params, err error) {
		fetchErr = err
	})
	assert.Equal(t, nil, fetchErr)
	assert.Equal(t, true, cache.HasFetched())

	transport.respond("getRooms", func(params Params) (Params, error) {
		return Params{"rooms": []any{
			room("c", Params{"roomName": "gamma"}),
		}}, nil
	})

	cache.FetchAll(nil, true, nil)

	_, ok := cache.GetById("a")
	assert.Equal(t, false, ok)
	gamma, ok := cache.GetById("c")
	assert.Equal(t, true, ok)
	assert.Equal(t, "gamma", gamma["roomName"])
}

func TestFetchAllMergesWithoutReset(t *testing.T) {
	cache, transport, _ := newTestCache()

	transport.respond("getRooms", func(params Params) (Params, error) {
		return Params{"rooms": []any{
			room("a", Params{"roomName": "alpha"}),
		}}, nil
	})
	cache.FetchAll(nil, false, nil)

	transport.respond("getRooms", func(params Params) (Params, error) {
		return Params{"rooms": []any{
			room("b", Params{"roomName": "beta"}),
		}}, nil
	})
	cache.FetchAll(nil, false, nil)

	_, aOk := cache.GetById("a")
	_, bOk := cache.GetById("b")
	assert.Equal(t, true, aOk)
	assert.Equal(t, true, bOk)
}

func TestFetchAllOffline(t *testing.T) {
	cache, transport, events := newTestCache()
	transport.setOnline(false)

	errorEvents := 0
	dispose := events.Subscribe(EventError, func(payload any) {
		errorEvents += 1
	})
	defer dispose()

	var fetchErr error
	cache.FetchAll(nil, false, func(data Params, err error) {
		fetchErr = err
	})

	assert.Equal(t, ErrOffline, fetchErr)
	assert.Equal(t, 1, errorEvents)
	assert.Equal(t, false, cache.HasFetched())
}

func TestPushUpdateMergesPartially(t *testing.T) {
	cache, transport, _ := newTestCache()

	transport.push("room", Params{
		"changeType": "create",
		"room":       room("a", Params{"roomName": "alpha", "topic": "first"}),
	})
	transport.push("room", Params{
		"changeType": "update",
		"room":       room("a", Params{"topic": "second"}),
	})

	merged, ok := cache.GetById("a")
	assert.Equal(t, true, ok)
	assert.Equal(t, "alpha", merged["roomName"])
	assert.Equal(t, "second", merged["topic"])
}

func TestCreateThenRemove(t *testing.T) {
	cache, transport, _ := newTestCache()

	transport.push("room", Params{
		"changeType": "create",
		"room":       room("a", nil),
	})
	_, ok := cache.GetById("a")
	assert.Equal(t, true, ok)

	transport.push("room", Params{
		"changeType": "remove",
		"room":       room("a", nil),
	})
	_, ok = cache.GetById("a")
	assert.Equal(t, false, ok)
}

func TestRemoveIdempotent(t *testing.T) {
	cache, transport, events := newTestCache()

	changes := []ChangeType{}
	dispose := events.Subscribe("room", func(payload any) {
		change := payload.(ChangePayload)
		changes = append(changes, change.ChangeType)
	})
	defer dispose()

	remove := Params{
		"changeType": "remove",
		"room":       room("missing", nil),
	}
	transport.push("room", remove)
	transport.push("room", remove)

	// both publishes go through, neither has a side effect
	assert.Equal(t, []ChangeType{ChangeTypeRemove, ChangeTypeRemove}, changes)
	_, ok := cache.GetById("missing")
	assert.Equal(t, false, ok)
}

func TestPushRepublishedAsOwnChangeEvent(t *testing.T) {
	_, transport, events := newTestCache()

	var received ChangePayload
	dispose := events.Subscribe("room", func(payload any) {
		received = payload.(ChangePayload)
	})
	defer dispose()

	transport.push("room", Params{
		"changeType": "create",
		"room":       room("a", Params{"roomName": "alpha"}),
	})

	assert.Equal(t, ChangeTypeCreate, received.ChangeType)
	assert.Equal(t, "room", received.ObjectType)
	assert.Equal(t, "a", received.Record.ObjectId())
}

func TestCreateOffline(t *testing.T) {
	cache, transport, events := newTestCache()
	transport.setOnline(false)

	published := false
	dispose := events.Subscribe("room", func(payload any) {
		published = true
	})
	defer dispose()

	var createErr error
	cache.Create(Params{"room": Params{"roomName": "alpha"}}, func(data Params, err error) {
		createErr = err
	})

	assert.Equal(t, ErrOffline, createErr)
	assert.Equal(t, false, published)
	assert.Equal(t, 0, len(cache.GetMany(Query{})))
}

func TestUnsupportedOperation(t *testing.T) {
	transport := newFakeTransport()
	events := NewEventCentral()
	// wallets cannot be created by clients
	cache := NewCache(&CacheSettings{
		ObjectType:     "wallet",
		ObjectTypes:    "wallets",
		RetrieveEvents: EventPair{Many: "getWallets"},
		UpdateEvents:   EventPair{One: "updateWallet"},
		EventTypes:     EventPair{One: "wallet", Many: "wallets"},
	}, transport, events)

	var createErr error
	cache.Create(Params{}, func(data Params, err error) {
		createErr = err
	})
	assert.Equal(t, ErrUnsupportedOperation, createErr)

	var removeErr error
	cache.Remove(Params{}, func(data Params, err error) {
		removeErr = err
	})
	assert.Equal(t, ErrUnsupportedOperation, removeErr)
}

func TestCreateStoresResultWithoutLocalEvent(t *testing.T) {
	cache, transport, events := newTestCache()

	published := false
	dispose := events.Subscribe("room", func(payload any) {
		published = true
	})
	defer dispose()

	transport.respond("createRoom", func(params Params) (Params, error) {
		return Params{"room": room("a", Params{"roomName": "alpha"})}, nil
	})

	var result Params
	cache.Create(Params{"room": Params{"roomName": "alpha"}}, func(data Params, err error) {
		result = data
	})

	assert.NotEqual(t, nil, result)
	created, ok := cache.GetById("a")
	assert.Equal(t, true, ok)
	assert.Equal(t, "alpha", created["roomName"])
	// the server broadcast is responsible for the event
	assert.Equal(t, false, published)
}

func TestRemoteErrorSurfacedOnce(t *testing.T) {
	cache, transport, _ := newTestCache()

	transport.respond("createRoom", func(params Params) (Params, error) {
		return nil, &RemoteError{Type: RemoteErrorTypeAlreadyExists}
	})

	var createErr error
	cache.Create(Params{"room": Params{"roomName": "alpha"}}, func(data Params, err error) {
		createErr = err
	})

	assert.Equal(t, true, IsRemoteErrorType(createErr, RemoteErrorTypeAlreadyExists))
	assert.Equal(t, 0, len(cache.GetMany(Query{})))
}

func TestFetchOneMergesAndEmits(t *testing.T) {
	cache, transport, events := newTestCache()

	transport.push("room", Params{
		"changeType": "create",
		"room":       room("a", Params{"roomName": "alpha", "topic": "first"}),
	})

	transport.respond("getRoom", func(params Params) (Params, error) {
		return Params{"room": room("a", Params{"topic": "second"})}, nil
	})

	published := false
	dispose := events.Subscribe("room", func(payload any) {
		published = true
	})
	defer dispose()

	cache.FetchOne(Params{"roomId": "a"}, false, nil)

	merged, _ := cache.GetById("a")
	assert.Equal(t, "alpha", merged["roomName"])
	assert.Equal(t, "second", merged["topic"])
	assert.Equal(t, true, published)
}

func TestFetchOneNoEmit(t *testing.T) {
	cache, transport, events := newTestCache()

	transport.respond("getRoom", func(params Params) (Params, error) {
		return Params{"room": room("a", nil)}, nil
	})

	published := false
	dispose := events.Subscribe("room", func(payload any) {
		published = true
	})
	defer dispose()

	cache.FetchOne(Params{"roomId": "a"}, true, nil)

	_, ok := cache.GetById("a")
	assert.Equal(t, true, ok)
	assert.Equal(t, false, published)
}

func TestGetManyFilterAndSort(t *testing.T) {
	cache, transport, _ := newTestCache()

	transport.push("room", Params{"changeType": "create", "room": room("a", Params{"roomName": "zulu", "isWhisper": false})})
	transport.push("room", Params{"changeType": "create", "room": room("b", Params{"roomName": "alpha", "isWhisper": false})})
	transport.push("room", Params{"changeType": "create", "room": room("c", Params{"roomName": "mike", "isWhisper": true})})

	records := cache.GetMany(Query{
		Filter: &FilterSpec{
			Rules: []FilterRule{
				{ParamName: "isWhisper", ParamValue: false},
			},
		},
		Sorting: &SortSpec{ParamName: "roomName"},
	})

	assert.Equal(t, 2, len(records))
	assert.Equal(t, "alpha", records[0]["roomName"])
	assert.Equal(t, "zulu", records[1]["roomName"])
}

func TestCollectionEventCarriesFullSet(t *testing.T) {
	cache, transport, events := newTestCache()

	var last CollectionPayload
	dispose := events.Subscribe("rooms", func(payload any) {
		last = payload.(CollectionPayload)
	})
	defer dispose()

	transport.respond("getRooms", func(params Params) (Params, error) {
		return Params{"rooms": []any{room("a", nil)}}, nil
	})
	cache.FetchAll(nil, false, nil)
	assert.Equal(t, 1, len(last.Records))

	transport.respond("getRooms", func(params Params) (Params, error) {
		return Params{"rooms": []any{room("b", nil)}}, nil
	})
	cache.FetchAll(nil, false, nil)

	// the merged fetch announces both records, not just the response
	ids := []string{}
	for _, record := range last.Records {
		ids = append(ids, record.ObjectId())
	}
	assert.Equal(t, 2, len(ids))
	assert.Equal(t, true, slices.Contains(ids, "a"))
	assert.Equal(t, true, slices.Contains(ids, "b"))
}

func TestLogoutResetsAndRefetches(t *testing.T) {
	cache, transport, events := newTestCache()

	transport.push("room", Params{"changeType": "create", "room": room("a", nil)})

	transport.respond("getRooms", func(params Params) (Params, error) {
		return Params{"rooms": []any{room("b", nil)}}, nil
	})

	events.Publish(EventLogout, LogoutPayload{Reset: true})

	_, aOk := cache.GetById("a")
	_, bOk := cache.GetById("b")
	assert.Equal(t, false, aOk)
	assert.Equal(t, true, bOk)
}
