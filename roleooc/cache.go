package roleooc

import (
	"sync"

	"github.com/golang/glog"
)

// EventPair names the remote events for one verb, singular and plural.
type EventPair struct {
	One  string
	Many string
}

// CacheSettings declares one entity type: its remote events, the push
// message types to consume, and the local bus events to republish on.
// A verb with an empty event is unsupported for this type.
type CacheSettings struct {
	// singular and plural payload keys, e.g. "room"/"rooms"
	ObjectType  string
	ObjectTypes string

	RetrieveEvents EventPair
	CreateEvents   EventPair
	UpdateEvents   EventPair
	RemoveEvents   EventPair

	// server push message types merged into the mapping
	EmitTypes []string

	// local events republished on the bus: One per changed record,
	// Many after a full fetch
	EventTypes EventPair
}

// Cache is the in-memory authoritative mirror of one entity type's
// collection, synchronized with the service via request/response and
// incremental push. At most one record per object id; updates merge
// field by field.
type Cache struct {
	settings  *CacheSettings
	transport Transport
	events    *EventCentral

	stateLock  sync.Mutex
	objects    map[string]Record
	hasFetched bool
	fetched    chan struct{}

	disposers []func()
}

func NewCache(settings *CacheSettings, transport Transport, events *EventCentral) *Cache {
	cache := &Cache{
		settings:  settings,
		transport: transport,
		events:    events,
		objects:   map[string]Record{},
		fetched:   make(chan struct{}),
	}

	disposers := []func(){
		events.Subscribe(EventStartup, func(payload any) {
			shouldReset := false
			if startup, ok := payload.(StartupPayload); ok {
				shouldReset = startup.ShouldReset
			}
			cache.FetchAll(nil, shouldReset, nil)
		}),
		events.Subscribe(EventLogin, func(payload any) {
			cache.FetchAll(nil, false, nil)
		}),
		events.Subscribe(EventReconnect, func(payload any) {
			cache.FetchAll(nil, false, nil)
		}),
		events.Subscribe(EventLogout, func(payload any) {
			cache.Reset()
			cache.FetchAll(nil, true, nil)
		}),
	}

	for _, emitType := range settings.EmitTypes {
		disposers = append(disposers, transport.AddListener(emitType, cache.handlePush))
	}

	cache.disposers = disposers

	return cache
}

func (self *Cache) Settings() *CacheSettings {
	return self.settings
}

// Close releases the cache's bus and push subscriptions.
func (self *Cache) Close() {
	for _, dispose := range self.disposers {
		dispose()
	}
}

func (self *Cache) HasFetched() bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.hasFetched
}

// WhenFetched is closed once the first successful fetch completes.
// Dependents wait on this instead of polling.
func (self *Cache) WhenFetched() <-chan struct{} {
	return self.fetched
}

// Reset drops the local mapping. The fetched state is kept; a reset
// cache republishes once the following fetch completes.
func (self *Cache) Reset() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.objects = map[string]Record{}
}

// FetchAll retrieves the full collection. With reset the local mapping is
// replaced, otherwise merged. On success hasFetched is set and the
// collection-changed event published. Offline fails with ErrOffline and
// publishes an error event; there is no automatic retry.
func (self *Cache) FetchAll(params Params, reset bool, callback ResponseCallback) {
	self.fetchAllVia(self.settings.RetrieveEvents.Many, params, reset, callback)
}

// FetchAllVia retrieves a subset through an alternate remote event,
// e.g. messages for one room, and merges it in without a reset.
func (self *Cache) FetchAllVia(event string, params Params, callback ResponseCallback) {
	self.fetchAllVia(event, params, false, callback)
}

func (self *Cache) fetchAllVia(event string, params Params, reset bool, callback ResponseCallback) {
	if callback == nil {
		callback = func(data Params, err error) {}
	}
	if event == "" {
		callback(nil, ErrUnsupportedOperation)
		return
	}
	if !self.transport.IsOnline() {
		self.events.Publish(EventError, ErrorPayload{Event: event, Err: ErrOffline})
		callback(nil, ErrOffline)
		return
	}

	self.transport.Emit(event, params, func(data Params, err error) {
		if err != nil {
			self.events.Publish(EventError, ErrorPayload{Event: event, Err: err})
			callback(nil, err)
			return
		}

		records := recordsFromData(data, self.settings.ObjectTypes)

		self.stateLock.Lock()
		if reset {
			self.objects = map[string]Record{}
		}
		for _, record := range records {
			self.mergeLocked(record)
		}
		if !self.hasFetched {
			self.hasFetched = true
			close(self.fetched)
		}
		// the event carries the full mapping, not just this response,
		// so a non-reset fetch of a subset still announces everything
		all := make([]Record, 0, len(self.objects))
		for _, record := range self.objects {
			all = append(all, record.Clone())
		}
		self.stateLock.Unlock()

		self.events.Publish(EventType(self.settings.EventTypes.Many), CollectionPayload{
			ObjectType: self.settings.ObjectTypes,
			Records:    all,
			HasReset:   reset,
		})

		callback(data, nil)
	})
}

// FetchOne retrieves a single record and merges it into the mapping,
// creating it if absent. Unless noEmit is set, the single-changed event
// is published.
func (self *Cache) FetchOne(params Params, noEmit bool, callback ResponseCallback) {
	if callback == nil {
		callback = func(data Params, err error) {}
	}
	event := self.settings.RetrieveEvents.One
	if event == "" {
		callback(nil, ErrUnsupportedOperation)
		return
	}
	if !self.transport.IsOnline() {
		if !noEmit {
			self.events.Publish(EventError, ErrorPayload{Event: event, Err: ErrOffline})
		}
		callback(nil, ErrOffline)
		return
	}

	self.transport.Emit(event, params, func(data Params, err error) {
		if err != nil {
			if !noEmit {
				self.events.Publish(EventError, ErrorPayload{Event: event, Err: err})
			}
			callback(nil, err)
			return
		}

		record := recordFromData(data, self.settings.ObjectType)
		if record == nil {
			callback(data, nil)
			return
		}

		self.stateLock.Lock()
		merged := self.mergeLocked(record)
		self.stateLock.Unlock()

		if !noEmit {
			self.events.Publish(EventType(self.settings.EventTypes.One), ChangePayload{
				ChangeType: ChangeTypeUpdate,
				ObjectType: self.settings.ObjectType,
				Record:     merged.Clone(),
			})
		}

		callback(data, nil)
	})
}

// Create creates a record on the service and stores the result locally.
// No local event is published; the server broadcast drives the event,
// which this cache also consumes.
func (self *Cache) Create(params Params, callback ResponseCallback) {
	self.CreateVia(self.settings.CreateEvents.One, params, callback)
}

func (self *Cache) CreateVia(event string, params Params, callback ResponseCallback) {
	self.writeVia(event, params, callback, func(record Record) {
		self.stateLock.Lock()
		self.objects[record.ObjectId()] = record
		self.stateLock.Unlock()
	})
}

// Update updates a record on the service and merges the result locally.
// As with Create, no local event is published.
func (self *Cache) Update(params Params, callback ResponseCallback) {
	self.UpdateVia(self.settings.UpdateEvents.One, params, callback)
}

func (self *Cache) UpdateVia(event string, params Params, callback ResponseCallback) {
	self.writeVia(event, params, callback, func(record Record) {
		self.stateLock.Lock()
		self.mergeLocked(record)
		self.stateLock.Unlock()
	})
}

// Remove deletes a record on the service and locally. As with Create,
// no local event is published.
func (self *Cache) Remove(params Params, callback ResponseCallback) {
	event := self.settings.RemoveEvents.One
	self.writeVia(event, params, callback, func(record Record) {
		self.stateLock.Lock()
		delete(self.objects, record.ObjectId())
		self.stateLock.Unlock()
	})
}

func (self *Cache) writeVia(event string, params Params, callback ResponseCallback, apply func(record Record)) {
	if callback == nil {
		callback = func(data Params, err error) {}
	}
	if event == "" {
		callback(nil, ErrUnsupportedOperation)
		return
	}
	if !self.transport.IsOnline() {
		callback(nil, ErrOffline)
		return
	}

	self.transport.Emit(event, params, func(data Params, err error) {
		if err != nil {
			callback(nil, err)
			return
		}

		if record := recordFromData(data, self.settings.ObjectType); record != nil {
			apply(record)
		}

		callback(data, nil)
	})
}

// GetById is a synchronous lookup. It never errors; a missing id
// reports false.
func (self *Cache) GetById(objectId string) (Record, bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	record, ok := self.objects[objectId]
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}

// Query selects and orders records for GetMany.
type Query struct {
	Filter  *FilterSpec
	Sorting *SortSpec
}

// GetMany applies the filter then the optional sort and returns a fresh
// ordered slice. The mapping is never mutated.
func (self *Cache) GetMany(query Query) []Record {
	self.stateLock.Lock()
	records := make([]Record, 0, len(self.objects))
	for _, record := range self.objects {
		if query.Filter == nil || query.Filter.Match(record) {
			records = append(records, record.Clone())
		}
	}
	self.stateLock.Unlock()

	if query.Sorting != nil {
		query.Sorting.Sort(records)
	}
	return records
}

// handlePush merges a server-initiated change identically to FetchOne,
// then republishes it as the cache's own change event so downstream
// consumers cannot distinguish push-driven from pull-driven updates.
func (self *Cache) handlePush(data Params) {
	changeTypeStr, _ := data["changeType"].(string)
	changeType := ChangeType(changeTypeStr)

	record := recordFromData(data, self.settings.ObjectType)
	if record == nil {
		glog.Infof("[cache]push without %s payload\n", self.settings.ObjectType)
		return
	}

	var toPublish Record

	self.stateLock.Lock()
	switch changeType {
	case ChangeTypeCreate:
		self.objects[record.ObjectId()] = record
		toPublish = record.Clone()
	case ChangeTypeUpdate:
		toPublish = self.mergeLocked(record).Clone()
	case ChangeTypeRemove:
		// removing an absent id is a no-op; remove stays authoritative
		// even when a stale update arrives later
		delete(self.objects, record.ObjectId())
		toPublish = record.Clone()
	default:
		self.stateLock.Unlock()
		glog.Infof("[cache]incorrect change type for %s: %s\n", self.settings.ObjectType, changeTypeStr)
		return
	}
	self.stateLock.Unlock()

	self.events.Publish(EventType(self.settings.EventTypes.One), ChangePayload{
		ChangeType: changeType,
		ObjectType: self.settings.ObjectType,
		Record:     toPublish,
	})
}

// mergeLocked merges the record into the mapping, creating it if absent,
// and returns the stored record. Must be called with stateLock held.
func (self *Cache) mergeLocked(record Record) Record {
	objectId := record.ObjectId()
	if existing, ok := self.objects[objectId]; ok {
		existing.merge(record)
		return existing
	}
	self.objects[objectId] = record
	return record
}

func recordFromData(data Params, objectType string) Record {
	if data == nil {
		return nil
	}
	fields, ok := data[objectType].(map[string]any)
	if !ok {
		return nil
	}
	return Record(fields)
}

func recordsFromData(data Params, objectTypes string) []Record {
	if data == nil {
		return nil
	}
	rawRecords, ok := data[objectTypes].([]any)
	if !ok {
		return nil
	}
	records := make([]Record, 0, len(rawRecords))
	for _, raw := range rawRecords {
		if fields, ok := raw.(map[string]any); ok {
			records = append(records, Record(fields))
		}
	}
	return records
}
