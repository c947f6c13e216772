package roleooc

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

const defaultRemoveDelay = 800 * time.Millisecond

type ListState int

const (
	ListStateUninitialized ListState = iota
	ListStateWaitingForDependencies
	ListStateRendered
)

// ListItemField declares one value printed for a list item: the field to
// read, a fallback field when absent, and an optional conversion, e.g.
// an id to a display name.
type ListItemField struct {
	ParamName  string
	FallbackTo string
	Convert    func(value any) string
}

// ListItem is one row of the projection, keyed by object id.
type ListItem struct {
	ObjectId string
	Fields   []string
	Marked   bool
	Focused  bool

	PendingRemoval bool

	// snapshot used for sort placement and filter re-evaluation
	record      Record
	removeTimer *time.Timer
}

type ListSettings struct {
	// tag under which marked ids are persisted
	ListType string

	Filter     *FilterSpec
	UserFilter *UserFilterSpec
	Sorting    *SortSpec
	Fields     []ListItemField

	// caches that must have fetched before the first render
	Dependencies []*Cache

	FocusedId string

	// how long a removed row stays, marked, before it disappears
	RemoveDelay time.Duration

	OnCreate func(record Record)
}

// ViewerFunc resolves the current viewer for access checks.
type ViewerFunc func() Record

// ListController maintains a filtered, sorted projection of one cache and
// patches it incrementally on change events instead of re-rendering
// wholesale. It holds no authoritative state: the projection is
// rebuildable from the cache at any time.
type ListController struct {
	settings  *ListSettings
	collector *Cache
	events    *EventCentral
	storage   *StorageManager
	viewer    ViewerFunc
	hasAccess AccessCheckFunc

	ctx    context.Context
	cancel context.CancelFunc

	stateLock sync.Mutex
	state     ListState
	items     []*ListItem
	focusedId string

	// called after every projection change; nil outside of UIs
	onRender func()

	disposers []func()
}

func NewListController(
	ctx context.Context,
	collector *Cache,
	events *EventCentral,
	storage *StorageManager,
	viewer ViewerFunc,
	hasAccess AccessCheckFunc,
	settings *ListSettings,
) *ListController {
	if settings.RemoveDelay == 0 {
		settings.RemoveDelay = defaultRemoveDelay
	}
	if hasAccess == nil {
		hasAccess = HasAccess
	}
	if viewer == nil {
		viewer = func() Record { return nil }
	}

	cancelCtx, cancel := context.WithCancel(ctx)

	controller := &ListController{
		settings:  settings,
		collector: collector,
		events:    events,
		storage:   storage,
		viewer:    viewer,
		hasAccess: hasAccess,
		ctx:       cancelCtx,
		cancel:    cancel,
		state:     ListStateUninitialized,
		items:     []*ListItem{},
		focusedId: settings.FocusedId,
	}

	cacheSettings := collector.Settings()
	disposers := []func(){}

	if cacheSettings.EventTypes.One != "" {
		disposers = append(disposers, events.Subscribe(
			EventType(cacheSettings.EventTypes.One),
			controller.onChangeEvent,
		))
	}
	if cacheSettings.EventTypes.Many != "" {
		disposers = append(disposers, events.Subscribe(
			EventType(cacheSettings.EventTypes.Many),
			func(payload any) {
				controller.replaceAllItems()
			},
		))
	}
	disposers = append(disposers, events.Subscribe(EventReconnect, func(payload any) {
		controller.replaceAllItems()
	}))

	controller.disposers = disposers

	return controller
}

func (self *ListController) State() ListState {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.state
}

// SetOnRender installs a hook invoked after every projection change.
func (self *ListController) SetOnRender(onRender func()) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.onRender = onRender
}

// Render transitions to waiting and builds the projection once every
// dependency cache has fetched. There is no polling; the wait resolves
// when the last dependency closes its fetched channel.
func (self *ListController) Render() {
	self.stateLock.Lock()
	if self.state != ListStateUninitialized {
		self.stateLock.Unlock()
		return
	}
	self.state = ListStateWaitingForDependencies
	self.stateLock.Unlock()

	go func() {
		for _, dependency := range self.settings.Dependencies {
			select {
			case <-self.ctx.Done():
				return
			case <-dependency.WhenFetched():
			}
		}
		self.replaceAllItems()
	}()
}

// Close releases the controller's subscriptions and cancels pending
// removal timers. A closed controller stops reacting to future events.
func (self *ListController) Close() {
	self.cancel()
	for _, dispose := range self.disposers {
		dispose()
	}

	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	for _, item := range self.items {
		if item.removeTimer != nil {
			item.removeTimer.Stop()
		}
	}
}

// Items returns the currently visible projection in order.
func (self *ListController) Items() []*ListItem {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	items := make([]*ListItem, 0, len(self.items))
	for _, item := range self.items {
		itemCopy := *item
		itemCopy.removeTimer = nil
		items = append(items, &itemCopy)
	}
	return items
}

// replaceAllItems rebuilds the projection wholesale from the cache.
// Marked state survives because marks are read back from storage.
func (self *ListController) replaceAllItems() {
	select {
	case <-self.ctx.Done():
		return
	default:
	}

	// a collection event on the collector can arrive while other
	// dependencies are still unfetched; the rebuild stays deferred until
	// the last one reports in, and the render goroutine picks it up
	for _, dependency := range self.settings.Dependencies {
		if !dependency.HasFetched() {
			return
		}
	}

	records := self.collector.GetMany(Query{
		Filter:  self.settings.Filter,
		Sorting: self.settings.Sorting,
	})

	user := self.viewer()
	marked := self.storage.Marked(self.settings.ListType)

	items := []*ListItem{}
	for _, record := range records {
		if self.settings.UserFilter != nil && !self.settings.UserFilter.Match(userOrEmpty(user), record) {
			continue
		}
		if !self.hasAccess(AccessParams{ObjectToAccess: record, Viewer: user}).CanSee {
			continue
		}
		items = append(items, self.buildItem(record, marked))
	}

	self.stateLock.Lock()
	for _, item := range self.items {
		if item.removeTimer != nil {
			item.removeTimer.Stop()
		}
	}
	self.items = items
	self.state = ListStateRendered
	onRender := self.onRender
	self.stateLock.Unlock()

	if onRender != nil {
		onRender()
	}
}

func (self *ListController) buildItem(record Record, marked []string) *ListItem {
	objectId := record.ObjectId()

	fields := []string{}
	for _, field := range self.settings.Fields {
		value, ok := record[field.ParamName]
		if !ok && field.FallbackTo != "" {
			value, ok = record[field.FallbackTo]
		}
		if !ok || value == nil {
			continue
		}
		if field.Convert != nil {
			fields = append(fields, field.Convert(value))
		} else {
			fields = append(fields, stringValue(value))
		}
	}

	return &ListItem{
		ObjectId: objectId,
		Fields:   fields,
		Marked:   slices.Contains(marked, objectId),
		Focused:  objectId == self.focusedId,
		record:   record,
	}
}

func (self *ListController) onChangeEvent(payload any) {
	change, ok := payload.(ChangePayload)
	if !ok {
		return
	}

	record := change.Record
	user := self.viewer()

	if change.ChangeType != ChangeTypeRemove {
		if !self.matchesFilters(user, record) {
			// a previously visible record that no longer matches is
			// treated as removed
			if self.hasItem(record.ObjectId()) {
				self.removeOneItem(record.ObjectId())
			}
			return
		}
	}

	switch change.ChangeType {
	case ChangeTypeUpdate:
		if self.hasAccess(AccessParams{ObjectToAccess: record, Viewer: user}).CanSee {
			self.addOneItem(record, true)
		} else {
			self.removeOneItem(record.ObjectId())
		}
	case ChangeTypeCreate:
		if self.hasAccess(AccessParams{ObjectToAccess: record, Viewer: user}).CanSee {
			if self.settings.OnCreate != nil {
				self.settings.OnCreate(record)
			}
			self.addOneItem(record, false)
		}
	case ChangeTypeRemove:
		self.removeOneItem(record.ObjectId())
	}
}

func (self *ListController) matchesFilters(user Record, record Record) bool {
	if self.settings.Filter != nil && !self.settings.Filter.Match(record) {
		return false
	}
	if self.settings.UserFilter != nil && !self.settings.UserFilter.Match(userOrEmpty(user), record) {
		return false
	}
	return true
}

func (self *ListController) hasItem(objectId string) bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.indexOfLocked(objectId) >= 0
}

func (self *ListController) indexOfLocked(objectId string) int {
	for i, item := range self.items {
		if item.ObjectId == objectId {
			return i
		}
	}
	return -1
}

// addOneItem splices the record into the projection. A replace swaps the
// representation without changing position; otherwise the item is placed
// at the position dictated by the sort spec. A pending removal for the
// same id is cancelled.
func (self *ListController) addOneItem(record Record, shouldReplace bool) {
	marked := self.storage.Marked(self.settings.ListType)
	newItem := self.buildItem(record, marked)

	self.stateLock.Lock()

	i := self.indexOfLocked(record.ObjectId())
	if i >= 0 {
		existing := self.items[i]
		if existing.removeTimer != nil {
			// a new event for the id arrives before the delay elapses:
			// the scheduled removal is cancelled
			existing.removeTimer.Stop()
		}
		if shouldReplace {
			newItem.Marked = existing.Marked
			self.items[i] = newItem
			onRender := self.onRender
			self.stateLock.Unlock()
			if onRender != nil {
				onRender()
			}
			return
		}
		self.items = slices.Delete(self.items, i, i+1)
	}

	self.items = slices.Insert(self.items, self.insertIndexLocked(newItem), newItem)
	onRender := self.onRender
	self.stateLock.Unlock()

	if onRender != nil {
		onRender()
	}
}

// insertIndexLocked finds the first existing item whose sort key is
// greater than the new item's; append when none. With a reverse sort and
// no sort key defined, new items land at the front.
func (self *ListController) insertIndexLocked(newItem *ListItem) int {
	sorting := self.settings.Sorting
	if sorting == nil {
		return len(self.items)
	}

	if _, ok := sorting.key(newItem.record); !ok {
		if sorting.Reverse {
			return 0
		}
		return len(self.items)
	}

	for i, item := range self.items {
		if sorting.Compare(newItem.record, item.record) < 0 {
			return i
		}
	}
	return len(self.items)
}

// removeOneItem marks the item for removal and defers the actual removal
// to allow a visual transition. Removal is idempotent: a second remove
// for the same id during the delay window is a no-op.
func (self *ListController) removeOneItem(objectId string) {
	self.stateLock.Lock()

	i := self.indexOfLocked(objectId)
	if i < 0 {
		self.stateLock.Unlock()
		return
	}

	item := self.items[i]
	if item.PendingRemoval {
		self.stateLock.Unlock()
		return
	}

	item.PendingRemoval = true
	item.removeTimer = time.AfterFunc(self.settings.RemoveDelay, func() {
		self.finishRemoval(objectId)
	})
	onRender := self.onRender
	self.stateLock.Unlock()

	if onRender != nil {
		onRender()
	}
}

func (self *ListController) finishRemoval(objectId string) {
	self.stateLock.Lock()

	i := self.indexOfLocked(objectId)
	if i < 0 || !self.items[i].PendingRemoval {
		self.stateLock.Unlock()
		return
	}
	self.items = slices.Delete(self.items, i, i+1)
	onRender := self.onRender
	self.stateLock.Unlock()

	if onRender != nil {
		onRender()
	}
}

// MarkItem pins a row. The mark is persisted per list type so it
// survives a full re-render.
func (self *ListController) MarkItem(objectId string) {
	self.storage.AddMarked(self.settings.ListType, objectId)

	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	if i := self.indexOfLocked(objectId); i >= 0 {
		self.items[i].Marked = true
	}
}

func (self *ListController) UnmarkItem(objectId string) {
	self.storage.PullMarked(self.settings.ListType, objectId)

	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	if i := self.indexOfLocked(objectId); i >= 0 {
		self.items[i].Marked = false
	}
}

// SetFocus moves the focus to a row. Focusing a marked row unmarks it.
func (self *ListController) SetFocus(objectId string) {
	self.storage.PullMarked(self.settings.ListType, objectId)

	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if i := self.indexOfLocked(self.focusedId); i >= 0 {
		self.items[i].Focused = false
	}
	self.focusedId = objectId
	if i := self.indexOfLocked(objectId); i >= 0 {
		self.items[i].Focused = true
		self.items[i].Marked = false
	}
}

func userOrEmpty(user Record) Record {
	if user == nil {
		return Record{}
	}
	return user
}

func stringValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}
