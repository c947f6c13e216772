package roleooc

import (
	"context"
	"sync"
)

// Composer is a read/write facade over one or more caches. It becomes
// ready once every dependency has completed its initial fetch and then
// publishes its completion event exactly once. Readiness is a closed
// channel, not a poll loop.
type Composer struct {
	handler      *Cache
	events       *EventCentral
	dependencies []*Cache

	completionEvent EventType

	readyLock sync.Mutex
	ready     bool
	readyChan chan struct{}

	cancel context.CancelFunc
}

type ComposerSettings struct {
	Handler         *Cache
	CompletionEvent EventType
	Dependencies    []*Cache
}

func NewComposer(ctx context.Context, events *EventCentral, settings *ComposerSettings) *Composer {
	cancelCtx, cancel := context.WithCancel(ctx)
	composer := &Composer{
		handler:         settings.Handler,
		events:          events,
		dependencies:    settings.Dependencies,
		completionEvent: settings.CompletionEvent,
		readyChan:       make(chan struct{}),
		cancel:          cancel,
	}
	go composer.awaitDependencies(cancelCtx)
	return composer
}

func (self *Composer) awaitDependencies(ctx context.Context) {
	for _, dependency := range self.dependencies {
		select {
		case <-ctx.Done():
			return
		case <-dependency.WhenFetched():
		}
	}

	self.readyLock.Lock()
	self.ready = true
	self.readyLock.Unlock()
	close(self.readyChan)

	if self.completionEvent != "" {
		self.events.Publish(self.completionEvent, nil)
	}
}

func (self *Composer) IsComplete() bool {
	self.readyLock.Lock()
	defer self.readyLock.Unlock()
	return self.ready
}

// Ready is closed once every dependency has fetched.
func (self *Composer) Ready() <-chan struct{} {
	return self.readyChan
}

func (self *Composer) Handler() *Cache {
	return self.handler
}

func (self *Composer) Close() {
	self.cancel()
}

// CreatorName resolves the display name of a record's creator from the
// user cache: the owner alias when one is set, otherwise the owner, and
// the raw id itself when the user is unknown.
func CreatorName(object Record, users *Cache, full bool) string {
	creatorId, _ := object["ownerAliasId"].(string)
	if creatorId == "" {
		creatorId, _ = object["ownerId"].(string)
	}

	user, ok := users.GetById(creatorId)
	if !ok {
		return creatorId
	}

	if full {
		if fullName, ok := user["fullName"].(string); ok && fullName != "" {
			return fullName
		}
	}
	username, _ := user["username"].(string)
	if username == "" {
		return creatorId
	}
	return username
}
