package roleooc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

const transportBufferSize = 8

// ResponseCallback receives the data object of a response, or an error.
// Exactly one of the two is set. Errors are never thrown across the
// asynchronous boundary.
type ResponseCallback func(data Params, err error)

// PushHandler receives the data object of a server-initiated push message.
type PushHandler func(data Params)

// Transport is the request/response and push channel to the remote service.
type Transport interface {
	IsOnline() bool
	// Emit issues one request. Offline fails immediately with ErrOffline.
	Emit(event string, params Params, callback ResponseCallback)
	// AddListener registers a push handler for a message type and returns
	// a disposer.
	AddListener(event string, handler PushHandler) func()
}

// wire envelope; requests and responses carry an id, pushes do not
type envelope struct {
	Id     *Id          `json:"id,omitempty"`
	Event  string       `json:"event,omitempty"`
	Params Params       `json:"params,omitempty"`
	Data   Params       `json:"data,omitempty"`
	Error  *RemoteError `json:"error,omitempty"`
}

type SocketTransportSettings struct {
	WsHandshakeTimeout time.Duration
	ReconnectTimeout   time.Duration
	PingTimeout        time.Duration
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration
	RequestTimeout     time.Duration
}

func DefaultSocketTransportSettings() *SocketTransportSettings {
	return &SocketTransportSettings{
		WsHandshakeTimeout: 2 * time.Second,
		ReconnectTimeout:   5 * time.Second,
		PingTimeout:        1 * time.Second,
		WriteTimeout:       5 * time.Second,
		ReadTimeout:        15 * time.Second,
		RequestTimeout:     30 * time.Second,
	}
}

// SocketTransport maintains one websocket to the service, correlates
// request/response pairs by id, dispatches pushes, and publishes
// startup/reconnect/disconnect lifecycle events on the event bus.
type SocketTransport struct {
	ctx    context.Context
	cancel context.CancelFunc

	url     string
	storage *StorageManager
	events  *EventCentral

	settings *SocketTransportSettings

	stateLock sync.Mutex
	online    bool
	started   bool
	send      chan []byte
	pending   map[Id]ResponseCallback
	listeners map[string][]*pushListener
	nextId    int
}

type pushListener struct {
	listenerId int
	handler    PushHandler
}

func NewSocketTransportWithDefaults(
	ctx context.Context,
	url string,
	storage *StorageManager,
	events *EventCentral,
) *SocketTransport {
	return NewSocketTransport(ctx, url, storage, events, DefaultSocketTransportSettings())
}

func NewSocketTransport(
	ctx context.Context,
	url string,
	storage *StorageManager,
	events *EventCentral,
	settings *SocketTransportSettings,
) *SocketTransport {
	cancelCtx, cancel := context.WithCancel(ctx)
	transport := &SocketTransport{
		ctx:       cancelCtx,
		cancel:    cancel,
		url:       url,
		storage:   storage,
		events:    events,
		settings:  settings,
		send:      make(chan []byte, transportBufferSize),
		pending:   map[Id]ResponseCallback{},
		listeners: map[string][]*pushListener{},
	}
	go transport.run()
	return transport
}

func (self *SocketTransport) IsOnline() bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.online
}

func (self *SocketTransport) Emit(event string, params Params, callback ResponseCallback) {
	if callback == nil {
		callback = func(data Params, err error) {}
	}
	if !self.IsOnline() {
		callback(nil, ErrOffline)
		return
	}

	requestId := NewId()

	paramsToSend := Params{}
	for param, value := range params {
		paramsToSend[param] = value
	}
	if token, ok := self.storage.Token(); ok {
		paramsToSend["token"] = token
	}

	message, err := json.Marshal(&envelope{
		Id:     &requestId,
		Event:  event,
		Params: paramsToSend,
	})
	if err != nil {
		callback(nil, err)
		return
	}

	timer := time.AfterFunc(self.settings.RequestTimeout, func() {
		if pendingCallback := self.popPending(requestId); pendingCallback != nil {
			glog.Infof("[t]request timeout %s\n", event)
			pendingCallback(nil, ErrOffline)
		}
	})

	self.stateLock.Lock()
	self.pending[requestId] = func(data Params, err error) {
		timer.Stop()
		callback(data, err)
	}
	self.stateLock.Unlock()

	select {
	case self.send <- message:
	case <-self.ctx.Done():
		if pendingCallback := self.popPending(requestId); pendingCallback != nil {
			pendingCallback(nil, ErrOffline)
		}
	}
}

func (self *SocketTransport) AddListener(event string, handler PushHandler) func() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.nextId += 1
	listenerId := self.nextId
	self.listeners[event] = append(self.listeners[event], &pushListener{
		listenerId: listenerId,
		handler:    handler,
	})

	return func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		listeners := self.listeners[event]
		for i, listener := range listeners {
			if listener.listenerId == listenerId {
				next := make([]*pushListener, 0, len(listeners)-1)
				next = append(next, listeners[:i]...)
				next = append(next, listeners[i+1:]...)
				self.listeners[event] = next
				return
			}
		}
	}
}

func (self *SocketTransport) Close() {
	self.cancel()
}

func (self *SocketTransport) popPending(requestId Id) ResponseCallback {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	callback, ok := self.pending[requestId]
	if !ok {
		return nil
	}
	delete(self.pending, requestId)
	return callback
}

func (self *SocketTransport) setOnline(online bool) {
	self.stateLock.Lock()
	self.online = online
	self.stateLock.Unlock()
}

// fail every in-flight request once the connection is lost
func (self *SocketTransport) failPending() {
	self.stateLock.Lock()
	pending := self.pending
	self.pending = map[Id]ResponseCallback{}
	self.stateLock.Unlock()

	for _, callback := range pending {
		callback(nil, ErrOffline)
	}
}

func (self *SocketTransport) run() {
	defer self.cancel()

	for {
		dialer := &websocket.Dialer{
			HandshakeTimeout: self.settings.WsHandshakeTimeout,
		}
		ws, _, err := dialer.DialContext(self.ctx, self.url, nil)
		if err != nil {
			glog.Infof("[t]dial error = %s\n", err)
			select {
			case <-self.ctx.Done():
				return
			case <-time.After(self.settings.ReconnectTimeout):
				continue
			}
		}

		self.setOnline(true)

		self.stateLock.Lock()
		first := !self.started
		self.started = true
		self.stateLock.Unlock()

		if first {
			self.events.Publish(EventStartup, StartupPayload{})
		} else {
			self.events.Publish(EventReconnect, nil)
		}

		c := func() {
			defer ws.Close()

			handleCtx, handleCancel := context.WithCancel(self.ctx)
			defer handleCancel()

			go func() {
				defer handleCancel()

				for {
					select {
					case <-handleCtx.Done():
						return
					case message, ok := <-self.send:
						if !ok {
							return
						}

						ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
						if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
							// a deadline timeout cannot be recovered
							glog.Infof("[ts]-> error = %s\n", err)
							return
						}
						glog.V(2).Infof("[ts]->\n")
					case <-time.After(self.settings.PingTimeout):
						ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
						if err := ws.WriteMessage(websocket.TextMessage, []byte("{}")); err != nil {
							return
						}
					}
				}
			}()

			go func() {
				defer handleCancel()

				for {
					select {
					case <-handleCtx.Done():
						return
					default:
					}

					ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
					messageType, message, err := ws.ReadMessage()
					if err != nil {
						glog.Infof("[tr]<- error = %s\n", err)
						return
					}

					switch messageType {
					case websocket.TextMessage:
						self.receive(message)
					default:
						glog.V(2).Infof("[tr]other=%d<-\n", messageType)
					}
				}
			}()

			select {
			case <-handleCtx.Done():
			}
		}
		c()

		self.setOnline(false)
		self.failPending()
		self.events.Publish(EventDisconnect, nil)

		select {
		case <-self.ctx.Done():
			return
		case <-time.After(self.settings.ReconnectTimeout):
		}
	}
}

func (self *SocketTransport) receive(message []byte) {
	var received envelope
	if err := json.Unmarshal(message, &received); err != nil {
		glog.Infof("[tr]bad message = %s\n", err)
		return
	}

	if received.Id != nil {
		// response
		callback := self.popPending(*received.Id)
		if callback == nil {
			glog.V(2).Infof("[tr]orphan response %s\n", received.Id)
			return
		}
		if received.Error != nil {
			callback(nil, received.Error)
		} else {
			callback(received.Data, nil)
		}
		return
	}

	if received.Event == "" {
		// ping
		glog.V(2).Infof("[tr]ping<-\n")
		return
	}

	// push
	self.stateLock.Lock()
	listeners := make([]*pushListener, len(self.listeners[received.Event]))
	copy(listeners, self.listeners[received.Event])
	self.stateLock.Unlock()

	glog.V(2).Infof("[tr]push %s<-\n", received.Event)

	for _, listener := range listeners {
		listener.handler(received.Data)
	}
}
