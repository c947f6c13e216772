package roleooc

import (
	"context"

	"github.com/golang/glog"
)

type ClientSettings struct {
	// websocket url of the service
	Url string

	// path of the local key-value store file
	StoragePath string

	TransportSettings *SocketTransportSettings
}

// Client is the injection root of the data layer: storage, event bus,
// transport, per-entity caches, session and composers, constructed once
// and passed by reference. There are no package-level singletons.
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	Storage   *StorageManager
	Events    *EventCentral
	Transport *SocketTransport
	Session   *Session
	Data      *DataHandler

	Users        *UserComposer
	Messages     *MessageComposer
	Rooms        *RoomComposer
	Transactions *TransactionComposer
}

func NewClientWithDefaults(ctx context.Context, url string, storagePath string) (*Client, error) {
	return NewClient(ctx, &ClientSettings{
		Url:               url,
		StoragePath:       storagePath,
		TransportSettings: DefaultSocketTransportSettings(),
	})
}

func NewClient(ctx context.Context, settings *ClientSettings) (*Client, error) {
	storage, err := NewStorageManager(settings.StoragePath)
	if err != nil {
		return nil, err
	}

	if _, ok := storage.DeviceId(); !ok {
		storage.SetDeviceId(NewId().String())
	}

	cancelCtx, cancel := context.WithCancel(ctx)

	events := NewEventCentral()
	transport := NewSocketTransport(cancelCtx, settings.Url, storage, events, settings.TransportSettings)
	session := NewSession(storage, events)
	data := NewDataHandler(transport, events)

	return &Client{
		ctx:          cancelCtx,
		cancel:       cancel,
		Storage:      storage,
		Events:       events,
		Transport:    transport,
		Session:      session,
		Data:         data,
		Users:        NewUserComposer(cancelCtx, events, session, data),
		Messages:     NewMessageComposer(cancelCtx, events, session, data),
		Rooms:        NewRoomComposer(cancelCtx, events, session, storage, data),
		Transactions: NewTransactionComposer(cancelCtx, events, session, data),
	}, nil
}

// Login authenticates against the service and, on success, persists the
// session and triggers the initial fetch on every cache.
func (self *Client) Login(username string, password string, callback ResponseCallback) {
	if callback == nil {
		callback = func(data Params, err error) {}
	}
	self.Transport.Emit("login", Params{
		"user": Params{
			"username": username,
			"password": password,
		},
	}, func(data Params, err error) {
		if err != nil {
			callback(nil, err)
			return
		}

		token, _ := data["token"].(string)
		if token == "" {
			glog.Infof("[client]login response without token\n")
			callback(nil, &RemoteError{Type: RemoteErrorTypeDoesNotExist})
			return
		}

		if err := self.Session.Login(token); err != nil {
			callback(nil, err)
			return
		}

		callback(data, nil)
	})
}

func (self *Client) Logout() {
	self.Session.Logout()
}

func (self *Client) Close() {
	self.cancel()
	self.Users.Close()
	self.Messages.Close()
	self.Rooms.Close()
	self.Transactions.Close()
	self.Data.Close()
	self.Transport.Close()
	self.Storage.Close()
}
