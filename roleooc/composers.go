package roleooc

import (
	"context"
)

// completion events published once a composer's dependencies have fetched
const (
	EventCompleteUser        EventType = "completeUser"
	EventCompleteMessage     EventType = "completeMessage"
	EventCompleteRoom        EventType = "completeRoom"
	EventCompleteTransaction EventType = "completeTransaction"
)

// message types used by the chat
const (
	MessageTypeChat      = "chat"
	MessageTypeWhisper   = "whisper"
	MessageTypeBroadcast = "broadcast"
)

type UserComposer struct {
	*Composer
	session *Session
	aliases *Cache
}

func NewUserComposer(ctx context.Context, events *EventCentral, session *Session, handler *DataHandler) *UserComposer {
	return &UserComposer{
		Composer: NewComposer(ctx, events, &ComposerSettings{
			Handler:         handler.Users,
			CompletionEvent: EventCompleteUser,
			Dependencies:    []*Cache{handler.Users, handler.Aliases, handler.Teams},
		}),
		session: session,
		aliases: handler.Aliases,
	}
}

// CurrentUser resolves the logged-in user's record, or nil when logged
// out or not yet fetched.
func (self *UserComposer) CurrentUser() Record {
	userId, ok := self.session.UserId()
	if !ok {
		return nil
	}
	user, ok := self.handler.GetById(userId)
	if !ok {
		return nil
	}
	return user
}

// IdentityName resolves a user or alias id to a display name, falling
// back to the id itself when unknown.
func (self *UserComposer) IdentityName(identityId string) string {
	if user, ok := self.handler.GetById(identityId); ok {
		if username, ok := user["username"].(string); ok && username != "" {
			return username
		}
	}
	if alias, ok := self.aliases.GetById(identityId); ok {
		if aliasName, ok := alias["aliasName"].(string); ok && aliasName != "" {
			return aliasName
		}
	}
	return identityId
}

// CurrentIdentities returns the aliases owned by the current user.
func (self *UserComposer) CurrentIdentities() []Record {
	userId, ok := self.session.UserId()
	if !ok {
		return []Record{}
	}
	return self.aliases.GetMany(Query{
		Filter: &FilterSpec{
			Rules: []FilterRule{
				{ParamName: "ownerId", ParamValue: userId},
			},
		},
	})
}

func (self *UserComposer) CreateAlias(alias Params, callback ResponseCallback) {
	self.aliases.Create(Params{"alias": alias}, callback)
}

type MessageComposer struct {
	*Composer
	session *Session
}

func NewMessageComposer(ctx context.Context, events *EventCentral, session *Session, handler *DataHandler) *MessageComposer {
	return &MessageComposer{
		Composer: NewComposer(ctx, events, &ComposerSettings{
			Handler:         handler.Messages,
			CompletionEvent: EventCompleteMessage,
			Dependencies: []*Cache{
				handler.Messages,
				handler.Rooms,
				handler.Users,
				handler.Teams,
			},
		}),
		session: session,
	}
}

func (self *MessageComposer) Message(messageId string) (Record, bool) {
	return self.handler.GetById(messageId)
}

func (self *MessageComposer) MessagesByRoom(roomId string) []Record {
	return self.handler.GetMany(Query{
		Filter: &FilterSpec{
			Rules: []FilterRule{
				{ParamName: "roomId", ParamValue: roomId},
			},
		},
		Sorting: &SortSpec{ParamName: "customTimeCreated", FallbackParamName: "timeCreated"},
	})
}

func (self *MessageComposer) FetchMessagesByRoom(roomId string, callback ResponseCallback) {
	self.handler.FetchAllVia("getMessagesByRoom", Params{"roomId": roomId}, callback)
}

// SendMessage stamps the message with the ambient session context before
// delegating to the cache.
func (self *MessageComposer) SendMessage(message Params, participantIds []string, callback ResponseCallback) {
	messageToSend := Params{}
	for param, value := range message {
		messageToSend[param] = value
	}
	if aliasId, ok := self.session.AliasId(); ok {
		messageToSend["ownerAliasId"] = aliasId
	}
	if teamId, ok := self.session.TeamId(); ok {
		messageToSend["teamId"] = teamId
	}

	params := Params{"message": messageToSend}
	if len(participantIds) > 0 {
		params["participantIds"] = participantIds
	}

	self.handler.Create(params, callback)
}

func (self *MessageComposer) UpdateMessage(messageId string, message Params, callback ResponseCallback) {
	self.handler.Update(Params{
		"messageId": messageId,
		"message":   message,
	}, callback)
}

func (self *MessageComposer) RemoveMessage(messageId string, callback ResponseCallback) {
	self.handler.Remove(Params{"messageId": messageId}, callback)
}

type RoomComposer struct {
	*Composer
	session *Session
	storage *StorageManager
	events  *EventCentral
}

func NewRoomComposer(ctx context.Context, events *EventCentral, session *Session, storage *StorageManager, handler *DataHandler) *RoomComposer {
	return &RoomComposer{
		Composer: NewComposer(ctx, events, &ComposerSettings{
			Handler:         handler.Rooms,
			CompletionEvent: EventCompleteRoom,
			Dependencies:    []*Cache{handler.Rooms, handler.Users},
		}),
		session: session,
		storage: storage,
		events:  events,
	}
}

func (self *RoomComposer) Room(roomId string) (Record, bool) {
	return self.handler.GetById(roomId)
}

// FollowedRooms are the rooms the current user participates in or follows.
func (self *RoomComposer) FollowedRooms(user Record) []Record {
	if user == nil {
		return []Record{}
	}
	userId := user.ObjectId()
	return self.handler.GetMany(Query{
		Filter: &FilterSpec{
			OrCheck: true,
			Rules: []FilterRule{
				{ParamName: "participantIds", ParamValue: userId, ShouldInclude: true},
				{ParamName: "followers", ParamValue: userId, ShouldInclude: true},
			},
		},
		Sorting: &SortSpec{ParamName: "roomName"},
	})
}

// WhisperRooms are direct rooms between identities.
func (self *RoomComposer) WhisperRooms() []Record {
	return self.handler.GetMany(Query{
		Filter: &FilterSpec{
			Rules: []FilterRule{
				{ParamName: "isWhisper", ParamValue: true},
			},
		},
		Sorting: &SortSpec{ParamName: "roomName"},
	})
}

func (self *RoomComposer) CreateRoom(room Params, callback ResponseCallback) {
	roomToSend := Params{}
	for param, value := range room {
		roomToSend[param] = value
	}
	if aliasId, ok := self.session.AliasId(); ok {
		roomToSend["ownerAliasId"] = aliasId
	}

	self.handler.Create(Params{"room": roomToSend}, callback)
}

func (self *RoomComposer) RemoveRoom(roomId string, callback ResponseCallback) {
	self.handler.Remove(Params{"roomId": roomId}, callback)
}

func (self *RoomComposer) FollowRoom(roomId string, password string, callback ResponseCallback) {
	params := Params{"roomId": roomId}
	if password != "" {
		params["password"] = password
	}
	if aliasId, ok := self.session.AliasId(); ok {
		params["aliasId"] = aliasId
	}
	self.handler.UpdateVia("followRoom", params, callback)
}

func (self *RoomComposer) UnfollowRoom(roomId string, callback ResponseCallback) {
	params := Params{"roomId": roomId}
	if aliasId, ok := self.session.AliasId(); ok {
		params["aliasId"] = aliasId
	}
	self.handler.UpdateVia("unfollowRoom", params, callback)
}

// SwitchRoom persists the selected room and announces the switch.
func (self *RoomComposer) SwitchRoom(roomId string) {
	self.storage.SetRoom(roomId)
	self.events.Publish(EventSwitchRoom, SwitchRoomPayload{RoomId: roomId})
}

type TransactionComposer struct {
	*Composer
	session *Session
	wallets *Cache
}

func NewTransactionComposer(ctx context.Context, events *EventCentral, session *Session, handler *DataHandler) *TransactionComposer {
	return &TransactionComposer{
		Composer: NewComposer(ctx, events, &ComposerSettings{
			Handler:         handler.Transactions,
			CompletionEvent: EventCompleteTransaction,
			Dependencies:    []*Cache{handler.Transactions, handler.Wallets, handler.Users},
		}),
		session: session,
		wallets: handler.Wallets,
	}
}

func (self *TransactionComposer) Wallet(walletId string) (Record, bool) {
	return self.wallets.GetById(walletId)
}

// TransactionsByWallet returns transfers in or out of one wallet,
// newest first.
func (self *TransactionComposer) TransactionsByWallet(walletId string) []Record {
	return self.handler.GetMany(Query{
		Filter: &FilterSpec{
			OrCheck: true,
			Rules: []FilterRule{
				{ParamName: "fromWalletId", ParamValue: walletId},
				{ParamName: "toWalletId", ParamValue: walletId},
			},
		},
		Sorting: &SortSpec{ParamName: "timeCreated", Reverse: true},
	})
}

func (self *TransactionComposer) CreateTransaction(transaction Params, callback ResponseCallback) {
	transactionToSend := Params{}
	for param, value := range transaction {
		transactionToSend[param] = value
	}
	if aliasId, ok := self.session.AliasId(); ok {
		transactionToSend["ownerAliasId"] = aliasId
	}

	self.handler.Create(Params{"transaction": transactionToSend}, callback)
}
