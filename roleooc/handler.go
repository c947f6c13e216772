package roleooc

// DataHandler owns the per-entity caches, all sharing one event bus and
// transport. Entity types without a verb registered reject that verb
// with ErrUnsupportedOperation.
type DataHandler struct {
	Users        *Cache
	Aliases      *Cache
	Rooms        *Cache
	Messages     *Cache
	Teams        *Cache
	Wallets      *Cache
	Transactions *Cache
	Positions    *Cache
	Invitations  *Cache
	DocFiles     *Cache
}

func NewDataHandler(transport Transport, events *EventCentral) *DataHandler {
	return &DataHandler{
		Users: NewCache(&CacheSettings{
			ObjectType:     "user",
			ObjectTypes:    "users",
			RetrieveEvents: EventPair{One: "getUser", Many: "getUsers"},
			CreateEvents:   EventPair{One: "createUser"},
			UpdateEvents:   EventPair{One: "updateUser"},
			EmitTypes:      []string{"user"},
			EventTypes:     EventPair{One: "user", Many: "users"},
		}, transport, events),
		Aliases: NewCache(&CacheSettings{
			ObjectType:     "alias",
			ObjectTypes:    "aliases",
			RetrieveEvents: EventPair{One: "getAlias", Many: "getAliases"},
			CreateEvents:   EventPair{One: "createAlias"},
			UpdateEvents:   EventPair{One: "updateAlias"},
			EmitTypes:      []string{"alias"},
			EventTypes:     EventPair{One: "alias", Many: "aliases"},
		}, transport, events),
		Rooms: NewCache(&CacheSettings{
			ObjectType:     "room",
			ObjectTypes:    "rooms",
			RetrieveEvents: EventPair{One: "getRoom", Many: "getRooms"},
			CreateEvents:   EventPair{One: "createRoom"},
			UpdateEvents:   EventPair{One: "updateRoom"},
			RemoveEvents:   EventPair{One: "removeRoom"},
			EmitTypes:      []string{"room"},
			EventTypes:     EventPair{One: "room", Many: "rooms"},
		}, transport, events),
		Messages: NewCache(&CacheSettings{
			ObjectType:     "message",
			ObjectTypes:    "messages",
			RetrieveEvents: EventPair{One: "getMessage", Many: "getMessages"},
			CreateEvents:   EventPair{One: "sendMessage"},
			UpdateEvents:   EventPair{One: "updateMessage"},
			RemoveEvents:   EventPair{One: "removeMessage"},
			EmitTypes:      []string{"chatMsg", "whisper"},
			EventTypes:     EventPair{One: "message", Many: "messages"},
		}, transport, events),
		Teams: NewCache(&CacheSettings{
			ObjectType:     "team",
			ObjectTypes:    "teams",
			RetrieveEvents: EventPair{One: "getTeam", Many: "getTeams"},
			CreateEvents:   EventPair{One: "createTeam"},
			UpdateEvents:   EventPair{One: "updateTeam"},
			EmitTypes:      []string{"team"},
			EventTypes:     EventPair{One: "team", Many: "teams"},
		}, transport, events),
		Wallets: NewCache(&CacheSettings{
			ObjectType:     "wallet",
			ObjectTypes:    "wallets",
			RetrieveEvents: EventPair{Many: "getWallets"},
			UpdateEvents:   EventPair{One: "updateWallet"},
			EmitTypes:      []string{"wallet"},
			EventTypes:     EventPair{One: "wallet", Many: "wallets"},
		}, transport, events),
		Transactions: NewCache(&CacheSettings{
			ObjectType:     "transaction",
			ObjectTypes:    "transactions",
			RetrieveEvents: EventPair{Many: "getTransactions"},
			CreateEvents:   EventPair{One: "createTransaction"},
			EmitTypes:      []string{"transaction"},
			EventTypes:     EventPair{One: "transaction", Many: "transactions"},
		}, transport, events),
		Positions: NewCache(&CacheSettings{
			ObjectType:     "position",
			ObjectTypes:    "positions",
			RetrieveEvents: EventPair{Many: "getPositions"},
			CreateEvents:   EventPair{One: "createPosition"},
			UpdateEvents:   EventPair{One: "updatePosition"},
			RemoveEvents:   EventPair{One: "removePosition"},
			EmitTypes:      []string{"position"},
			EventTypes:     EventPair{One: "position", Many: "positions"},
		}, transport, events),
		Invitations: NewCache(&CacheSettings{
			ObjectType:     "invitation",
			ObjectTypes:    "invitations",
			RetrieveEvents: EventPair{Many: "getInvitations"},
			CreateEvents:   EventPair{One: "createInvitation"},
			RemoveEvents:   EventPair{One: "removeInvitation"},
			EmitTypes:      []string{"invitation"},
			EventTypes:     EventPair{One: "invitation", Many: "invitations"},
		}, transport, events),
		DocFiles: NewCache(&CacheSettings{
			ObjectType:     "docFile",
			ObjectTypes:    "docFiles",
			RetrieveEvents: EventPair{One: "getDocFile", Many: "getDocFiles"},
			CreateEvents:   EventPair{One: "createDocFile"},
			UpdateEvents:   EventPair{One: "updateDocFile"},
			RemoveEvents:   EventPair{One: "removeDocFile"},
			EmitTypes:      []string{"docFile"},
			EventTypes:     EventPair{One: "docFile", Many: "docFiles"},
		}, transport, events),
	}
}

func (self *DataHandler) All() []*Cache {
	return []*Cache{
		self.Users,
		self.Aliases,
		self.Rooms,
		self.Messages,
		self.Teams,
		self.Wallets,
		self.Transactions,
		self.Positions,
		self.Invitations,
		self.DocFiles,
	}
}

func (self *DataHandler) Close() {
	for _, cache := range self.All() {
		cache.Close()
	}
}
