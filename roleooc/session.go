package roleooc

import (
	gojwt "github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the claims of interest in the session token.
// The client has no key material, so claims are extracted unverified;
// the service verifies the token on every request.
type TokenClaims struct {
	UserId      string
	Username    string
	AccessLevel int
}

func ParseTokenUnverified(token string) (*TokenClaims, error) {
	parser := gojwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, gojwt.MapClaims{})
	if err != nil {
		return nil, err
	}

	mapClaims := parsed.Claims.(gojwt.MapClaims)
	claims := &TokenClaims{}

	if userId, ok := mapClaims["userId"].(string); ok {
		claims.UserId = userId
	}
	if username, ok := mapClaims["username"].(string); ok {
		claims.Username = username
	}
	if accessLevel, ok := mapClaims["accessLevel"].(float64); ok {
		claims.AccessLevel = int(accessLevel)
	}

	return claims, nil
}

// Session holds the ambient identity of the current user, persisted
// through the storage manager so it survives restarts.
type Session struct {
	storage *StorageManager
	events  *EventCentral
}

func NewSession(storage *StorageManager, events *EventCentral) *Session {
	return &Session{
		storage: storage,
		events:  events,
	}
}

func (self *Session) UserId() (string, bool) {
	return self.storage.UserId()
}

func (self *Session) AliasId() (string, bool) {
	return self.storage.AliasId()
}

func (self *Session) TeamId() (string, bool) {
	return self.storage.TeamId()
}

func (self *Session) AccessLevel() int {
	return self.storage.AccessLevel()
}

// IdentityId is the id requests are attributed to: the selected alias
// when one is set, the user id otherwise.
func (self *Session) IdentityId() (string, bool) {
	if aliasId, ok := self.storage.AliasId(); ok {
		return aliasId, true
	}
	return self.storage.UserId()
}

func (self *Session) SetAliasId(aliasId string) error {
	return self.storage.SetAliasId(aliasId)
}

func (self *Session) SetTeamId(teamId string) error {
	return self.storage.SetTeamId(teamId)
}

// Login persists the token and derived identity, then publishes the
// login event, which makes every cache refetch.
func (self *Session) Login(token string) error {
	claims, err := ParseTokenUnverified(token)
	if err != nil {
		return err
	}

	// a failed write must not leave a half-persisted session behind a
	// published login event
	if err := self.storage.SetToken(token); err != nil {
		return err
	}
	if err := self.storage.SetUserId(claims.UserId); err != nil {
		return err
	}
	if err := self.storage.SetAccessLevel(claims.AccessLevel); err != nil {
		return err
	}

	self.events.Publish(EventAccess, AccessPayload{AccessLevel: claims.AccessLevel})
	self.events.Publish(EventLogin, nil)

	return nil
}

// Logout clears the persisted identity and publishes the logout event,
// which makes every cache reset and refetch.
func (self *Session) Logout() {
	self.storage.RemoveUser()

	self.events.Publish(EventAccess, AccessPayload{AccessLevel: AccessLevelAnonymous})
	self.events.Publish(EventLogout, LogoutPayload{Reset: true})
}
