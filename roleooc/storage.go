package roleooc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"golang.org/x/exp/slices"
)

var localBucket = []byte("local")

// well-known keys
const (
	storageKeyToken       = "token"
	storageKeyUserId      = "userId"
	storageKeyAliasId     = "aliasId"
	storageKeyTeamId      = "teamId"
	storageKeyDeviceId    = "deviceId"
	storageKeyAccessLevel = "accessLevel"
	storageKeyRoom        = "room"
)

// StorageManager wraps a bbolt file holding small scalars and JSON blobs:
// session identity, UI preferences, marked list items. Value serialization
// beyond strings is the caller's responsibility; typed helpers are provided
// for the values the rest of the module needs.
type StorageManager struct {
	db *bolt.DB
}

func NewStorageManager(path string) (*StorageManager, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(localBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &StorageManager{
		db: db,
	}, nil
}

func (self *StorageManager) Close() error {
	return self.db.Close()
}

func (self *StorageManager) Get(name string) (string, bool) {
	var value string
	var ok bool
	self.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(localBucket).Get([]byte(name))
		if raw != nil {
			value = string(raw)
			ok = true
		}
		return nil
	})
	return value, ok
}

func (self *StorageManager) Set(name string, value string) error {
	return self.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(localBucket).Put([]byte(name), []byte(value))
	})
}

func (self *StorageManager) Remove(name string) error {
	return self.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(localBucket).Delete([]byte(name))
	})
}

func (self *StorageManager) Token() (string, bool) {
	return self.Get(storageKeyToken)
}

func (self *StorageManager) SetToken(token string) error {
	return self.Set(storageKeyToken, token)
}

func (self *StorageManager) UserId() (string, bool) {
	return self.Get(storageKeyUserId)
}

func (self *StorageManager) SetUserId(userId string) error {
	return self.Set(storageKeyUserId, userId)
}

func (self *StorageManager) AliasId() (string, bool) {
	return self.Get(storageKeyAliasId)
}

func (self *StorageManager) SetAliasId(aliasId string) error {
	return self.Set(storageKeyAliasId, aliasId)
}

func (self *StorageManager) RemoveAliasId() error {
	return self.Remove(storageKeyAliasId)
}

func (self *StorageManager) TeamId() (string, bool) {
	return self.Get(storageKeyTeamId)
}

func (self *StorageManager) SetTeamId(teamId string) error {
	return self.Set(storageKeyTeamId, teamId)
}

func (self *StorageManager) RemoveTeamId() error {
	return self.Remove(storageKeyTeamId)
}

func (self *StorageManager) DeviceId() (string, bool) {
	return self.Get(storageKeyDeviceId)
}

func (self *StorageManager) SetDeviceId(deviceId string) error {
	return self.Set(storageKeyDeviceId, deviceId)
}

func (self *StorageManager) AccessLevel() int {
	value, ok := self.Get(storageKeyAccessLevel)
	if !ok {
		return AccessLevelAnonymous
	}
	accessLevel, err := strconv.Atoi(value)
	if err != nil {
		return AccessLevelAnonymous
	}
	return accessLevel
}

func (self *StorageManager) SetAccessLevel(accessLevel int) error {
	return self.Set(storageKeyAccessLevel, strconv.Itoa(accessLevel))
}

func (self *StorageManager) Room() (string, bool) {
	return self.Get(storageKeyRoom)
}

func (self *StorageManager) SetRoom(roomId string) error {
	return self.Set(storageKeyRoom, roomId)
}

// RemoveUser clears everything tied to the logged-in user.
func (self *StorageManager) RemoveUser() {
	self.Remove(storageKeyToken)
	self.Remove(storageKeyUserId)
	self.Remove(storageKeyAliasId)
	self.Remove(storageKeyTeamId)
	self.Remove(storageKeyRoom)
	self.SetAccessLevel(AccessLevelAnonymous)
}

func markedKey(listType string) string {
	return fmt.Sprintf("marked:%s", listType)
}

// Marked returns the ids pinned for a list type. Marks survive a full
// re-render because they live here, not in the controller.
func (self *StorageManager) Marked(listType string) []string {
	value, ok := self.Get(markedKey(listType))
	if !ok {
		return []string{}
	}
	var objectIds []string
	if err := json.Unmarshal([]byte(value), &objectIds); err != nil {
		return []string{}
	}
	return objectIds
}

func (self *StorageManager) AddMarked(listType string, objectId string) error {
	objectIds := self.Marked(listType)
	if slices.Contains(objectIds, objectId) {
		return nil
	}
	objectIds = append(objectIds, objectId)
	encoded, err := json.Marshal(objectIds)
	if err != nil {
		return err
	}
	return self.Set(markedKey(listType), string(encoded))
}

func (self *StorageManager) PullMarked(listType string, objectId string) error {
	objectIds := self.Marked(listType)
	i := slices.Index(objectIds, objectId)
	if i < 0 {
		return nil
	}
	objectIds = slices.Delete(objectIds, i, i+1)
	encoded, err := json.Marshal(objectIds)
	if err != nil {
		return err
	}
	return self.Set(markedKey(listType), string(encoded))
}
