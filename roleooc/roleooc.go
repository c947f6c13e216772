package roleooc

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"

	"golang.org/x/exp/maps"
)

// change types broadcast by the service for every entity collection
type ChangeType string

const (
	ChangeTypeCreate ChangeType = "create"
	ChangeTypeUpdate ChangeType = "update"
	ChangeTypeRemove ChangeType = "remove"
)

// ObjectIdParam is the field every record carries.
const ObjectIdParam = "objectId"

// A Record is one entity instance as received from the service.
// The data layer is opaque to its fields beyond `objectId` and
// whatever a filter or sort spec names.
type Record map[string]any

func (self Record) ObjectId() string {
	objectId, _ := self[ObjectIdParam].(string)
	return objectId
}

func (self Record) Clone() Record {
	return Record(maps.Clone(self))
}

// merge copies the payload fields over the existing fields.
// Fields not present in the payload keep their prior values.
func (self Record) merge(payload Record) {
	for param, value := range payload {
		self[param] = value
	}
}

// Params is a parameter object sent to or received from the service.
type Params = map[string]any

// comparable
type Id [16]byte

func NewId() Id {
	return Id(ulid.Make())
}

func ParseId(idStr string) (Id, error) {
	parsed, err := ulid.ParseStrict(idStr)
	if err != nil {
		return Id{}, err
	}
	return Id(parsed), nil
}

func (self Id) Bytes() []byte {
	return self[0:16]
}

func (self Id) String() string {
	return ulid.ULID(self).String()
}

func (self *Id) MarshalJSON() ([]byte, error) {
	var buff bytes.Buffer
	buff.WriteByte('"')
	buff.WriteString(self.String())
	buff.WriteByte('"')
	return buff.Bytes(), nil
}

func (self *Id) UnmarshalJSON(src []byte) error {
	if len(src) < 2 || src[0] != '"' || src[len(src)-1] != '"' {
		return errors.New("id must be a quoted string")
	}
	id, err := ParseId(string(src[1 : len(src)-1]))
	if err != nil {
		return fmt.Errorf("cannot parse id %s: %w", src, err)
	}
	*self = id
	return nil
}
