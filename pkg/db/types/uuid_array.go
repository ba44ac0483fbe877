package dbtypes

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// UUIDArray maps a Postgres uuid[] column onto a slice of parsed UUIDs.
// Element parsing rides on pq's array codec.
type UUIDArray []uuid.UUID

func (a *UUIDArray) Scan(src any) error {
	if src == nil {
		*a = UUIDArray{}
		return nil
	}

	var raw pq.StringArray
	if err := raw.Scan(src); err != nil {
		return fmt.Errorf("uuid array: %w", err)
	}

	parsed := make(UUIDArray, len(raw))
	for i, elem := range raw {
		id, err := uuid.Parse(elem)
		if err != nil {
			return fmt.Errorf("uuid array element %d: %w", i, err)
		}
		parsed[i] = id
	}
	*a = parsed
	return nil
}

func (a UUIDArray) Value() (driver.Value, error) {
	raw := make(pq.StringArray, len(a))
	for i, id := range a {
		raw[i] = id.String()
	}
	return raw.Value()
}
