package mirror

import "github.com/xraph/mirror/internal/entity"

// Entity is the timestamp pair embedded by mirror records.
type Entity = entity.Entity

// NewEntity returns an Entity stamped with the current UTC time.
func NewEntity() Entity {
	return entity.New()
}
