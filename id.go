package vigil

import "github.com/xraph/vigil/id"

// ID is the primary identifier type for all vigil entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
