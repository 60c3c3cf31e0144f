package granary

import "github.com/xraph/granary/id"

// ID is the primary identifier type for all Granary entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
