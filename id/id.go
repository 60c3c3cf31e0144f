// Package id defines TypeID-based identity types for all Granary entities.
//
// Every entity in Granary uses a single ID struct with a prefix that
// identifies the entity type. IDs are K-sortable (UUIDv7-based), globally
// unique, and URL-safe in the format "prefix_suffix".
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for all Granary entity types.
const (
	PrefixSeller        Prefix = "slr"  // Marketplace seller
	PrefixCeiling       Prefix = "ceil" // Price ceiling record
	PrefixViolation     Prefix = "viol" // Compliance violation
	PrefixPurchaseOrder Prefix = "po"   // Bulk purchase order
	PrefixLot           Prefix = "lot"  // Inventory lot
	PrefixAuditRecord   Prefix = "aud"  // Audit trail record
)

// ID is the primary identifier type for all Granary entities.
// It wraps a TypeID providing a prefix-qualified, globally unique,
// sortable, URL-safe identifier in the format "prefix_suffix".
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string (e.g., "slr_01h2xcejqtf2nbrexx3vqjhp41")
// into an ID. Returns an error if the string is not valid.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses a TypeID string and validates that its prefix
// matches the expected value.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// MustParseWithPrefix is like ParseWithPrefix but panics on error.
func MustParseWithPrefix(s string, expected Prefix) ID {
	parsed, err := ParseWithPrefix(s, expected)
	if err != nil {
		panic(fmt.Sprintf("id: must parse with prefix %q: %v", expected, err))
	}

	return parsed
}

// ──────────────────────────────────────────────────
// Type aliases per entity
// ──────────────────────────────────────────────────

// SellerID is a type-safe identifier for sellers (prefix: "slr").
type SellerID = ID

// CeilingID is a type-safe identifier for price ceilings (prefix: "ceil").
type CeilingID = ID

// ViolationID is a type-safe identifier for compliance violations (prefix: "viol").
type ViolationID = ID

// PurchaseOrderID is a type-safe identifier for purchase orders (prefix: "po").
type PurchaseOrderID = ID

// LotID is a type-safe identifier for inventory lots (prefix: "lot").
type LotID = ID

// AuditRecordID is a type-safe identifier for audit records (prefix: "aud").
type AuditRecordID = ID

// AnyID is a type alias that accepts any valid prefix.
type AnyID = ID

// ──────────────────────────────────────────────────
// Convenience constructors
// ──────────────────────────────────────────────────

// NewSellerID generates a new unique seller ID.
func NewSellerID() ID { return New(PrefixSeller) }

// NewCeilingID generates a new unique price ceiling ID.
func NewCeilingID() ID { return New(PrefixCeiling) }

// NewViolationID generates a new unique violation ID.
func NewViolationID() ID { return New(PrefixViolation) }

// NewPurchaseOrderID generates a new unique purchase order ID.
func NewPurchaseOrderID() ID { return New(PrefixPurchaseOrder) }

// NewLotID generates a new unique inventory lot ID.
func NewLotID() ID { return New(PrefixLot) }

// NewAuditRecordID generates a new unique audit record ID.
func NewAuditRecordID() ID { return New(PrefixAuditRecord) }

// ──────────────────────────────────────────────────
// Convenience parsers
// ──────────────────────────────────────────────────

// ParseSellerID parses a string and validates the "slr" prefix.
func ParseSellerID(s string) (ID, error) { return ParseWithPrefix(s, PrefixSeller) }

// ParseCeilingID parses a string and validates the "ceil" prefix.
func ParseCeilingID(s string) (ID, error) { return ParseWithPrefix(s, PrefixCeiling) }

// ParseViolationID parses a string and validates the "viol" prefix.
func ParseViolationID(s string) (ID, error) { return ParseWithPrefix(s, PrefixViolation) }

// ParsePurchaseOrderID parses a string and validates the "po" prefix.
func ParsePurchaseOrderID(s string) (ID, error) { return ParseWithPrefix(s, PrefixPurchaseOrder) }

// ParseLotID parses a string and validates the "lot" prefix.
func ParseLotID(s string) (ID, error) { return ParseWithPrefix(s, PrefixLot) }

// ParseAuditRecordID parses a string and validates the "aud" prefix.
func ParseAuditRecordID(s string) (ID, error) { return ParseWithPrefix(s, PrefixAuditRecord) }

// ParseAny parses a string into an ID without type checking the prefix.
func ParseAny(s string) (ID, error) { return Parse(s) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// Value implements driver.Valuer for database storage.
// Returns nil for the Nil ID so that optional foreign key columns store NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}

	return i.inner.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (i *ID) Scan(src any) error {
	if src == nil {
		*i = Nil

		return nil
	}

	switch v := src.(type) {
	case string:
		if v == "" {
			*i = Nil

			return nil
		}

		return i.UnmarshalText([]byte(v))
	case []byte:
		if len(v) == 0 {
			*i = Nil

			return nil
		}

		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
