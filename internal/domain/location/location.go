package location

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("location not found")
	ErrInvalidParent = errors.New("invalid parent for location kind")
)

// Kind places a location in the warehouse/zone/bin hierarchy.
type Kind string

const (
	KindWarehouse Kind = "warehouse"
	KindZone      Kind = "zone"
	KindBin       Kind = "bin"
)

// parentKind maps each kind to the kind its parent must have. Warehouses
// are roots and have no entry.
var parentKind = map[Kind]Kind{
	KindZone: KindWarehouse,
	KindBin:  KindZone,
}

// Location is a node in the storage hierarchy. Stock items reference the
// leaf they sit in; any kind may hold stock directly.
type Location struct {
	ID        uuid.UUID  `json:"id"`
	ParentID  *uuid.UUID `json:"parent_id,omitempty"`
	Kind      Kind       `json:"kind"`
	Code      string     `json:"code"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
}

// New builds a location node. Warehouses must be roots; zones and bins must
// name a parent. Whether the parent row exists and has the right kind is
// checked by the caller against the store.
func New(kind Kind, code, name string, parentID *uuid.UUID) (*Location, error) {
	switch kind {
	case KindWarehouse:
		if parentID != nil {
			return nil, ErrInvalidParent
		}
	case KindZone, KindBin:
		if parentID == nil {
			return nil, ErrInvalidParent
		}
	default:
		return nil, ErrInvalidParent
	}
	return &Location{
		ID:        uuid.New(),
		ParentID:  parentID,
		Kind:      kind,
		Code:      code,
		Name:      name,
		CreatedAt: time.Now(),
	}, nil
}

// ParentKindFor returns the kind a parent of the given kind must have.
func ParentKindFor(kind Kind) (Kind, bool) {
	k, ok := parentKind[kind]
	return k, ok
}

// Store persists the location tree.
type Store interface {
	InsertLocation(ctx context.Context, loc *Location) error
	LocationByID(ctx context.Context, id uuid.UUID) (*Location, error)
	LocationsByParent(ctx context.Context, parentID uuid.UUID) ([]*Location, error)
	AllLocations(ctx context.Context) ([]*Location, error)
}
