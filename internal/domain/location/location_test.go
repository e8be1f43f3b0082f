package location

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WarehouseIsRoot(t *testing.T) {
	loc, err := New(KindWarehouse, "WH-1", "Main warehouse", nil)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, loc.ID)
	assert.Nil(t, loc.ParentID)
	assert.Equal(t, KindWarehouse, loc.Kind)
	assert.Equal(t, "WH-1", loc.Code)
	assert.False(t, loc.CreatedAt.IsZero())
}

func TestNew_WarehouseRejectsParent(t *testing.T) {
	parentID := uuid.New()

	_, err := New(KindWarehouse, "WH-2", "Annex", &parentID)

	assert.ErrorIs(t, err, ErrInvalidParent)
}

func TestNew_ZoneAndBinRequireParent(t *testing.T) {
	for _, kind := range []Kind{KindZone, KindBin} {
		_, err := New(kind, "X-1", "X", nil)
		assert.ErrorIs(t, err, ErrInvalidParent, "kind %s must require a parent", kind)
	}

	parentID := uuid.New()
	zone, err := New(KindZone, "Z-1", "Zone 1", &parentID)
	require.NoError(t, err)
	require.NotNil(t, zone.ParentID)
	assert.Equal(t, parentID, *zone.ParentID)
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New(Kind("aisle"), "A-1", "Aisle 1", nil)

	assert.ErrorIs(t, err, ErrInvalidParent)
}

func TestParentKindFor(t *testing.T) {
	kind, ok := ParentKindFor(KindZone)
	require.True(t, ok)
	assert.Equal(t, KindWarehouse, kind)

	kind, ok = ParentKindFor(KindBin)
	require.True(t, ok)
	assert.Equal(t, KindZone, kind)

	_, ok = ParentKindFor(KindWarehouse)
	assert.False(t, ok, "warehouses are roots and have no parent kind")
}
