package main

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/request-engine/admission"
	"github.com/warp/request-engine/admission/store"
	"github.com/warp/request-engine/config"
	"github.com/warp/request-engine/store/sqlite"
)

func TestSeedDemo_ResolvesReviewers(t *testing.T) {
	// GIVEN: a fresh sqlite database seeded twice
	ctx := context.Background()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, seedDemo(ctx, db))
	require.NoError(t, seedDemo(ctx, db))

	// THEN: managers may review, employees may not
	bob, err := db.ResolveCaller(ctx, "bob")
	require.NoError(t, err)
	assert.NoError(t, admission.Authorize(bob, admission.RequireAll(admission.PermRequestReview)))

	alice, err := db.ResolveCaller(ctx, "alice")
	require.NoError(t, err)
	assert.ErrorIs(t, admission.Authorize(alice, admission.RequireAll(admission.PermRequestReview)), admission.ErrForbidden)

	sick, err := db.GetAbsenceType(ctx, "sick")
	require.NoError(t, err)
	require.NotNil(t, sick.AvailableDays)
	assert.Equal(t, "5", sick.AvailableDays.String())
}

func TestOpenStore_Drivers(t *testing.T) {
	for _, driver := range []string{config.DriverMemory, config.DriverSQLite, config.DriverGorm} {
		t.Run(driver, func(t *testing.T) {
			db, err := openStore(&config.Config{StoreDriver: driver, DatabasePath: ":memory:"}, nil)
			require.NoError(t, err)
			if c, ok := db.(io.Closer); ok {
				t.Cleanup(func() { c.Close() })
			}
			require.NoError(t, seedDemo(context.Background(), db))

			carol, err := db.ResolveCaller(context.Background(), "carol")
			require.NoError(t, err)
			assert.True(t, carol.Role.Has(admission.PermRequestReadAll))
		})
	}

	_, ok := any(store.NewMemory()).(backend)
	assert.True(t, ok)
}
