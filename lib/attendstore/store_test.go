package attendstore

import (
	"context"
	"testing"
	"time"

	"auattend-backend/lib/attendstore/db"
	"auattend-backend/lib/testutil"

	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "lib/attendstore",
		DbSchema: db.Schema,
	})
	defer cleanup()
	store := NewStore(setup.DB)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	{
		status, err := store.Get(ctx, "AU123", "02-12-2024", "Physics")
		require.NoError(t, err)
		require.Equal(t, StatusUnknown, status)
	}
	{
		err := store.Set(ctx, "AU123", "02-12-2024", "Physics", StatusPresent)
		require.NoError(t, err)

		status, err := store.Get(ctx, "AU123", "02-12-2024", "Physics")
		require.NoError(t, err)
		require.Equal(t, StatusPresent, status)
	}
	{
		// last write wins
		err := store.Set(ctx, "AU123", "02-12-2024", "Physics", StatusAbsent)
		require.NoError(t, err)

		status, err := store.Get(ctx, "AU123", "02-12-2024", "Physics")
		require.NoError(t, err)
		require.Equal(t, StatusAbsent, status)
	}
	{
		// keys are independent per user, day and subject
		status, err := store.Get(ctx, "AU999", "02-12-2024", "Physics")
		require.NoError(t, err)
		require.Equal(t, StatusUnknown, status)

		status, err = store.Get(ctx, "AU123", "03-12-2024", "Physics")
		require.NoError(t, err)
		require.Equal(t, StatusUnknown, status)
	}
	{
		err := store.Set(ctx, "AU123", "02-12-2024", "Maths", StatusPresent)
		require.NoError(t, err)

		day, err := store.Day(ctx, "AU123", "02-12-2024")
		require.NoError(t, err)
		require.Equal(t, map[string]Status{
			"Physics": StatusAbsent,
			"Maths":   StatusPresent,
		}, day)
	}
	{
		err := store.Forget(ctx, "AU123")
		require.NoError(t, err)

		day, err := store.Day(ctx, "AU123", "02-12-2024")
		require.NoError(t, err)
		require.Len(t, day, 0)
	}
}
