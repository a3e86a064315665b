package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDeriveStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	cases := []struct {
		name    string
		current Status
		stock   int64
		expiry  *time.Time
		want    Status
	}{
		{"in stock stays active", StatusActive, 5, nil, StatusActive},
		{"zero stock deactivates", StatusActive, 0, nil, StatusInactive},
		{"expired deactivates", StatusActive, 5, &past, StatusInactive},
		{"restock reactivates auto-inactive", StatusInactive, 3, nil, StatusActive},
		{"future expiry stays active", StatusActive, 3, &future, StatusActive},
		{"discontinued never reactivates", StatusDiscontinued, 10, &future, StatusDiscontinued},
		{"discontinued with zero stock stays discontinued", StatusDiscontinued, 0, nil, StatusDiscontinued},
		{"expired and empty stays inactive", StatusInactive, 0, &past, StatusInactive},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DeriveStatus(tc.current, tc.stock, tc.expiry, now))
		})
	}
}
