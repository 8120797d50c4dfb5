package id

import (
	"sort"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SortsInCreationOrder(t *testing.T) {
	now := time.Now()
	ids := make([]string, 100)
	for i := range ids {
		ids[i] = NewAt(now)
	}
	assert.True(t, sort.StringsAreSorted(ids))
}

func TestNew_IsValidULID(t *testing.T) {
	u, err := ulid.Parse(New())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ulid.Time(u.Time()), time.Second)
}
