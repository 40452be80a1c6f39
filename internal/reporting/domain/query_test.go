package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateName(t *testing.T) {
	cases := []struct {
		showClaims bool
		group      Group
		want       string
	}{
		{true, GroupFacility, "claim_batch_pbc_H"},
		{true, GroupProduct, "claim_batch_pbc_P"},
		{false, GroupFacility, "claim_batch_pbh"},
		{false, GroupProduct, "claim_batch_pbp"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TemplateName(tc.showClaims, tc.group))
	}
}

func TestParseGroup(t *testing.T) {
	g, err := ParseGroup("")
	require.NoError(t, err)
	assert.Equal(t, GroupFacility, g)
	g, err = ParseGroup("p")
	require.NoError(t, err)
	assert.Equal(t, GroupProduct, g)
	_, err = ParseGroup("Z")
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestQuery_Validate(t *testing.T) {
	from := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

	assert.NoError(t, Query{Group: GroupFacility, HFLevel: LevelHealthCentre}.Validate())
	assert.ErrorIs(t, Query{Group: GroupFacility, HFLevel: "X"}.Validate(), ErrInvalidQuery)
	assert.ErrorIs(t, Query{Group: GroupFacility, DateFrom: &from, DateTo: &to}.Validate(), ErrInvalidQuery)
	assert.ErrorIs(t, Query{Group: GroupFacility, RunID: -1}.Validate(), ErrInvalidQuery)
	assert.ErrorIs(t, Query{}.Validate(), ErrInvalidQuery)
}

func TestQuery_CacheKeyIgnoresGroup(t *testing.T) {
	from := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	a := Query{LocationID: 3, RunID: 9, DateFrom: &from, Group: GroupFacility}
	b := a
	b.Group = GroupProduct
	assert.Equal(t, a.CacheKey(), b.CacheKey())

	c := a
	c.ShowClaims = true
	assert.NotEqual(t, a.CacheKey(), c.CacheKey())
	assert.Contains(t, a.CacheKey(), "from=2024-03-01")
}
