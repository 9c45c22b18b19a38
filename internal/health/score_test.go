package health

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/autoseers/carseer/internal/apperr"
	"github.com/autoseers/carseer/internal/model"
)

func TestScore(t *testing.T) {
	cases := []struct {
		good, total, want int
	}{
		{0, 0, 0},
		{3, 4, 75},
		{4, 4, 100},
		{0, 5, 0},
		// floor, never round: 33.3 -> 33, 66.6 -> 66, 99.9 -> 99
		{1, 3, 33},
		{2, 3, 66},
		{999, 1000, 99},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d_of_%d", tc.good, tc.total), func(t *testing.T) {
			assert.Equal(t, tc.want, Score(tc.good, tc.total))
		})
	}
}

func TestScoreInconsistentCountsFallBackToZero(t *testing.T) {
	assert.Equal(t, 0, Score(5, 4))
	assert.Equal(t, 0, Score(-1, 4))
	assert.Equal(t, 0, Score(1, -4))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(0, 0))
	assert.NoError(t, Validate(3, 4))
	assert.ErrorIs(t, Validate(5, 4), apperr.ErrDataIntegrity)
	assert.ErrorIs(t, Validate(-1, 4), apperr.ErrDataIntegrity)
	assert.ErrorIs(t, Validate(0, -1), apperr.ErrDataIntegrity)
}

func TestTallyTenParts(t *testing.T) {
	var parts []model.PartStatus
	add := func(n int, s model.PartCondition) {
		for i := 0; i < n; i++ {
			parts = append(parts, model.PartStatus{Status: s})
		}
	}
	add(7, model.ConditionGood)
	add(2, model.ConditionMedium)
	add(1, model.ConditionBad)

	c := Tally(parts)
	assert.Equal(t, 10, c.Total())
	assert.Equal(t, 3, c.Alerts())
	assert.Equal(t, 70, c.Score())
}

func TestTallyUnknownStatusCountsAgainstScore(t *testing.T) {
	c := Tally([]model.PartStatus{{Status: model.ConditionGood}, {Status: "Excellent"}})
	assert.Equal(t, 1, c.Unknown)
	assert.Equal(t, 0, c.Alerts())
	assert.Equal(t, 50, c.Score())
}

func TestTallyEmpty(t *testing.T) {
	c := Tally(nil)
	assert.Equal(t, 0, c.Total())
	assert.Equal(t, 0, c.Score())
}
