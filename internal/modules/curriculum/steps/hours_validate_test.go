package steps

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/policy"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/state"
)

var defaultRules = policy.Validator{TopUpRatio: 0.8, RemainderToFirst: true}

func modsWithHours(hours ...int) []state.DetailedModule {
	out := make([]state.DetailedModule, len(hours))
	for i, h := range hours {
		out[i] = state.DetailedModule{Week: i + 1, EstimatedHours: h}
	}
	return out
}

func hoursOf(mods []state.DetailedModule) []int {
	out := make([]int, len(mods))
	for i, m := range mods {
		out[i] = m.EstimatedHours
	}
	return out
}

func TestValidateHoursScalesDown(t *testing.T) {
	in := modsWithHours(20, 20, 20)
	out, rep := ValidateHours(in, 10, 3, defaultRules)
	assert.Equal(t, []int{10, 10, 10}, hoursOf(out))
	assert.Equal(t, "scaled", rep.Action)
	assert.Equal(t, []int{20, 20, 20}, hoursOf(in))
}

func TestValidateHoursTrimsRoundingOvershoot(t *testing.T) {
	// each 7 scales to 5.73 and rounds to 6, so 6+6+6+1 = 19 before trimming.
	out, rep := ValidateHours(modsWithHours(7, 7, 7, 1), 6, 3, defaultRules)
	assert.Equal(t, 18, rep.After)
	assert.LessOrEqual(t, sumHours(out), 18)
	for _, m := range out {
		assert.GreaterOrEqual(t, m.EstimatedHours, 1)
	}
}

func TestValidateHoursTopsUpWithRemainderFirst(t *testing.T) {
	out, rep := ValidateHours(modsWithHours(1, 1, 1, 1), 10, 4, defaultRules)
	// shortfall 36 over 4 modules: 9 each, no remainder.
	assert.Equal(t, []int{10, 10, 10, 10}, hoursOf(out))
	assert.Equal(t, "topped_up", rep.Action)

	out, _ = ValidateHours(modsWithHours(1, 1, 1), 10, 2, defaultRules)
	// shortfall 17: 5 each, first 2 get +1.
	assert.Equal(t, []int{7, 7, 6}, hoursOf(out))

	out, _ = ValidateHours(modsWithHours(1, 1, 1), 10, 2, policy.Validator{TopUpRatio: 0.8})
	assert.Equal(t, []int{6, 7, 7}, hoursOf(out))
}

func TestValidateHoursWithinBandUnchanged(t *testing.T) {
	out, rep := ValidateHours(modsWithHours(9, 8, 10, 7), 10, 4, defaultRules)
	assert.Equal(t, []int{9, 8, 10, 7}, hoursOf(out))
	assert.Equal(t, "none", rep.Action)
}

func TestValidateHoursEmpty(t *testing.T) {
	out, rep := ValidateHours(nil, 10, 4, defaultRules)
	assert.Empty(t, out)
	assert.Equal(t, "none", rep.Action)
}

func TestValidateHoursBudgetInvariantAndIdempotence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 2000; iter++ {
		weekly := 1 + rng.Intn(40)
		weeks := 1 + rng.Intn(24)
		hours := make([]int, weeks)
		for i := range hours {
			switch rng.Intn(3) {
			case 0:
				hours[i] = 1 + rng.Intn(3)
			case 1:
				hours[i] = 1 + rng.Intn(40)
			default:
				hours[i] = 1 + rng.Intn(400)
			}
		}
		budget := weekly * weeks
		once, _ := ValidateHours(modsWithHours(hours...), weekly, weeks, defaultRules)
		total := sumHours(once)
		require.LessOrEqual(t, total, budget, "weekly=%d weeks=%d hours=%v", weekly, weeks, hours)
		require.GreaterOrEqual(t, float64(total), 0.8*float64(budget), "weekly=%d weeks=%d hours=%v", weekly, weeks, hours)

		twice, rep := ValidateHours(once, weekly, weeks, defaultRules)
		require.Equal(t, hoursOf(once), hoursOf(twice))
		require.Equal(t, "none", rep.Action)
	}
}
