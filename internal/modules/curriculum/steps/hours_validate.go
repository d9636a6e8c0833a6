package steps

import (
	"math"

	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/policy"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/state"
)

// HoursReport describes what ValidateHours did.
type HoursReport struct {
	Budget int    `json:"budget"`
	Before int    `json:"before"`
	After  int    `json:"after"`
	Action string `json:"action"` // "none" | "scaled" | "topped_up" | "scaled_topped_up"
}

// ValidateHours fits module hours into weeklyHours*durationWeeks. Over budget,
// hours are scaled (minimum 1) and rounding overshoot is trimmed from the
// largest modules. Under the top-up ratio, the shortfall to the full budget is
// spread evenly with the remainder going to the first (or last) modules. The
// input is not modified and a second pass is a no-op.
func ValidateHours(modules []state.DetailedModule, weeklyHours, durationWeeks int, rules policy.Validator) ([]state.DetailedModule, HoursReport) {
	out := make([]state.DetailedModule, len(modules))
	for i, m := range modules {
		out[i] = m.Clone()
	}
	budget := weeklyHours * durationWeeks
	rep := HoursReport{Budget: budget, Before: sumHours(out), Action: "none"}
	if len(out) == 0 || budget <= 0 {
		rep.After = rep.Before
		return out, rep
	}
	ratio := rules.TopUpRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.8
	}

	total := rep.Before
	if total > budget {
		scale := float64(budget) / float64(total)
		for i := range out {
			out[i].EstimatedHours = max(1, int(math.Round(float64(out[i].EstimatedHours)*scale)))
		}
		trimOvershoot(out, budget)
		rep.Action = "scaled"
		total = sumHours(out)
	}

	if float64(total) < ratio*float64(budget) {
		topUp(out, budget-total, rules.RemainderToFirst)
		if rep.Action == "scaled" {
			rep.Action = "scaled_topped_up"
		} else {
			rep.Action = "topped_up"
		}
	}
	rep.After = sumHours(out)
	return out, rep
}

func trimOvershoot(mods []state.DetailedModule, budget int) {
	for over := sumHours(mods) - budget; over > 0; over-- {
		idx := -1
		for i := range mods {
			if mods[i].EstimatedHours <= 1 {
				continue
			}
			if idx < 0 || mods[i].EstimatedHours > mods[idx].EstimatedHours {
				idx = i
			}
		}
		if idx < 0 {
			return
		}
		mods[idx].EstimatedHours--
	}
}

func topUp(mods []state.DetailedModule, shortfall int, remainderToFirst bool) {
	n := len(mods)
	if n == 0 || shortfall <= 0 {
		return
	}
	each, rem := shortfall/n, shortfall%n
	for i := range mods {
		mods[i].EstimatedHours += each
		if remainderToFirst && i < rem {
			mods[i].EstimatedHours++
		}
		if !remainderToFirst && i >= n-rem {
			mods[i].EstimatedHours++
		}
	}
}

func sumHours(mods []state.DetailedModule) int {
	total := 0
	for _, m := range mods {
		total += m.EstimatedHours
	}
	return total
}
