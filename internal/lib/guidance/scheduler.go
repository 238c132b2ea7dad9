// Package guidance tracks which turn-by-turn instruction is current and
// decides when to advance it and when it should be narrated.
package guidance

import "github.com/saferoute/navigator/internal/lib/geo"

// Scheduler advances an ordered instruction list as the agent moves.
// It holds thresholds only; instruction state (the current index and the
// last narrated index) is owned by the caller and passed in per tick.
type Scheduler struct {
	AdvanceThresholdMeters float64
	NarrateThresholdMeters float64
}

// NewScheduler creates a scheduler with the given thresholds in meters.
func NewScheduler(advanceMeters, narrateMeters float64) Scheduler {
	return Scheduler{
		AdvanceThresholdMeters: advanceMeters,
		NarrateThresholdMeters: narrateMeters,
	}
}

// Tick is the scheduler output for one position sample
type Tick struct {
	Index            int
	DistanceToTarget float64
	Advanced         bool
	ShouldNarrate    bool
}

// Advance computes the scheduler state for a new position sample.
//
// The displayed instruction announces the upcoming maneuver, which
// occurs at the NEXT instruction's coordinates, so that is the distance
// target. The depart instruction is the exception: it has no approach
// target and advances once the agent has moved more than the advance
// threshold away from the route start. The index advances by at most one
// per call and never past the last instruction.
//
// Narration fires on every advance, or once when the distance to target
// first drops to the narrate threshold while still above the advance
// threshold. lastNarrated deduplicates the threshold case.
func (s Scheduler) Advance(instructions []Instruction, index, lastNarrated int, pos, routeStart geo.Point) Tick {
	if len(instructions) == 0 {
		return Tick{Index: index}
	}
	if index < 0 {
		index = 0
	}
	if index >= len(instructions) {
		index = len(instructions) - 1
	}

	dist := geo.Distance(pos, s.target(instructions, index))

	advance := false
	if index < len(instructions)-1 {
		if index == 0 && instructions[0].Maneuver == ManeuverDepart {
			advance = geo.Distance(pos, routeStart) > s.AdvanceThresholdMeters
		} else {
			advance = dist < s.AdvanceThresholdMeters
		}
	}

	if advance {
		index++
		return Tick{
			Index:            index,
			DistanceToTarget: geo.Distance(pos, s.target(instructions, index)),
			Advanced:         true,
			ShouldNarrate:    true,
		}
	}

	narrate := dist <= s.NarrateThresholdMeters &&
		dist > s.AdvanceThresholdMeters &&
		lastNarrated < index

	return Tick{
		Index:            index,
		DistanceToTarget: dist,
		ShouldNarrate:    narrate,
	}
}

// target returns the point whose distance drives advancement and
// narration for the instruction at index: the next instruction's
// coordinates, or the instruction's own coordinates for the final
// (arrive) instruction.
func (s Scheduler) target(instructions []Instruction, index int) geo.Point {
	if index < len(instructions)-1 {
		return instructions[index+1].Coordinates
	}
	return instructions[index].Coordinates
}
