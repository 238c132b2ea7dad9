package guidance

import "github.com/saferoute/navigator/internal/lib/geo"

// Maneuver identifies the type of a turn-by-turn instruction
type Maneuver string

const (
	ManeuverDepart          Maneuver = "depart"
	ManeuverTurnLeft        Maneuver = "turn-left"
	ManeuverTurnRight       Maneuver = "turn-right"
	ManeuverTurnSlightLeft  Maneuver = "turn-slight-left"
	ManeuverTurnSlightRight Maneuver = "turn-slight-right"
	ManeuverTurnSharpLeft   Maneuver = "turn-sharp-left"
	ManeuverTurnSharpRight  Maneuver = "turn-sharp-right"
	ManeuverUturnLeft       Maneuver = "uturn-left"
	ManeuverUturnRight      Maneuver = "uturn-right"
	ManeuverStraight        Maneuver = "straight"
	ManeuverMerge           Maneuver = "merge"
	ManeuverRampLeft        Maneuver = "ramp-left"
	ManeuverRampRight       Maneuver = "ramp-right"
	ManeuverForkLeft        Maneuver = "fork-left"
	ManeuverForkRight       Maneuver = "fork-right"
	ManeuverRoundaboutLeft  Maneuver = "roundabout-left"
	ManeuverRoundaboutRight Maneuver = "roundabout-right"
	ManeuverArrive          Maneuver = "arrive"
)

// Instruction is a single turn-by-turn maneuver along a route.
// Coordinates mark where the instruction starts; the maneuver it
// announces occurs at the NEXT instruction's coordinates.
// DistanceMeters is refreshed on every position update for live display.
type Instruction struct {
	Text           string    `json:"text"`
	Maneuver       Maneuver  `json:"maneuver"`
	DistanceMeters float64   `json:"distance_meters"`
	Coordinates    geo.Point `json:"coordinates"`
}
