package attendance

// ApplicableGoal returns the zone goal when positive, otherwise the event-wide
// goal of the day. A nil rule has no goal.
func ApplicableGoal(zoneID string, rule *DailyRule) int {
	if rule == nil {
		return 0
	}
	if zone, ok := rule.Zone(zoneID); ok && zone.GoalMinutes > 0 {
		return zone.GoalMinutes
	}
	return rule.GoalMinutes
}

// GoalMet reports whether total reaches goal. The boundary is inclusive, so
// a day with no goal configured is met by any total.
func GoalMet(totalMinutes, goalMinutes int) bool {
	return totalMinutes >= goalMinutes
}
