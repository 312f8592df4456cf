package attendance

// BreakInterval is a wall-clock window excluded from recognized time.
type BreakInterval struct {
	Start TimeOfDay
	End   TimeOfDay
}

// ZoneRule configures one monitored zone for a day.
type ZoneRule struct {
	ID           string
	Name         string
	SessionStart TimeOfDay
	SessionEnd   TimeOfDay
	Breaks       []BreakInterval
	// GoalMinutes overrides the event-wide goal when positive.
	GoalMinutes int
}

// DisplayName falls back to the zone id when no name is configured.
func (z ZoneRule) DisplayName() string {
	if z.Name != "" {
		return z.Name
	}
	return z.ID
}

// DailyRule is the configuration for one calendar date.
type DailyRule struct {
	Date        Date
	GoalMinutes int
	Zones       []ZoneRule
}

// Zone looks up a zone by id. It is safe to call on a nil rule.
func (r *DailyRule) Zone(id string) (*ZoneRule, bool) {
	if r == nil {
		return nil, false
	}
	for i := range r.Zones {
		if r.Zones[i].ID == id {
			return &r.Zones[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy so cached rules can be handed out safely.
func (r DailyRule) Clone() DailyRule {
	out := r
	out.Zones = make([]ZoneRule, len(r.Zones))
	for i, z := range r.Zones {
		z.Breaks = append([]BreakInterval(nil), z.Breaks...)
		out.Zones[i] = z
	}
	return out
}
