package npc

import (
	"fmt"
	"maps"
	"slices"

	"duskmire/internal/world"
)

// DefaultHealth is the spawn health when the profile does not set one.
const DefaultHealth = 100

// GoalTemplate is the declarative form of a goal: the default goal an NPC
// starts with, or the goal a need derives when the NPC is idle. Plan is a
// pipe-separated step list; an empty Type means no template.
type GoalTemplate struct {
	Type       string
	Target     string
	Plan       string
	Importance int
}

// IsZero reports whether the template is absent.
func (t GoalTemplate) IsZero() bool {
	return t.Type == ""
}

// Need is a standing drive. Lower levels are stronger. Goal names the goal
// type the need derives; empty means the need type doubles as the goal type.
type Need struct {
	Type  string
	Level int
	Goal  string
}

// Profile is everything static about an NPC kind: identity, persona, what it
// may do, and what it wants.
type Profile struct {
	ID           string
	Name         string
	Aliases      []string
	Persona      string
	Caps         Caps
	Health       int
	Heartbeat    bool
	DefaultGoal  GoalTemplate
	Needs        []Need
	KeyLocations map[string]string
}

// ProfileFromDef converts an area file profile definition, resolving the caps
// preset and filling defaults.
func ProfileFromDef(def world.ProfileDef) (Profile, error) {
	caps, err := ParseCaps(def.Caps)
	if err != nil {
		return Profile{}, fmt.Errorf("npc: profile %q: %w", def.ID, err)
	}
	health := def.Health
	if health <= 0 {
		health = DefaultHealth
	}

	p := Profile{
		ID:           def.ID,
		Name:         def.Name,
		Aliases:      slices.Clone(def.Aliases),
		Persona:      def.Persona,
		Caps:         caps,
		Health:       health,
		Heartbeat:    def.Heartbeat,
		KeyLocations: maps.Clone(def.KeyLocations),
		DefaultGoal: GoalTemplate{
			Type:       def.DefaultGoal.Type,
			Target:     def.DefaultGoal.Target,
			Plan:       def.DefaultGoal.Plan,
			Importance: def.DefaultGoal.Importance,
		},
	}
	for _, n := range def.Needs {
		p.Needs = append(p.Needs, Need{Type: n.Type, Level: n.Level, Goal: n.Goal})
	}
	return p, nil
}
