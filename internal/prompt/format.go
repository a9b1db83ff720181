package prompt

import (
	"fmt"
	"strings"

	"duskmire/internal/goal"
	"duskmire/internal/world"
	"duskmire/pkg/memory"
)

// healthBucket maps a health fraction to the prose the model sees. An NPC
// without a health pool reads as healthy.
func healthBucket(health, maxHealth int) string {
	if maxHealth <= 0 {
		return "healthy"
	}
	pct := health * 100 / maxHealth
	switch {
	case pct <= 10:
		return "near death"
	case pct <= 25:
		return "badly wounded"
	case pct <= 50:
		return "wounded"
	case pct <= 75:
		return "slightly hurt"
	default:
		return "healthy"
	}
}

func writeCondition(sb *strings.Builder, snap world.Snapshot) {
	fmt.Fprintf(sb, "You are %s.", healthBucket(snap.Self.Health, snap.Self.MaxHealth))
	if snap.InCombat {
		if len(snap.Opponents) > 0 {
			fmt.Fprintf(sb, " You are fighting %s!", strings.Join(snap.Opponents, " and "))
		} else {
			sb.WriteString(" You are in a fight!")
		}
	}
	sb.WriteString("\n")
}

func writeRoom(sb *strings.Builder, room world.RoomView) {
	if room.ID == "" {
		return
	}
	sb.WriteString("\n## Where you are\n")
	sb.WriteString(room.Name + "\n")
	if room.Description != "" {
		sb.WriteString(room.Description + "\n")
	}
	if len(room.Exits) > 0 {
		fmt.Fprintf(sb, "Exits: %s.\n", strings.Join(room.Exits, ", "))
	} else {
		sb.WriteString("Exits: none.\n")
	}
}

func writePresence(sb *strings.Builder, snap world.Snapshot) {
	var players, npcs []string
	for _, l := range snap.Room.Livings {
		if l.ID == snap.Self.ID {
			continue
		}
		name := l.Name
		if snap.Fighting[l.ID] {
			name += " (fighting)"
		}
		if l.IsPlayer {
			players = append(players, name)
		} else {
			npcs = append(npcs, name)
		}
	}
	if len(players)+len(npcs)+len(snap.Room.Items) == 0 {
		return
	}

	sb.WriteString("\n## Around you\n")
	if len(players) > 0 {
		fmt.Fprintf(sb, "Players here: %s.\n", strings.Join(players, ", "))
	}
	if len(npcs) > 0 {
		fmt.Fprintf(sb, "Others here: %s.\n", strings.Join(npcs, ", "))
	}
	if len(snap.Room.Items) > 0 {
		names := make([]string, 0, len(snap.Room.Items))
		for _, it := range snap.Room.Items {
			names = append(names, it.Name)
		}
		fmt.Fprintf(sb, "On the ground: %s.\n", strings.Join(names, ", "))
	}
}

func writeEvents(sb *strings.Builder, events []world.RoomEvent) {
	if len(events) == 0 {
		return
	}
	sb.WriteString("\n## What just happened\n")
	for _, ev := range events {
		sb.WriteString("- " + ev.String() + "\n")
	}
}

func writeGoal(sb *strings.Builder, g *memory.NpcGoal, plan goal.Plan) {
	if g == nil {
		return
	}
	sb.WriteString("\n## Your goal\n")
	line := g.GoalType
	if g.TargetPlayer != "" {
		line += fmt.Sprintf(" (target: %s)", g.TargetPlayer)
	}
	sb.WriteString(line + "\n")
	if s := plan.Summary(); s != "" {
		sb.WriteString("Plan " + s + "\n")
	}
}

func writeMemories(sb *strings.Builder, mems []memory.NpcMemory) {
	if len(mems) == 0 {
		return
	}
	sb.WriteString("\n## You remember\n")
	for _, m := range mems {
		sb.WriteString("- " + m.Content + "\n")
	}
}

func writeKnowledge(sb *strings.Builder, entries []memory.KbEntry) {
	if len(entries) == 0 {
		return
	}
	sb.WriteString("\n## You know\n")
	for _, e := range entries {
		sb.WriteString("- " + kbLine(e) + "\n")
	}
}

// kbLine prefers the curated summary; entries without one fall back to the
// raw document.
func kbLine(e memory.KbEntry) string {
	if e.Summary != "" {
		return e.Summary
	}
	return fmt.Sprintf("%s: %s", e.Key, string(e.Value))
}

func writeFeedback(sb *strings.Builder, entries []string, failStreak, replanThreshold int) {
	if len(entries) > 0 {
		sb.WriteString("\n## Your last actions\n")
		for _, e := range entries {
			sb.WriteString(e + "\n")
		}
	}
	if failStreak > replanThreshold {
		fmt.Fprintf(sb, "\nYou have failed %d times in a row. Your current approach is not working. Re-plan: change your plan or pursue the goal another way.\n", failStreak)
	}
}
