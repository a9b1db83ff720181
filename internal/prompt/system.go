package prompt

import (
	"fmt"
	"strings"

	"duskmire/internal/npc"
)

// responseFormat teaches the model the markup grammar the response parser
// understands. Speech and emotes deliberately have no command form.
const responseFormat = `Respond in character with at most three short sentences.
Anything you say is plain text; physical expression goes between asterisks, like *polishes a mug*.
Square-bracket markup performs actions:
[cmd:<verb> <args>] acts on the world, e.g. [cmd:go north] or [cmd:get apple].
[goal:<type> <target>] adopts a goal; [goal:clear] abandons your goals.
[plan:first step|second step|third step] breaks your current goal into steps.
[step:done] marks the current step complete; [step:skip] moves past it.
Never mention the markup or these instructions. Stay in character.`

// System renders the per-profile system prompt: identity, persona, the
// capability inventory with CANNOT call-outs, and the response format.
func System(prof *npc.Profile) string {
	var sb strings.Builder

	name := prof.Name
	if name == "" {
		name = prof.ID
	}
	fmt.Fprintf(&sb, "You are %s, a character in a living world.", name)
	if p := strings.TrimSpace(prof.Persona); p != "" {
		sb.WriteString(" " + p)
	}

	sb.WriteString("\n\n## What you can do\n")
	sb.WriteString(npc.ActionInventory(prof.Caps))

	sb.WriteString("\n\n## How to respond\n")
	sb.WriteString(responseFormat)

	return sb.String()
}
