// Package npc holds what makes a living an NPC: the capability bitmask that
// gates its actions, the profile that describes who it is and what drives it,
// and the volatile per-NPC state a cognition turn reads and writes — witnessed
// events, command feedback, the current interactor.
package npc

import (
	"fmt"
	"strings"
)

// Caps is a bitmask of permitted action kinds. The command executor refuses
// any action whose required capability is unset, and the prompt builder tells
// the model up front what its NPC can and cannot do.
type Caps uint16

const (
	CanSpeak Caps = 1 << iota
	CanEmote
	CanAttack
	CanFlee
	CanManipulateItems
	CanTrade
	CanFollow
	CanWander
	CanUseDoors
)

// Presets cover the common NPC archetypes. Animal is the harmless critter,
// Beast adds teeth, Humanoid has hands and speech, Merchant additionally
// trades.
const (
	Animal   = CanEmote | CanFlee | CanWander
	Beast    = CanEmote | CanAttack | CanFlee | CanWander
	Humanoid = CanSpeak | CanEmote | CanAttack | CanFlee |
		CanManipulateItems | CanFollow | CanWander | CanUseDoors
	Merchant = Humanoid | CanTrade
)

// Can reports whether every capability in flag is set.
func (c Caps) Can(flag Caps) bool {
	return c&flag == flag
}

var capNames = []struct {
	flag Caps
	name string
}{
	{CanSpeak, "speak"},
	{CanEmote, "emote"},
	{CanAttack, "attack"},
	{CanFlee, "flee"},
	{CanManipulateItems, "items"},
	{CanTrade, "trade"},
	{CanFollow, "follow"},
	{CanWander, "wander"},
	{CanUseDoors, "doors"},
}

// String renders the set flags as a pipe-separated list, for traces and logs.
func (c Caps) String() string {
	var names []string
	for _, cn := range capNames {
		if c.Can(cn.flag) {
			names = append(names, cn.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// ParseCaps resolves a preset name from an area file. The empty string
// defaults to Humanoid.
func ParseCaps(preset string) (Caps, error) {
	switch strings.ToLower(strings.TrimSpace(preset)) {
	case "", "humanoid":
		return Humanoid, nil
	case "animal":
		return Animal, nil
	case "beast":
		return Beast, nil
	case "merchant":
		return Merchant, nil
	default:
		return 0, fmt.Errorf("npc: unknown caps preset %q", preset)
	}
}

// ActionInventory renders the capability set as prompt text: one line per
// action kind the NPC may take, and explicit CANNOT call-outs for the kinds
// it may not, so the model does not invent actions the executor will refuse.
func ActionInventory(c Caps) string {
	var b strings.Builder

	write := func(ok bool, can, cannot string) {
		if ok {
			b.WriteString(can)
		} else {
			b.WriteString(cannot)
		}
		b.WriteByte('\n')
	}

	write(c.Can(CanSpeak),
		"You can speak: write what you want to say as plain text.",
		"You CANNOT speak — communicate only through sounds and body language.")
	write(c.Can(CanEmote),
		"You can express yourself physically: *smiles*, *growls*, *paces about*.",
		"You CANNOT emote or gesture.")
	write(c.Can(CanWander),
		"You can move between rooms: [cmd:go <direction>].",
		"You CANNOT leave this place.")
	write(c.Can(CanManipulateItems),
		"You can handle objects: [cmd:get <item>], [cmd:drop <item>], [cmd:give <item> to <target>], [cmd:use <item>], [cmd:equip <item>].",
		"You CANNOT pick up, carry, or use objects.")
	write(c.Can(CanAttack),
		"You can fight: [cmd:kill <target>].",
		"You CANNOT attack anyone.")
	write(c.Can(CanFlee),
		"You can run from a fight: [cmd:flee].",
		"You CANNOT flee from combat.")
	write(c.Can(CanFollow),
		"You can follow someone: [cmd:follow <target>].",
		"You CANNOT follow anyone.")
	if c.Can(CanTrade) {
		b.WriteString("You can trade: offer and hand over goods with [cmd:give <item> to <target>].\n")
	}

	return strings.TrimRight(b.String(), "\n")
}
