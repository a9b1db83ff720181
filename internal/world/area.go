package world

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// AreaFile is the top-level structure of an area YAML file: one area's
// metadata, the NPC profiles it defines, and its rooms.
//
// Example:
//
//	area:
//	  id: millbrook
//	  name: "Millbrook Village"
//	profiles:
//	  - id: barnaby
//	    name: "Barnaby the Brewer"
//	    persona: "A stout, cheerful brewer who knows everyone's business."
//	    caps: humanoid
//	rooms:
//	  - id: millbrook/square
//	    name: "Village Square"
//	    exits: { north: millbrook/tavern }
//	    npcs:
//	      - profile: barnaby
type AreaFile struct {
	Area     AreaMeta     `yaml:"area"`
	Profiles []ProfileDef `yaml:"profiles,omitempty"`
	Rooms    []RoomDef    `yaml:"rooms"`
}

// AreaMeta identifies an area.
type AreaMeta struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// RoomDef declares a room. Rooms materialize from their definition on first
// use; see [World.EnsureRoom].
type RoomDef struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Exits       map[string]string `yaml:"exits,omitempty"`
	Linked      []string          `yaml:"linked_rooms,omitempty"`
	Items       []ItemDef         `yaml:"items,omitempty"`
	Spawns      []SpawnDef        `yaml:"npcs,omitempty"`
	Commands    map[string]string `yaml:"commands,omitempty"`

	// Area is filled in by [World.Install] from the file's metadata.
	Area string `yaml:"-"`
}

// ItemDef declares an item placed in a room at materialization.
type ItemDef struct {
	ID      string   `yaml:"id,omitempty"`
	Name    string   `yaml:"name"`
	Short   string   `yaml:"short,omitempty"`
	Aliases []string `yaml:"aliases,omitempty"`
	Slot    string   `yaml:"slot,omitempty"`
	Usable  bool     `yaml:"usable,omitempty"`
}

// SpawnDef places one NPC in a room at materialization.
type SpawnDef struct {
	// Profile references a [ProfileDef] id.
	Profile string `yaml:"profile"`

	// ID optionally pins the spawned NPC's id; leave empty to derive one
	// from the profile.
	ID string `yaml:"id,omitempty"`

	// Name optionally overrides the profile's display name.
	Name string `yaml:"name,omitempty"`
}

// ProfileDef is the declarative description of an NPC kind: who they are,
// what they may do, and what drives them.
type ProfileDef struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases,omitempty"`

	// Persona is the free-text character description fed to the model.
	Persona string `yaml:"persona,omitempty"`

	// Caps names a capability preset: animal, humanoid, beast, or merchant.
	Caps string `yaml:"caps,omitempty"`

	// Health is the spawn health; zero means the default.
	Health int `yaml:"health,omitempty"`

	// Heartbeat opts the NPC into periodic cognition even without events.
	Heartbeat bool `yaml:"heartbeat,omitempty"`

	DefaultGoal  GoalTemplateDef   `yaml:"default_goal,omitempty"`
	Needs        []NeedDef         `yaml:"needs,omitempty"`
	KeyLocations map[string]string `yaml:"key_locations,omitempty"`
}

// GoalTemplateDef declares a goal an NPC starts with or falls back to. An
// empty Type means no template.
type GoalTemplateDef struct {
	Type       string `yaml:"type"`
	Target     string `yaml:"target,omitempty"`
	Plan       string `yaml:"plan,omitempty"` // pipe-separated step list
	Importance int    `yaml:"importance,omitempty"`
}

// NeedDef declares a standing drive. Lower levels are stronger; Goal names
// the goal type the need derives when the NPC is idle (defaults to Type).
type NeedDef struct {
	Type  string `yaml:"type"`
	Level int    `yaml:"level"`
	Goal  string `yaml:"goal,omitempty"`
}

// LoadAreaFile reads and parses one area YAML file from disk.
func LoadAreaFile(path string) (*AreaFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("world: open area file %q: %w", path, err)
	}
	defer f.Close()

	area, err := LoadAreaFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("world: parse area file %q: %w", path, err)
	}
	return area, nil
}

// LoadAreaFromReader parses area YAML from an [io.Reader]. The reader is
// consumed entirely; the caller closes it.
func LoadAreaFromReader(r io.Reader) (*AreaFile, error) {
	var area AreaFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown keys to catch typos
	if err := dec.Decode(&area); err != nil {
		return nil, fmt.Errorf("world: decode area yaml: %w", err)
	}
	return &area, nil
}

// ValidateArea checks one area file for internal consistency. Cross-area
// references (exits into other areas, profiles defined elsewhere) are checked
// later, at [World.Install] time or on use.
//
// Rules:
//   - the area id must be non-empty,
//   - every room needs a non-empty id and name, unique within the file,
//   - exits must name a destination,
//   - items need names, spawns need a profile reference,
//   - profiles need non-empty ids and names, unique within the file.
func ValidateArea(area *AreaFile) error {
	if area == nil {
		return errors.New("area must not be nil")
	}
	var errs []error

	if area.Area.ID == "" {
		errs = append(errs, errors.New("area id must not be empty"))
	}

	profileIDs := make(map[string]bool, len(area.Profiles))
	for i, p := range area.Profiles {
		switch {
		case p.ID == "":
			errs = append(errs, fmt.Errorf("profile[%d]: id must not be empty", i))
		case profileIDs[p.ID]:
			errs = append(errs, fmt.Errorf("profile[%d]: duplicate id %q", i, p.ID))
		default:
			profileIDs[p.ID] = true
		}
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("profile[%d]: name must not be empty", i))
		}
	}

	roomIDs := make(map[string]bool, len(area.Rooms))
	for i, rd := range area.Rooms {
		switch {
		case rd.ID == "":
			errs = append(errs, fmt.Errorf("room[%d]: id must not be empty", i))
		case roomIDs[rd.ID]:
			errs = append(errs, fmt.Errorf("room[%d]: duplicate id %q", i, rd.ID))
		default:
			roomIDs[rd.ID] = true
		}
		if rd.Name == "" {
			errs = append(errs, fmt.Errorf("room[%d] (%s): name must not be empty", i, rd.ID))
		}
		for dir, dest := range rd.Exits {
			if dest == "" {
				errs = append(errs, fmt.Errorf("room[%d] (%s): exit %q has no destination", i, rd.ID, dir))
			}
		}
		for j, it := range rd.Items {
			if it.Name == "" {
				errs = append(errs, fmt.Errorf("room[%d] (%s): item[%d]: name must not be empty", i, rd.ID, j))
			}
		}
		for j, s := range rd.Spawns {
			if s.Profile == "" {
				errs = append(errs, fmt.Errorf("room[%d] (%s): npc[%d]: profile must not be empty", i, rd.ID, j))
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
