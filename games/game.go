package games

// Game is the classification of a ROM image: the family whose preset files apply to it,
// the display name of the game, and the presets offered for it, in display order.
type Game struct {
	Family  string   `json:"family"`
	Name    string   `json:"game"`
	Presets []string `json:"presets"`
}

// HasPreset reports whether preset is offered for this game. Names are case-sensitive.
func (g *Game) HasPreset(preset string) bool {
	if g == nil {
		return false
	}
	for _, p := range g.Presets {
		if p == preset {
			return true
		}
	}
	return false
}

func (g Game) clone() *Game {
	g.Presets = append([]string(nil), g.Presets...)
	return &g
}

var (
	fullPresets = []string{"Standard", "Ultimate", "Kaizo", "Survival", "SuperKaizo"}
	gscPresets  = []string{"Standard", "Kaizo", "Survival"}
)

// crystalMarker is looked for in the GBC title; Crystal has no game code field to match on.
const crystalMarker = "CRYSTAL"

// table maps GBA/NDS game codes and the GBC title marker to their game.
// It is never written after package initialization.
var table = map[string]Game{
	// GBA:
	"BPRE": {"FRLG", "FireRed", fullPresets},
	"BPGE": {"FRLG", "LeafGreen", fullPresets},
	"AXVE": {"RSE", "Ruby", fullPresets},
	"AXPE": {"RSE", "Sapphire", fullPresets},
	"BPEE": {"RSE", "Emerald", fullPresets},
	// NDS:
	"CPUE": {"DPP", "Diamond", fullPresets},
	"CPUJ": {"DPP", "Pearl", fullPresets},
	"CPUP": {"DPP", "Platinum", fullPresets},
	"IPKE": {"HGSS", "HeartGold", fullPresets},
	"IPGE": {"HGSS", "SoulSilver", fullPresets},
	// GBC:
	crystalMarker: {"GSC", "Crystal", gscPresets},
}
