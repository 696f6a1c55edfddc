package director

import (
	"strings"

	"github.com/daicherr/orbis/internal/clock"
)

// Location classes.
const (
	Settlement    = "settlement"
	Wilderness    = "wilderness"
	Dungeon       = "dungeon"
	Sacred        = "sacred"
	Establishment = "establishment"
)

// Profile is the population a kind of place supports.
type Profile struct {
	Name          string
	Class         string
	Min, Max      int
	HostileChance float64
	Roles         []string
}

var profiles = map[string]Profile{
	"cidade_imperial": {"cidade_imperial", Settlement, 3, 5, 0.05, []string{"merchant", "guard", "noble", "cultivator", "scholar", "beggar"}},
	"vila":            {"vila", Settlement, 1, 3, 0, []string{"farmer", "elder", "merchant", "healer", "blacksmith"}},
	"porto":           {"porto", Settlement, 2, 4, 0.1, []string{"sailor", "merchant", "fisherman", "smuggler", "tavern_keeper"}},
	"floresta":        {"floresta", Wilderness, 0, 2, 0.7, []string{"beast", "bandit", "hermit", "hunter"}},
	"montanha":        {"montanha", Wilderness, 0, 2, 0.8, []string{"beast", "cultivator_rogue", "hermit"}},
	"deserto":         {"deserto", Wilderness, 0, 1, 0.6, []string{"beast", "nomad", "bandit"}},
	"pântano":         {"pântano", Wilderness, 0, 2, 0.9, []string{"beast", "poison_creature", "witch"}},
	"caverna":         {"caverna", Dungeon, 1, 3, 0.95, []string{"beast", "undead", "golem", "treasure_guardian"}},
	"ruínas":          {"ruínas", Dungeon, 1, 2, 0.85, []string{"undead", "spirit", "golem", "rogue_cultivator"}},
	"abismo":          {"abismo", Dungeon, 1, 4, 1.0, []string{"demon", "ancient_beast", "corrupted_cultivator"}},
	"templo":          {"templo", Sacred, 1, 3, 0, []string{"monk", "priest", "guardian", "pilgrim", "scholar"}},
	"monastério":      {"monastério", Sacred, 2, 4, 0, []string{"monk", "master", "disciple", "librarian"}},
	"santuário":       {"santuário", Sacred, 0, 2, 0.1, []string{"spirit", "guardian", "hermit"}},
	"taverna":         {"taverna", Establishment, 2, 4, 0.1, []string{"tavern_keeper", "bard", "drunk", "traveler", "informant", "bounty_hunter"}},
	"loja":            {"loja", Establishment, 1, 2, 0, []string{"merchant", "apprentice", "customer"}},
	"forja":           {"forja", Establishment, 1, 2, 0, []string{"blacksmith", "apprentice"}},
	"arena":           {"arena", Establishment, 3, 6, 0.3, []string{"fighter", "announcer", "gambler", "noble", "champion"}},
	"mercado":         {"mercado", Establishment, 3, 5, 0.05, []string{"merchant", "customer", "guard", "pickpocket", "performer"}},
}

var wild = Profile{"wild", Wilderness, 0, 1, 0.5, []string{"beast", "wanderer"}}

// keywords are matched in order; the first hit decides the profile.
var keywords = []struct{ word, profile string }{
	{"cidade imperial", "cidade_imperial"},
	{"cidade", "cidade_imperial"},
	{"vila", "vila"},
	{"aldeia", "vila"},
	{"vilarejo", "vila"},
	{"village", "vila"},
	{"porto", "porto"},
	{"cais", "porto"},
	{"floresta", "floresta"},
	{"bosque", "floresta"},
	{"selva", "floresta"},
	{"montanha", "montanha"},
	{"pico", "montanha"},
	{"vale", "montanha"},
	{"deserto", "deserto"},
	{"oásis", "deserto"},
	{"pântano", "pântano"},
	{"brejo", "pântano"},
	{"planície", "floresta"},
	{"caverna", "caverna"},
	{"gruta", "caverna"},
	{"mina", "caverna"},
	{"ruínas", "ruínas"},
	{"tumba", "ruínas"},
	{"abismo", "abismo"},
	{"submundo", "abismo"},
	{"templo", "templo"},
	{"altar", "templo"},
	{"santuário", "santuário"},
	{"monastério", "monastério"},
	{"mosteiro", "monastério"},
	{"taverna", "taverna"},
	{"estalagem", "taverna"},
	{"hospedaria", "taverna"},
	{"caldeirão", "taverna"},
	{"bar", "taverna"},
	{"taberna", "taverna"},
	{"balcão", "taverna"},
	{"loja", "loja"},
	{"boticário", "loja"},
	{"alquimista", "loja"},
	{"forja", "forja"},
	{"ferreiro", "forja"},
	{"arena", "arena"},
	{"coliseu", "arena"},
	{"mercado", "mercado"},
	{"feira", "mercado"},
	{"praça", "mercado"},
}

var (
	establishmentHints = []string{"viajante", "atendimento", "salão", "quarto", "cozinha", "recepção", "hall", "corredor", "escritório", "sala", "jardim interno", "pátio"}
	sacredHints        = []string{"sagrado", "altar", "oração", "meditação", "ancestral"}
	dungeonHints       = []string{"profundo", "escuro", "antigo", "perdido", "esquecido"}
)

// Classify returns the profile of a place from the words in its names. The
// first name with a keyword wins; hints about interiors, sacred ground or
// deep places come next, and an unknown place is treated as sparse wild.
func Classify(names ...string) Profile {
	for _, name := range names {
		s := strings.ToLower(name)
		for _, k := range keywords {
			if s != "" && strings.Contains(s, k.word) {
				return profiles[k.profile]
			}
		}
	}
	all := strings.ToLower(strings.Join(names, " "))
	switch {
	case hasAny(all, establishmentHints):
		return profiles["taverna"]
	case hasAny(all, sacredHints):
		return profiles["templo"]
	case hasAny(all, dungeonHints):
		return profiles["ruínas"]
	}
	return wild
}

func hasAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// Bounds returns the population bounds of p at the given time of day.
// Civilized places empty out at night while the wild fills up; dawn is
// quiet everywhere.
func (p Profile) Bounds(tod clock.TimeOfDay) (lo, hi int) {
	m := 1.0
	switch tod {
	case clock.Night, clock.Midnight:
		if p.Class == Settlement || p.Class == Establishment {
			m = 0.3
		} else {
			m = 1.2
		}
	case clock.Dawn:
		m = 0.7
	}
	return max(0, int(float64(p.Min)*m)), max(1, int(float64(p.Max)*m))
}

var hostileRoles = map[string]bool{
	"beast": true, "bandit": true, "demon": true, "undead": true, "golem": true, "spirit": true,
	"poison_creature": true, "corrupted_cultivator": true, "rogue_cultivator": true,
	"ancient_beast": true, "treasure_guardian": true, "drunk": true, "pickpocket": true,
	"fighter": true, "witch": true,
}

var monsterRoles = map[string]bool{
	"beast": true, "bandit": true, "demon": true, "undead": true, "golem": true,
	"poison_creature": true, "corrupted_cultivator": true,
}

// HostileRoles and FriendlyRoles split the profile's roles for slot rolls.
func (p Profile) HostileRoles() []string { return filter(p.Roles, func(r string) bool { return hostileRoles[r] }) }
func (p Profile) FriendlyRoles() []string {
	return filter(p.Roles, func(r string) bool { return !monsterRoles[r] })
}

func filter(in []string, keep func(string) bool) []string {
	var out []string
	for _, s := range in {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

var questChance = map[string]float64{
	Settlement:    0.3,
	Establishment: 0.4,
	Sacred:        0.5,
	Wilderness:    0.1,
	Dungeon:       0.05,
}

// QuestChance is the chance of a quest giver showing up in p.
func (p Profile) QuestChance() float64 {
	if c, ok := questChance[p.Class]; ok {
		return c
	}
	return 0.1
}
