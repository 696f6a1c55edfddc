package simulation

import (
	"fmt"
	"sort"

	"github.com/daicherr/orbis/internal/dice"
	"github.com/daicherr/orbis/internal/models"
)

// MonsterMigration is emitted when part of a crowded or hunted population
// moves to a neighbouring region.
const MonsterMigration = "monster_migration"

const (
	crowdedShare     = 0.9
	pressureLimit    = 50
	pressureDecay    = 5
	defaultCapacity  = 100
	reproductionRate = 0.05
)

// ecologyTick migrates and breeds monster populations. regions must be
// sorted by name; new regions reached by migration are appended.
func ecologyTick(regions []*models.RegionEcology, turn int) ([]*models.RegionEcology, []*models.WorldEvent) {
	byName := make(map[string]*models.RegionEcology, len(regions))
	for _, r := range regions {
		byName[r.Region] = r
	}

	var events []*models.WorldEvent
	for i := 0; i < len(regions); i++ {
		r := regions[i]
		capacity := r.Capacity
		if capacity <= 0 {
			capacity = defaultCapacity
		}
		if float64(r.Total()) > crowdedShare*float64(capacity) || r.Pressure > pressureLimit {
			if e := migrate(r, byName, &regions, turn); e != nil {
				events = append(events, e)
			}
		}
		breed(r, capacity)
	}
	for _, r := range regions {
		r.Pressure -= pressureDecay
		if r.Pressure < 0 {
			r.Pressure = 0
		}
	}
	return regions, events
}

func migrate(from *models.RegionEcology, byName map[string]*models.RegionEcology, regions *[]*models.RegionEcology, turn int) *models.WorldEvent {
	if len(from.Neighbors) == 0 || len(from.Species) == 0 {
		return nil
	}
	dest := ""
	least := -1
	for _, n := range from.Neighbors {
		total := 0
		if r, ok := byName[n]; ok {
			total = r.Total()
		}
		if least < 0 || total < least {
			dest, least = n, total
		}
	}

	species := speciesOf(from)
	migrating := species[0]
	for _, s := range species[1:] {
		if from.Species[s] > from.Species[migrating] {
			migrating = s
		}
	}
	count := from.Species[migrating] / 5
	if count < 1 {
		count = 1
	}
	if count > from.Species[migrating] {
		return nil
	}

	to, ok := byName[dest]
	if !ok {
		to = &models.RegionEcology{Region: dest, Species: map[string]int{}, Capacity: defaultCapacity}
		byName[dest] = to
		*regions = append(*regions, to)
	}
	if to.Species == nil {
		to.Species = map[string]int{}
	}
	from.Species[migrating] -= count
	to.Species[migrating] += count

	return &models.WorldEvent{
		Type:              MonsterMigration,
		Description:       fmt.Sprintf("Uma horda de %d %s migrou de %s para %s!", count, migrating, from.Region, dest),
		PublicDescription: fmt.Sprintf("Caçadores avistam %s vindos de %s.", migrating, from.Region),
		Turn:              turn,
		Location:          dest,
		Effects:           map[string]any{"from": from.Region, "to": dest, "species": migrating, "count": count},
		Active:            true,
	}
}

func breed(r *models.RegionEcology, capacity int) {
	for _, s := range speciesOf(r) {
		n := r.Species[s]
		if n <= 0 {
			continue
		}
		space := capacity - r.Total()
		if space <= 0 {
			return
		}
		births := int(float64(n) * reproductionRate)
		if births < 1 {
			births = 1
		}
		if births > space {
			births = space
		}
		r.Species[s] += births
	}
}

func speciesOf(r *models.RegionEcology) []string {
	out := make([]string, 0, len(r.Species))
	for s := range r.Species {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Hunt lowers a population by count and raises the region's hunting pressure.
func Hunt(r *models.RegionEcology, species string, count int) {
	if n, ok := r.Species[species]; ok {
		n -= count
		if n < 0 {
			n = 0
		}
		r.Species[species] = n
	}
	r.Pressure += float64(count * 2)
}

// Encounter picks a species weighted by population, or "" for an empty region.
func Encounter(r *models.RegionEcology, roll *dice.Roller) string {
	species := speciesOf(r)
	weights := make([]int, len(species))
	total := 0
	for i, s := range species {
		weights[i] = r.Species[s]
		total += weights[i]
	}
	if total == 0 {
		return ""
	}
	return species[roll.WeightedIndex(weights)]
}
