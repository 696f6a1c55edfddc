package simulation

import (
	"github.com/daicherr/orbis/internal/catalog"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/store"
)

type place struct {
	name, kind, biome, faction, desc string
	dangerMin, dangerMax, tier       int
	population                       int
}

var places = []place{
	{"Vila Crisântemos", "vila", "planície", "Império Central", "Vila de agricultores cercada de campos de arroz.", 1, 1, 1, 300},
	{"Floresta Nublada", "floresta", "floresta", "", "Floresta densa onde javalis e lobos sombrios caçam.", 2, 4, 1, 0},
	{"Cavernas Cristalinas", "caverna", "caverna", "Clã Luo", "Cavernas de cristal habitadas por serpentes.", 3, 5, 2, 0},
	{"Cidade Subterrânea", "cidade", "caverna", "", "Uma cidade escavada na rocha, iluminada por cristais.", 2, 4, 2, 2000},
	{"Cidade Imperial", "cidade", "cidade", "Império Central", "Capital murada do Império Central.", 1, 2, 1, 50000},
	{"Vale dos Mil Picos", "vale", "montanha", "", "Vale de rochas afiadas disputado por seitas.", 3, 6, 2, 0},
	{"Montanha Arcaica", "montanha", "montanha", "Seita Arcaica", "Sede da Seita Arcaica.", 5, 8, 3, 800},
	{"Passo da Montanha", "montanha", "montanha", "", "Trilha estreita entre penhascos gelados.", 4, 6, 2, 0},
	{"Geleiras Sussurrantes", "geleira", "gelo", "", "Campos de gelo onde o vento sussurra nomes esquecidos.", 5, 7, 3, 0},
	{"Pico do Trovão Eterno", "montanha", "montanha", "", "Um pico onde raios caem sem cessar.", 7, 9, 5, 0},
	{"Seita Lua Sombria", "seita", "floresta", "Lua Sombria", "Fortaleza da seita demoníaca da Lua Sombria.", 4, 7, 3, 600},
	{"Floresta Venenosa", "floresta", "floresta", "", "Árvores retorcidas que exalam névoa tóxica.", 4, 6, 2, 0},
	{"Pântano dos Mil Venenos", "pântano", "pântano", "Lua Sombria", "Águas negras onde nada vive por muito tempo.", 4, 6, 2, 0},
	{"Monastério da Aurora", "monastério", "montanha", "Monastério da Aurora", "Templo de monges que meditam ao nascer do sol.", 1, 2, 1, 200},
	{"Porto Sul", "porto", "costa", "Guilda de Piratas", "Porto movimentado dominado pela Guilda de Piratas.", 2, 3, 1, 8000},
	{"Deserto Carmesim", "deserto", "deserto", "Nômades do Deserto", "Dunas vermelhas sob um sol implacável.", 4, 7, 2, 500},
	{"Oásis Eterno", "oásis", "deserto", "", "Uma fonte que nunca seca no coração do deserto.", 2, 3, 2, 100},
	{"Ruínas Solares", "ruínas", "ruínas", "", "Restos de um templo solar de uma era perdida.", 5, 8, 3, 0},
}

// roads lists undirected edges with their length in km.
var roads = []struct {
	a, b string
	km   float64
}{
	{"Vila Crisântemos", "Floresta Nublada", 5},
	{"Vila Crisântemos", "Cidade Imperial", 30},
	{"Floresta Nublada", "Cavernas Cristalinas", 8},
	{"Floresta Nublada", "Vale dos Mil Picos", 15},
	{"Floresta Nublada", "Cidade Imperial", 25},
	{"Cavernas Cristalinas", "Cidade Subterrânea", 6},
	{"Vale dos Mil Picos", "Montanha Arcaica", 20},
	{"Vale dos Mil Picos", "Cidade Imperial", 35},
	{"Montanha Arcaica", "Passo da Montanha", 12},
	{"Passo da Montanha", "Cidade Imperial", 40},
	{"Passo da Montanha", "Geleiras Sussurrantes", 18},
	{"Geleiras Sussurrantes", "Pico do Trovão Eterno", 22},
	{"Cidade Imperial", "Monastério da Aurora", 15},
	{"Cidade Imperial", "Porto Sul", 45},
	{"Porto Sul", "Pântano dos Mil Venenos", 20},
	{"Pântano dos Mil Venenos", "Floresta Venenosa", 10},
	{"Floresta Venenosa", "Seita Lua Sombria", 8},
	{"Porto Sul", "Deserto Carmesim", 50},
	{"Deserto Carmesim", "Oásis Eterno", 25},
	{"Deserto Carmesim", "Ruínas Solares", 30},
}

var factionSeed = []struct {
	name            string
	power, treasury float64
}{
	{"Império Central", 1000, 10000},
	{"Seita Arcaica", 800, 5000},
	{"Lua Sombria", 500, 3000},
	{"Monastério da Aurora", 600, 4000},
	{"Guilda de Piratas", 400, 6000},
	{"Clã Luo", 350, 8000},
	{"Nômades do Deserto", 200, 1500},
}

var ecologySeed = []struct {
	region   string
	capacity int
	species  map[string]int
}{
	{"Floresta Nublada", 200, map[string]int{"Javali Selvagem": 50, "Cobra de Névoa": 30, "Raposa Sombria": 20, "Lobo Sombrio": 40, "Urso Espiritual": 5}},
	{"Vale dos Mil Picos", 80, map[string]int{"Águia de Trovão": 25, "Serpente de Pedra": 15, "Golem Natural": 10}},
	{"Cavernas Cristalinas", 200, map[string]int{"Serpente Cristalina": 30, "Golem de Pedra": 20, "Morcego Espiritual": 100}},
	{"Montanha Arcaica", 50, map[string]int{"Dragão de Gelo": 3, "Fênix de Neve": 1, "Lobo de Gelo": 15}},
	{"Pântano dos Mil Venenos", 150, map[string]int{"Sapo Venenoso": 80, "Sanguessuga Gigante": 50, "Hidra do Pântano": 2}},
	{"Deserto Carmesim", 100, map[string]int{"Escorpião Gigante": 40, "Serpente de Areia": 30, "Wyrm do Deserto": 3}},
	{"Geleiras Sussurrantes", 60, map[string]int{"Urso Polar Espiritual": 10, "Lobo de Gelo": 25, "Mamute Fantasma": 5}},
	{"Ruínas Solares", 40, map[string]int{"Espírito Errante": 12}},
}

// walkingKmPerHour converts road length into travel hours.
const walkingKmPerHour = 5

// DefaultWorld returns the seed of a new world: the location graph, the
// seven great factions, the market from the economy catalog and the
// monster populations.
func DefaultWorld(econ catalog.Economy) store.WorldSeed {
	danger := make(map[string]int, len(places))
	for _, p := range places {
		danger[p.name] = (p.dangerMin + p.dangerMax) / 2
	}
	edges := make(map[string]map[string]models.Connection, len(places))
	neighbors := make(map[string][]string, len(places))
	link := func(from, to string, km float64) {
		if edges[from] == nil {
			edges[from] = map[string]models.Connection{}
		}
		edges[from][to] = models.Connection{Distance: km, TravelTime: km / walkingKmPerHour, Danger: max(danger[from], danger[to])}
		neighbors[from] = append(neighbors[from], to)
	}
	for _, r := range roads {
		link(r.a, r.b, r.km)
		link(r.b, r.a, r.km)
	}

	var seed store.WorldSeed
	territories := map[string][]string{}
	for _, p := range places {
		seed.Locations = append(seed.Locations, models.Location{
			Name:            p.name,
			Type:            p.kind,
			Biome:           p.biome,
			Description:     p.desc,
			DangerMin:       p.dangerMin,
			DangerMax:       p.dangerMax,
			RecommendedTier: p.tier,
			Faction:         p.faction,
			Connections:     edges[p.name],
			Weather:         "clear",
			Population:      p.population,
		})
		if p.faction != "" {
			territories[p.faction] = append(territories[p.faction], p.name)
		}
	}

	for _, f := range factionSeed {
		seed.Factions = append(seed.Factions, models.Faction{
			Name:        f.name,
			Power:       f.power,
			Treasury:    f.treasury,
			Territories: territories[f.name],
			Allies:      []string{},
			Enemies:     []string{},
			Relations:   map[string]string{},
		})
	}

	seed.Economy = Items(econ)

	for _, e := range ecologySeed {
		species := make(map[string]int, len(e.species))
		for k, v := range e.species {
			species[k] = v
		}
		seed.Ecology = append(seed.Ecology, models.RegionEcology{
			Region:    e.region,
			Species:   species,
			Capacity:  e.capacity,
			Neighbors: neighbors[e.region],
		})
	}
	return seed
}
