package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/daicherr/orbis/internal/combat"
	"github.com/daicherr/orbis/internal/dice"
	"github.com/daicherr/orbis/internal/memory"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/store"
)

var (
	homeWords = []string{"casa", "lar", "home", "minha casa"}
	exitWords = []string{"sair", "saio", "fora", "lá fora", "rua", "exit", "outside"}
)

// forage is what a search turns up where the location lists no resources.
var forage = map[string]string{
	"floresta": "erva_espiritual",
	"caverna":  "cristal_espiritual",
	"montanha": "minerio_de_ferro",
	"pântano":  "erva_venenosa",
	"deserto":  "areia_solar",
}

func (x *Rules) move(ctx context.Context, s *Scene, a PlannedAction) (*ActionResult, error) {
	p := s.Player
	if len(s.hostiles()) > 0 {
		return refuse("Há inimigos diante de você; não dá para simplesmente ir embora."), nil
	}
	dest, refusal, err := x.resolveDestination(ctx, s, a.Destination)
	if err != nil {
		return nil, err
	}
	if refusal != "" {
		return refuse(refusal), nil
	}
	if dest == p.Location {
		return refuse("Você já está em " + dest + "."), nil
	}
	from := p.Location
	p.Location = dest
	s.Session.EndCombat()
	res := &ActionResult{
		Moved:       true,
		NewLocation: dest,
		Message:     fmt.Sprintf("Você deixa %s e segue para %s.", from, dest),
	}
	res.detail(fmt.Sprintf("%s -> %s", from, dest))
	s.remember(models.PlayerRef(p.ID), memory.Event{
		Type:        memory.Travel,
		Description: fmt.Sprintf("%s viajou de %s para %s", p.Name, from, dest),
		Location:    dest,
		ActorName:   p.Name,
		Actor:       models.PlayerRef(p.ID),
	})
	x.progressPlace(s, dest, res)
	return res, nil
}

// resolveDestination turns the words of a move into a location name. It
// tries the player's aliases, the roads out of the current place, the
// player's own places, the home keywords, the way out of a dynamic place and
// finally the dynamic places inside the current one.
func (x *Rules) resolveDestination(ctx context.Context, s *Scene, dest string) (string, string, error) {
	p := s.Player
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return "", "Para onde você quer ir?", nil
	}
	q := x.st.Queries
	check := func(name string) (string, string, error) {
		return x.enterable(ctx, q, name)
	}

	alias, err := q.ResolveAlias(ctx, p.ID, lower(dest))
	switch {
	case err == nil:
		return check(alias)
	case !errors.Is(err, store.ErrNotFound):
		return "", "", err
	}

	roads := s.exitNames()
	for _, r := range roads {
		if strings.EqualFold(r, dest) {
			return check(r)
		}
	}
	for _, r := range roads {
		if models.MatchName(r, dest) {
			return check(r)
		}
	}

	owned, err := q.DynamicLocationsByOwner(ctx, p.ID)
	if err != nil {
		return "", "", err
	}
	for _, d := range owned {
		if models.MatchName(d.Name, dest) {
			return check(d.Name)
		}
	}

	if containsWord(dest, homeWords) && p.HomeLocation != "" {
		return check(p.HomeLocation)
	}

	here, err := q.GetDynamicLocationByName(ctx, p.Location)
	switch {
	case err == nil:
		if containsWord(dest, exitWords) || models.MatchName(here.Parent, dest) {
			return check(here.Parent)
		}
	case !errors.Is(err, store.ErrNotFound):
		return "", "", err
	}

	inside, err := q.DynamicLocationsByParent(ctx, p.Location)
	if err != nil {
		return "", "", err
	}
	for _, d := range inside {
		if models.MatchName(d.Name, dest) {
			return check(d.Name)
		}
	}
	return "", fmt.Sprintf("Você não conhece nenhum caminho daqui para %s.", dest), nil
}

// enterable refuses destroyed places. Names the store does not know are
// accepted; the world graph may name places not yet described.
func (x *Rules) enterable(ctx context.Context, q *store.Queries, name string) (string, string, error) {
	loc, err := q.GetLocation(ctx, name)
	switch {
	case err == nil:
		if loc.Destroyed {
			return "", fmt.Sprintf("%s não existe mais; só restam ruínas.", name), nil
		}
		return loc.Name, "", nil
	case !errors.Is(err, store.ErrNotFound):
		return "", "", err
	}
	d, err := q.GetDynamicLocationByName(ctx, name)
	switch {
	case err == nil:
		if d.Destroyed {
			return "", fmt.Sprintf("%s foi destruído.", name), nil
		}
		return d.Name, "", nil
	case !errors.Is(err, store.ErrNotFound):
		return "", "", err
	}
	return name, "", nil
}

func containsWord(s string, words []string) bool {
	s = lower(s)
	for _, w := range words {
		if s == w || strings.HasPrefix(s, w+" ") || strings.HasSuffix(s, " "+w) || strings.Contains(s, " "+w+" ") {
			return true
		}
	}
	return false
}

// search draws one resource from the location, or forages by biome when
// the location lists none. Explore adds the roads out to the findings.
func (x *Rules) search(s *Scene, a PlannedAction, r *dice.Roller) *ActionResult {
	p := s.Player
	res := &ActionResult{}
	if a.Intent == Explore {
		res.Observed = s.exitNames()
	}
	found := ""
	if s.Place != nil && len(s.Place.Resources) > 0 {
		var ids []string
		for id, n := range s.Place.Resources {
			if n > 0 {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		if len(ids) > 0 && r.Chance(0.6) {
			found = dice.Pick(r, ids)
			s.Place.Resources[found]--
			if s.Place.Resources[found] <= 0 {
				delete(s.Place.Resources, found)
			}
			s.placeDirty = true
		}
	} else if s.Place != nil {
		if id, ok := forage[lower(s.Place.Biome)]; ok && r.Chance(0.4) {
			found = id
		}
	}

	if found == "" {
		res.Message = "Você vasculha os arredores, mas não encontra nada de valor."
		if a.Intent == Explore && len(res.Observed) > 0 {
			res.Message = "Você percorre os arredores e reconhece os caminhos: " + strings.Join(res.Observed, ", ") + "."
		}
	} else {
		p.AddItem(found, 1)
		res.ItemsGained = append(res.ItemsGained, models.InventoryItem{ItemID: found, Quantity: 1})
		res.Message = fmt.Sprintf("Entre as sombras, você encontra %s.", x.itemName(found))
		res.detail("encontrou " + found)
		x.progressItem(s, found, 1, res)
	}
	s.remember(models.PlayerRef(p.ID), memory.Event{
		Type:        memory.Discovery,
		Description: fmt.Sprintf("%s explorou %s", p.Name, p.Location),
		ActorName:   p.Name,
		Actor:       models.PlayerRef(p.ID),
		Item:        found,
	})
	return res
}

func (x *Rules) itemName(id string) string {
	if it := x.cat.Item(id); it != nil {
		return it.Name
	}
	return strings.ReplaceAll(id, "_", " ")
}

func (x *Rules) observe(s *Scene) *ActionResult {
	p := s.Player
	res := &ActionResult{}
	for _, n := range s.present() {
		res.Observed = append(res.Observed, n.Name)
	}
	switch len(res.Observed) {
	case 0:
		res.Message = "Você observa ao redor. Não há mais ninguém aqui."
	default:
		res.Message = "Você observa ao redor e nota: " + strings.Join(res.Observed, ", ") + "."
	}
	s.remember(models.PlayerRef(p.ID), memory.Event{
		Type:        memory.Observation,
		Description: fmt.Sprintf("%s observou %s", p.Name, p.Location),
		ActorName:   p.Name,
		Actor:       models.PlayerRef(p.ID),
		Others:      res.Observed,
	})
	return res
}

// rest heals a fifth of max hp and is refused near enemies. Waiting lets
// time pass and gives the first enemy present a free blow.
func (x *Rules) rest(s *Scene, a PlannedAction) *ActionResult {
	hostiles := s.hostiles()
	if a.Intent == Rest {
		if len(hostiles) > 0 {
			return refuse("Não é possível descansar com inimigos por perto.")
		}
		healed := combat.Rest(s.Player)
		res := &ActionResult{Message: "Você descansa e sente o corpo se recompor."}
		res.detail(fmt.Sprintf("recuperou %.2f de vida", healed))
		return res
	}
	res := &ActionResult{Message: "Você espera, deixando o tempo correr."}
	if len(hostiles) > 0 {
		hit := x.strike(s, hostiles[0], 1)
		res.CounterAttack = &hit
		res.DamageReceived = hit.Dealt
		res.Message = fmt.Sprintf("Você hesita, e %s aproveita para atacar.", hostiles[0].Name)
		if !s.Player.IsAlive() {
			res.PlayerDied = true
		}
	}
	return res
}

// meditate gathers yuan qi under the moon. Cultivation also draws on the
// qi density of the place and earns xp.
func (x *Rules) meditate(s *Scene, a PlannedAction, r *dice.Roller) *ActionResult {
	p := s.Player
	if len(s.hostiles()) > 0 {
		return refuse("Com inimigos por perto, sua mente não encontra quietude.")
	}
	factor := s.Moon
	if a.Intent == Cultivate && x.oracle != nil {
		factor *= x.oracle.QiDensity(p.Location)
	}
	gained := combat.Meditate(p, factor)
	res := &ActionResult{}
	res.detail(fmt.Sprintf("yuan qi +%.2f", gained))
	if a.Intent == Cultivate {
		xp := float64(max(p.Tier, 1) * 2)
		p.XP += xp
		res.detail(fmt.Sprintf("xp +%.0f", xp))
		res.Message = "Você circula o qi pelos meridianos, refinando sua base."
		x.breakthrough(s, res, r)
	} else {
		res.Message = "Você medita em silêncio, e o qi do mundo flui para você."
	}
	s.remember(models.PlayerRef(p.ID), memory.Event{
		Type:        memory.Cultivation,
		Description: fmt.Sprintf("%s %s em %s", p.Name, verb(a.Intent), p.Location),
		ActorName:   p.Name,
		Actor:       models.PlayerRef(p.ID),
	})
	return res
}

func verb(i Intent) string {
	switch i {
	case Cultivate:
		return "cultivou"
	case Train:
		return "treinou"
	}
	return "meditou"
}

func (x *Rules) train(s *Scene, a PlannedAction) *ActionResult {
	p := s.Player
	if len(s.hostiles()) > 0 {
		return refuse("Não há tempo para treinar com inimigos à sua frente.")
	}
	p.XP++
	res := &ActionResult{Message: "Você repete os movimentos até que o corpo os aprenda sozinho."}
	res.detail("xp +1")
	s.remember(models.PlayerRef(p.ID), memory.Event{
		Type:        memory.Cultivation,
		Description: fmt.Sprintf("%s treinou em %s", p.Name, p.Location),
		ActorName:   p.Name,
		Actor:       models.PlayerRef(p.ID),
	})
	return res
}

// heldItem resolves an item name against the player's inventory.
func (x *Rules) heldItem(p *models.Player, name string) string {
	if name == "" {
		return ""
	}
	if p.ItemQuantity(name) > 0 {
		return name
	}
	if it := x.cat.ItemByName(name); it != nil && p.ItemQuantity(it.ID) > 0 {
		return it.ID
	}
	for _, inv := range p.Inventory {
		if models.MatchName(x.itemName(inv.ItemID), name) || models.MatchName(inv.ItemID, name) {
			return inv.ItemID
		}
	}
	return ""
}

func (x *Rules) useItem(s *Scene, a PlannedAction) *ActionResult {
	p := s.Player
	id := x.heldItem(p, a.ItemName)
	if id == "" {
		return refuse(fmt.Sprintf("Você não tem %s.", firstNonEmpty(a.ItemName, "esse item")))
	}
	it := x.cat.Item(id)
	if it == nil || len(it.Effects) == 0 || (it.Category != "pills" && it.Category != "food") {
		return refuse(fmt.Sprintf("%s não pode ser consumido.", x.itemName(id)))
	}
	p.RemoveItem(id, 1)
	res := &ActionResult{Message: fmt.Sprintf("Você consome %s.", it.Name)}
	keys := make([]string, 0, len(it.Effects))
	for k := range it.Effects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := it.Effects[k]
		switch k {
		case "heal":
			p.Heal(v)
		case "qi":
			p.YuanQi += v
		case "quintessence":
			p.Quintessence += v
		case "shadow_chi":
			p.ShadowChi += v
		case "corruption":
			p.Corruption -= v
		case "xp":
			p.XP += v
		default:
			continue
		}
		res.detail(fmt.Sprintf("%s %+.0f", k, v))
	}
	p.Clamp()
	return res
}

func (x *Rules) equip(s *Scene, a PlannedAction) *ActionResult {
	id := x.heldItem(s.Player, a.ItemName)
	if id == "" {
		return refuse(fmt.Sprintf("Você não tem %s.", firstNonEmpty(a.ItemName, "esse item")))
	}
	it := x.cat.Item(id)
	if it == nil || (it.Category != "weapons" && it.Category != "armor") {
		return refuse(fmt.Sprintf("%s não é algo que se empunhe ou vista.", x.itemName(id)))
	}
	return &ActionResult{Message: fmt.Sprintf("Você prepara %s.", it.Name)}
}

func (x *Rules) pickUp(s *Scene, a PlannedAction) *ActionResult {
	p := s.Player
	if s.Place == nil || len(s.Place.Resources) == 0 {
		return refuse("Não há nada aqui para pegar.")
	}
	id := ""
	for rid, n := range s.Place.Resources {
		if n <= 0 {
			continue
		}
		if a.ItemName == "" || rid == a.ItemName || models.MatchName(x.itemName(rid), a.ItemName) || models.MatchName(rid, a.ItemName) {
			if id == "" || rid < id {
				id = rid
			}
		}
	}
	if id == "" {
		return refuse(fmt.Sprintf("Não há %s aqui.", firstNonEmpty(a.ItemName, "nada disso")))
	}
	s.Place.Resources[id]--
	if s.Place.Resources[id] <= 0 {
		delete(s.Place.Resources, id)
	}
	s.placeDirty = true
	p.AddItem(id, 1)
	res := &ActionResult{
		Message:     fmt.Sprintf("Você recolhe %s.", x.itemName(id)),
		ItemsGained: []models.InventoryItem{{ItemID: id, Quantity: 1}},
	}
	x.progressItem(s, id, 1, res)
	return res
}

func (x *Rules) drop(s *Scene, a PlannedAction) *ActionResult {
	p := s.Player
	id := x.heldItem(p, a.ItemName)
	if id == "" {
		return refuse(fmt.Sprintf("Você não tem %s.", firstNonEmpty(a.ItemName, "esse item")))
	}
	qty := p.ItemQuantity(id)
	p.RemoveItem(id, qty)
	if s.Place != nil {
		if s.Place.Resources == nil {
			s.Place.Resources = map[string]int{}
		}
		s.Place.Resources[id] += qty
		s.placeDirty = true
	}
	return &ActionResult{Message: fmt.Sprintf("Você deixa %s no chão.", x.itemName(id))}
}
