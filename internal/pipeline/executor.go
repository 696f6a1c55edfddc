package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/daicherr/orbis/internal/catalog"
	"github.com/daicherr/orbis/internal/combat"
	"github.com/daicherr/orbis/internal/config"
	"github.com/daicherr/orbis/internal/dice"
	"github.com/daicherr/orbis/internal/generators"
	"github.com/daicherr/orbis/internal/memory"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/simulation"
	"github.com/daicherr/orbis/internal/store"
	"github.com/daicherr/orbis/internal/worldstate"
)

const (
	// guardFactor multiplies the player's defense while defending.
	guardFactor = 1.5
	// provoked is the disposition lost by an NPC the player attacks.
	provoked = 30
)

// Executor carries out a planned action on a scene.
type Executor interface {
	Execute(ctx context.Context, s *Scene, a PlannedAction, r *dice.Roller) (*ActionResult, error)
}

// Rules is the game's Executor.
type Rules struct {
	st     *store.Store
	cat    *catalog.Catalog
	gen    *generators.Generator
	oracle *worldstate.Oracle
	tuning config.Tuning
	logger *slog.Logger
}

func NewRules(st *store.Store, cat *catalog.Catalog, gen *generators.Generator, oracle *worldstate.Oracle, tuning config.Tuning, logger *slog.Logger) *Rules {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rules{st: st, cat: cat, gen: gen, oracle: oracle, tuning: tuning, logger: logger}
}

// Execute dispatches on the intent, then runs the end of turn on whatever
// the action left behind. A refusal comes back with nothing else done.
func (x *Rules) Execute(ctx context.Context, s *Scene, a PlannedAction, r *dice.Roller) (*ActionResult, error) {
	var (
		res *ActionResult
		err error
	)
	switch a.Intent {
	case Attack, UseSkill:
		res, err = x.attack(ctx, s, a, r)
	case Defend:
		res = x.defend(s, r)
	case Flee:
		res = x.flee(s, r)
	case Talk, Persuade, Intimidate:
		res, err = x.talk(ctx, s, a, r)
	case Trade:
		res, err = x.trade(ctx, s, a)
	case Move:
		res, err = x.move(ctx, s, a)
	case Explore, Search:
		res = x.search(s, a, r)
	case Observe:
		res = x.observe(s)
	case Rest, Wait:
		res = x.rest(s, a)
	case Meditate, Cultivate:
		res = x.meditate(s, a, r)
	case Train:
		res = x.train(s, a)
	case UseItem:
		res = x.useItem(s, a)
	case Equip:
		res = x.equip(s, a)
	case PickUp:
		res = x.pickUp(s, a)
	case Drop:
		res = x.drop(s, a)
	default:
		res = refuse("Você hesita, sem saber bem o que fazer.")
	}
	if err != nil {
		return nil, err
	}
	if res.Refusal != "" {
		return res, nil
	}
	res.Success = true
	x.epiphany(ctx, s, a, res)
	x.endOfTurn(s, res)
	return res, nil
}

// endOfTurn regenerates the body, weighs the heart demon and fails quests
// past their deadline.
func (x *Rules) endOfTurn(s *Scene, res *ActionResult) {
	p := s.Player
	if p.IsAlive() {
		combat.Regenerate(p, x.cat.ConstitutionOrMortal(p.ConstitutionType))
		hd := combat.EvaluateHeartDemon(p, x.tuning.HeartDemon)
		if hd.Hallucinating || hd.Berserk || hd.Deviation {
			res.HeartDemon = &hd
		}
		if hd.Deviation {
			res.PlayerDied = true
			res.detail("desvio de qi: o coração demoníaco consumiu o cultivador")
		}
	}
	if !p.IsAlive() {
		res.PlayerDied = true
	}
	p.Clamp()
	x.expireQuests(s, res)
}

func (x *Rules) skill(p *models.Player, name string) *catalog.Skill {
	if name == "" || name == combat.BasicAttack.ID || models.MatchName(combat.BasicAttack.Name, name) {
		return &combat.BasicAttack
	}
	sk := x.cat.SkillByName(name)
	if sk == nil || !p.HasSkill(sk.ID) {
		return nil
	}
	return sk
}

func (x *Rules) attack(ctx context.Context, s *Scene, a PlannedAction, r *dice.Roller) (*ActionResult, error) {
	p := s.Player
	target := s.target(a.TargetName, true)
	if target == nil {
		if a.TargetName != "" {
			return refuse(fmt.Sprintf("Não há ninguém chamado %s por aqui.", a.TargetName)), nil
		}
		return refuse("Não há ninguém aqui para atacar."), nil
	}
	skill := x.skill(p, a.SkillName)
	if skill == nil {
		return refuse(fmt.Sprintf("Você não conhece nenhuma técnica chamada %s.", a.SkillName)), nil
	}

	body := x.cat.ConstitutionOrMortal(p.ConstitutionType)
	shadow := p.ShadowChi
	if err := combat.Pay(p, skill, body); err != nil {
		if errors.Is(err, combat.ErrInsufficientEnergy) {
			return refuse(fmt.Sprintf("Sua energia não basta para executar %s.", skill.Name)), nil
		}
		return nil, err
	}

	wasHostile := target.IsHostile()
	hit := combat.Resolve(combat.Attack{
		Attacker:     p,
		Defender:     target,
		Skill:        skill,
		AttackerBody: body,
		DefenderBody: x.cat.ConstitutionOrMortal(target.Constitution),
		ShadowChi:    shadow,
	})
	s.touch(target)
	res := &ActionResult{Attack: &hit, DamageDealt: hit.Dealt}
	res.detail(fmt.Sprintf("%s usou %s contra %s: %.2f de dano", p.Name, skill.Name, target.Name, hit.Dealt))
	if s.Session.InCombat {
		s.Session.NextRound()
	} else {
		s.Session.StartCombat([]string{p.Name, target.Name})
	}

	switch {
	case hit.Immune:
		res.Message = fmt.Sprintf("O golpe atravessa %s como se fosse névoa.", target.Name)
	case hit.Defeated:
		res.Message = fmt.Sprintf("%s tomba diante de você.", target.Name)
	case hit.Silent && !hit.Detected:
		res.Message = fmt.Sprintf("Sua arte silenciosa fere %s sem que perceba de onde veio.", target.Name)
	default:
		res.Message = fmt.Sprintf("Você acerta %s com %s.", target.Name, skill.Name)
	}

	s.remember(models.PlayerRef(p.ID), memory.Event{
		Type:        memory.CombatAttack,
		Description: fmt.Sprintf("%s atacou %s com %s", p.Name, target.Name, skill.Name),
		ActorName:   p.Name,
		Actor:       models.PlayerRef(p.ID),
		TargetName:  target.Name,
		Target:      models.NPCRef(target.ID),
		DamageDealt: hit.Dealt,
	})

	if hit.Defeated {
		x.kill(ctx, s, target, res, r)
		return res, nil
	}

	if !wasHostile {
		target.EmotionalState = models.Hostile
		target.Disposition[p.ID] -= provoked
	}
	for _, w := range s.witnesses() {
		s.remember(models.NPCRef(w.ID), memory.Event{
			Type:           memory.CombatAttack,
			Description:    fmt.Sprintf("%s atacou %s", p.Name, target.Name),
			ActorName:      p.Name,
			Actor:          models.PlayerRef(p.ID),
			TargetName:     target.Name,
			Target:         models.NPCRef(target.ID),
			DamageReceived: ifTarget(w, target, hit.Dealt),
		})
	}

	if hit.Silent && !hit.Detected {
		return res, nil
	}
	if target.ShouldFlee(target.HPPercent()) {
		if dest := x.runAway(s, target, r); dest != "" {
			res.Reaction = "fled"
			res.Message += fmt.Sprintf(" %s recua e foge em direção a %s.", target.Name, dest)
			res.detail(fmt.Sprintf("%s fugiu para %s", target.Name, dest))
			return res, nil
		}
	}
	counter := x.strike(s, target, 1)
	res.CounterAttack = &counter
	res.DamageReceived += counter.Dealt
	res.Message += fmt.Sprintf(" %s revida.", target.Name)
	if !p.IsAlive() {
		res.PlayerDied = true
		res.Message += " Sua visão escurece."
	}
	return res, nil
}

func ifTarget(w, target *models.NPC, dmg float64) float64 {
	if w.ID == target.ID {
		return dmg
	}
	return 0
}

// strike is an NPC's basic attack on the player. guard scales the
// player's defense on top of any heart demon penalty.
func (x *Rules) strike(s *Scene, n *models.NPC, guard float64) combat.Hit {
	p := s.Player
	hit := combat.Resolve(combat.Attack{
		Attacker:      n,
		Defender:      p,
		Skill:         &combat.BasicAttack,
		Bonus:         n.Attack,
		AttackerBody:  x.cat.ConstitutionOrMortal(n.Constitution),
		DefenderBody:  x.cat.ConstitutionOrMortal(p.ConstitutionType),
		DefenseFactor: combat.DefenseFactor(p) * guard,
	})
	s.touch(n)
	s.remember(models.PlayerRef(p.ID), memory.Event{
		Type:           memory.CombatAttack,
		Description:    fmt.Sprintf("%s atacou %s", n.Name, p.Name),
		ActorName:      n.Name,
		Actor:          models.NPCRef(n.ID),
		TargetName:     p.Name,
		Target:         models.PlayerRef(p.ID),
		DamageReceived: hit.Dealt,
	})
	s.remember(models.NPCRef(n.ID), memory.Event{
		Type:        memory.CombatAttack,
		Description: fmt.Sprintf("%s atacou %s", n.Name, p.Name),
		ActorName:   n.Name,
		Actor:       models.NPCRef(n.ID),
		TargetName:  p.Name,
		Target:      models.PlayerRef(p.ID),
		DamageDealt: hit.Dealt,
	})
	return hit
}

// runAway moves a broken NPC home or down a random road. It returns ""
// when there is nowhere to go.
func (x *Rules) runAway(s *Scene, n *models.NPC, r *dice.Roller) string {
	dest := ""
	if n.HomeLocation != "" && n.HomeLocation != n.Location {
		dest = n.HomeLocation
	} else if roads := s.exitNames(); len(roads) > 0 {
		dest = dice.Pick(r, roads)
	}
	if dest == "" {
		return ""
	}
	n.Location = dest
	n.EmotionalState = models.Scared
	s.touch(n)
	s.Session.RemoveEntity(n.ID)
	return dest
}

// kill settles a defeated NPC: loot, absorption, breakthroughs, the kill
// record, the death event and quest progress.
func (x *Rules) kill(ctx context.Context, s *Scene, victim *models.NPC, res *ActionResult, r *dice.Roller) {
	p := s.Player
	body := x.cat.ConstitutionOrMortal(p.ConstitutionType)
	res.Killed = victim.Name
	victim.Alive = false
	s.touch(victim)

	var drops []models.InventoryItem
	if victim.Species == "" || victim.Species == "human" {
		drops = append(drops, victim.Inventory...)
		victim.Inventory = []models.InventoryItem{}
		if gold := r.Between(5, 20*max(victim.Rank, 1)); gold > 0 {
			p.Gold += gold
			res.detail(fmt.Sprintf("%d de ouro saqueado", gold))
		}
	} else {
		id := victim.MonsterID
		if id == "" {
			id = catalog.MonsterID(victim.Name)
		}
		drops = combat.RollLoot(victim.Name, x.cat.Loot(id), r)
		s.hunts = append(s.hunts, hunt{location: victim.Location, species: victim.Name})
	}
	combat.Collect(p, drops)
	res.ItemsGained = append(res.ItemsGained, drops...)

	abs := combat.Absorb(p, victim.Rank, body)
	res.Absorbed = &abs
	res.detail(fmt.Sprintf("absorveu %.0f de xp, corrupção +%.2f", abs.XP, abs.Corruption))
	x.breakthrough(s, res, r)

	p.KillHistory = append(p.KillHistory, models.Kill{
		VictimID:   victim.ID,
		VictimName: victim.Name,
		VictimRank: victim.Rank,
		Location:   victim.Location,
		Turn:       s.Turn,
	})
	s.Events = append(s.Events, simulation.DeathEvent(victim, p.ID, s.Turn))
	s.Session.RemoveEntity(victim.ID)

	s.remember(models.PlayerRef(p.ID), memory.Event{
		Type:        memory.CombatKill,
		Description: fmt.Sprintf("%s matou %s", p.Name, victim.Name),
		ActorName:   p.Name,
		Actor:       models.PlayerRef(p.ID),
		TargetName:  victim.Name,
		Target:      models.NPCRef(victim.ID),
		Outcome:     "victory",
		DamageDealt: res.DamageDealt,
	})
	for _, w := range s.witnesses(victim) {
		s.remember(models.NPCRef(w.ID), memory.Event{
			Type:        memory.CombatKill,
			Description: fmt.Sprintf("%s matou %s diante de seus olhos", p.Name, victim.Name),
			ActorName:   p.Name,
			Actor:       models.PlayerRef(p.ID),
			TargetName:  victim.Name,
			Target:      models.NPCRef(victim.ID),
		})
	}
	x.progressKill(s, victim, res)
	if len(s.hostiles()) == 0 {
		s.Session.EndCombat()
	}
}

// breakthrough climbs tiers while xp allows and calls down a tribulation
// on the last one.
func (x *Rules) breakthrough(s *Scene, res *ActionResult, r *dice.Roller) {
	p := s.Player
	bts := combat.TierUp(p, x.cat.Tier)
	if len(bts) == 0 {
		return
	}
	res.Breakthrough = append(res.Breakthrough, bts...)
	last := bts[len(bts)-1]
	res.detail(fmt.Sprintf("avanço para o tier %d (%s)", last.To, last.Name))
	s.remember(models.PlayerRef(p.ID), memory.Event{
		Type:        memory.Breakthrough,
		Description: fmt.Sprintf("%s rompeu para o reino %s", p.Name, last.Name),
		ActorName:   p.Name,
		Actor:       models.PlayerRef(p.ID),
	})
	if t := combat.MaybeTribulation(p, r); t != nil {
		res.Tribulation = t
		res.detail(t.Summary())
		if !t.Survived {
			res.PlayerDied = true
		}
	}
}

func (x *Rules) defend(s *Scene, r *dice.Roller) *ActionResult {
	res := &ActionResult{Message: "Você firma os pés e ergue a guarda."}
	for _, n := range s.hostiles() {
		hit := x.strike(s, n, guardFactor)
		res.CounterAttack = &hit
		res.DamageReceived += hit.Dealt
		res.detail(fmt.Sprintf("%s atacou a guarda: %.2f de dano", n.Name, hit.Dealt))
	}
	if res.CounterAttack != nil {
		res.Message += " Os golpes inimigos se chocam contra sua defesa."
		s.Session.NextRound()
	}
	if !s.Player.IsAlive() {
		res.PlayerDied = true
	}
	s.remember(models.PlayerRef(s.Player.ID), memory.Event{
		Type:           memory.CombatDefend,
		Description:    s.Player.Name + " se defendeu",
		ActorName:      s.Player.Name,
		Actor:          models.PlayerRef(s.Player.ID),
		DamageReceived: res.DamageReceived,
	})
	return res
}

func (x *Rules) flee(s *Scene, r *dice.Roller) *ActionResult {
	p := s.Player
	hostiles := s.hostiles()
	if len(hostiles) == 0 {
		return refuse("Não há nada do que fugir aqui.")
	}
	fastest := hostiles[0]
	for _, n := range hostiles[1:] {
		if n.Speed > fastest.Speed {
			fastest = n
		}
	}
	res := &ActionResult{}
	ev := memory.Event{
		Type:       memory.CombatFlee,
		ActorName:  p.Name,
		Actor:      models.PlayerRef(p.ID),
		TargetName: fastest.Name,
		Target:     models.NPCRef(fastest.ID),
	}
	if combat.Flee(r, p.Speed, fastest.Speed) {
		res.Fled = true
		res.Message = "Você rompe o cerco e escapa."
		s.Session.EndCombat()
		if roads := s.exitNames(); len(roads) > 0 {
			dest := dice.Pick(r, roads)
			p.Location = dest
			res.Moved = true
			res.NewLocation = dest
			res.Message = fmt.Sprintf("Você rompe o cerco e corre até %s.", dest)
		}
		ev.Description = p.Name + " fugiu de " + fastest.Name
		ev.Outcome = "escaped"
	} else {
		hit := x.strike(s, fastest, 1)
		res.CounterAttack = &hit
		res.DamageReceived = hit.Dealt
		res.Message = fmt.Sprintf("Você tenta fugir, mas %s é mais rápido.", fastest.Name)
		ev.Description = p.Name + " não conseguiu fugir de " + fastest.Name
		ev.Outcome = "caught"
		ev.DamageReceived = hit.Dealt
		if !p.IsAlive() {
			res.PlayerDied = true
		}
	}
	s.remember(models.PlayerRef(p.ID), ev)
	return res
}

// epiphany counts combat and training repetitions and, on the fifth use of
// the same action, teaches a new skill.
func (x *Rules) epiphany(ctx context.Context, s *Scene, a PlannedAction, res *ActionResult) {
	var (
		key  string
		base *catalog.Skill
	)
	switch a.Intent {
	case Attack, UseSkill:
		base = x.skill(s.Player, a.SkillName)
		if base == nil {
			return
		}
		key = "skill:" + base.ID
	case Train:
		key = "train:" + catalog.Slug(firstNonEmpty(a.ItemName, a.TargetName, "corpo"))
	default:
		return
	}
	if !generators.Practice(s.Player, key) || x.gen == nil {
		return
	}
	skill := x.gen.Epiphany(ctx, s.Player, key, a.RawInput, base)
	id, err := x.gen.LearnEpiphany(s.Player, skill)
	if err != nil {
		x.logger.Warn("epiphany not learned", "player_id", s.Player.ID, "skill", skill.Name, "err", err)
		return
	}
	res.Epiphany = id
	res.detail("epifania: " + skill.Name)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
