package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/daicherr/orbis/internal/archive"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/session"
	"github.com/daicherr/orbis/internal/simulation"
	"github.com/daicherr/orbis/internal/store"
	"github.com/daicherr/orbis/internal/telemetry"
)

// commit writes the turn in one transaction: the scene when it changed
// anything, the log entry, the session and last the witnesses' memories.
func (pl *Pipeline) commit(ctx context.Context, ts *turnState, out *outcome) error {
	ctx, span := tracer.Start(ctx, "pipeline.commit")
	defer span.End()

	sc, err := pl.nextSession(ctx, ts, out)
	if err != nil {
		return err
	}
	entry := logEntry(ts, out)
	err = pl.st.WithTx(ctx, func(q *store.Queries) error {
		if out.mutates() {
			if err := persistScene(ctx, q, ts, out.scene); err != nil {
				return err
			}
		}
		if err := q.AppendLog(ctx, entry); err != nil {
			return fmt.Errorf("append log: %w", err)
		}
		if sc != nil {
			if err := pl.sessions.Save(ctx, q, sc); err != nil {
				return err
			}
		}
		if out.mutates() {
			pl.ingest(ctx, q, out.scene)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("commit turn %d of player %d: %w", ts.turn, ts.player.ID, err)
	}
	out.session = sc
	return nil
}

func persistScene(ctx context.Context, q *store.Queries, ts *turnState, s *Scene) error {
	if err := q.SavePlayer(ctx, s.Player); err != nil {
		return fmt.Errorf("save player: %w", err)
	}
	for _, n := range s.Touched() {
		if err := q.SaveNPC(ctx, n); err != nil {
			return fmt.Errorf("save npc %d: %w", n.ID, err)
		}
	}
	if s.placeDirty && s.Place != nil && !ts.dynamic {
		if err := q.SaveLocation(ctx, s.Place); err != nil {
			return fmt.Errorf("save location %s: %w", s.Place.Name, err)
		}
	}
	for _, e := range s.Events {
		if err := q.CreateEvent(ctx, e); err != nil {
			return fmt.Errorf("create event: %w", err)
		}
	}
	for _, it := range s.Economy {
		if err := q.SaveEconomyItem(ctx, it); err != nil {
			return fmt.Errorf("save economy item %s: %w", it.Name, err)
		}
	}
	for _, qu := range s.Quests {
		if err := q.SaveQuest(ctx, qu); err != nil {
			return fmt.Errorf("save quest %d: %w", qu.ID, err)
		}
	}
	for _, qu := range s.NewQuests {
		if err := q.CreateQuest(ctx, qu); err != nil {
			return fmt.Errorf("create quest: %w", err)
		}
	}
	for _, h := range s.hunts {
		if err := simulation.RecordHunt(ctx, q, h.location, h.species, 1); err != nil {
			return fmt.Errorf("record hunt: %w", err)
		}
	}
	return nil
}

// ingest stores what every witness saw. Failures are logged and skipped.
func (pl *Pipeline) ingest(ctx context.Context, q *store.Queries, s *Scene) {
	ctx, span := tracer.Start(ctx, "pipeline.ingest")
	defer span.End()

	mem := pl.mem.WithRepository(q)
	for _, w := range s.memories {
		if _, err := mem.Remember(ctx, w.owner, w.event); err != nil {
			pl.logger.Warn("memory ingest failed", "owner", string(w.owner), "event", w.event.Type, "err", err)
		}
	}
}

// nextSession is the session as it stands after the turn, or nil when the
// turn failed and the session stays as it was.
func (pl *Pipeline) nextSession(ctx context.Context, ts *turnState, out *outcome) (*session.Context, error) {
	if out.failed {
		return nil, nil
	}
	var (
		sc      *session.Context
		present = ts.npcs
		loc     = ts.player.Location
	)
	if out.mutates() {
		sc = out.scene.Session
		present = out.scene.present()
		loc = out.scene.Player.Location
	} else {
		c, err := ts.session.Clone()
		if err != nil {
			return nil, fmt.Errorf("copy session: %w", err)
		}
		sc = c
	}

	snap := session.SnapshotOf(pl.clock)
	sc.Time = &snap
	sc.Location = loc
	entities := make([]session.Entity, 0, len(present))
	for _, n := range present {
		entities = append(entities, session.EntityFromNPC(n))
	}
	sc.SetPresent(entities)

	if err := pl.narrator.Fold(ctx, sc); err != nil {
		pl.logger.Warn("history fold failed", "player_id", ts.player.ID, "err", err)
	}
	sc.AddTurn(turnSummary(ts, out, sc.Beat, loc, present))
	return sc, nil
}

func turnSummary(ts *turnState, out *outcome, beat session.Beat, loc string, present []*models.NPC) session.TurnSummary {
	res := out.result
	t := session.TurnSummary{
		Turn:      ts.turn,
		Input:     out.input,
		Action:    strings.TrimSpace(string(out.action.Intent) + " " + out.action.TargetName),
		Result:    res.Message,
		Narration: out.narration,
		Location:  loc,
		NPCs:      npcNames(present),
		Beat:      beat,
		At:        ts.at,
	}
	if out.mutates() {
		t.Combat = res.Attack != nil || res.CounterAttack != nil
		t.Killed = res.Killed
		t.Moved = res.Moved
		t.NewLocation = res.NewLocation
		if len(res.ItemsGained) > 0 {
			t.Item = res.ItemsGained[0].ItemID
		}
	}
	return t
}

func logEntry(ts *turnState, out *outcome) *models.GameLog {
	l := &models.GameLog{
		PlayerID:    ts.player.ID,
		Turn:        ts.turn,
		Input:       out.input,
		Action:      toMap(out.action),
		Result:      toMap(out.result),
		Narration:   out.narration,
		Location:    ts.player.Location,
		NPCsPresent: npcNames(ts.npcs),
		GameTime:    ts.gameTime,
		Success:     out.succeeded(),
	}
	if out.mutates() {
		l.Location = out.scene.Player.Location
		l.NPCsPresent = npcNames(out.scene.present())
	}
	l.Result["attempts"] = out.attempts
	if out.failed {
		l.Result["failed"] = true
		l.Result["error"] = out.lastError
	}
	return l
}

// settle publishes a committed turn: the session cache, the oracle, the
// world tick when one is due and the archive.
func (pl *Pipeline) settle(ctx context.Context, ts *turnState, out *outcome) {
	if out.session != nil {
		pl.sessions.Put(out.session)
	}
	if out.mutates() && pl.oracle != nil {
		pl.publish(ctx, ts, out.scene)
	}
	if pl.sim != nil && pl.sim.Due(ts.worldTurn) {
		rep, err := pl.sim.Tick(ctx, ts.worldTurn)
		switch {
		case err != nil:
			pl.logger.Warn("world tick failed", "turn", ts.worldTurn, "err", err)
		case !rep.Replayed:
			out.tick = &rep
		}
	}
	if pl.archive != nil {
		rec := archive.Turn{
			PlayerID:  ts.player.ID,
			Turn:      ts.turn,
			Input:     out.input,
			Intent:    string(out.action.Intent),
			Success:   out.succeeded(),
			Attempts:  out.attempts,
			Location:  ts.player.Location,
			GameTime:  ts.gameTime,
			Narration: out.narration,
			Result:    toMap(out.result),
			TraceID:   telemetry.TraceID(ctx),
			At:        ts.at,
		}
		if out.mutates() {
			rec.Location = out.scene.Player.Location
		}
		if err := pl.archive.Append(rec); err != nil {
			pl.logger.Warn("archive append failed", "player_id", ts.player.ID, "err", err)
		}
	}
}

func (pl *Pipeline) publish(ctx context.Context, ts *turnState, s *Scene) {
	if from, to := ts.player.Location, s.Player.Location; from != to {
		if err := pl.oracle.UpdatePlayerLocation(ctx, s.Player.ID, from, to); err != nil {
			pl.logger.Warn("oracle player location", "player_id", s.Player.ID, "err", err)
		}
	}
	before := make(map[int64]string, len(ts.npcs))
	for _, n := range ts.npcs {
		before[n.ID] = n.Location
	}
	for _, n := range s.Touched() {
		if from := before[n.ID]; from != n.Location {
			if err := pl.oracle.UpdateNPCLocation(ctx, n.ID, from, n.Location); err != nil {
				pl.logger.Warn("oracle npc location", "npc_id", n.ID, "err", err)
			}
		}
	}
	if len(s.Economy) > 0 {
		if err := pl.oracle.SyncPrices(ctx, s.Economy); err != nil {
			pl.logger.Warn("oracle price sync", "err", err)
		}
	}
	for _, e := range s.Events {
		if err := pl.oracle.AddLocationEvent(ctx, e.Location, simulation.OracleEvent(e)); err != nil {
			pl.logger.Warn("oracle event", "type", e.Type, "err", err)
		}
	}
}
