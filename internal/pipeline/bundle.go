package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/session"
	"github.com/daicherr/orbis/internal/store"
)

// Export gathers everything that belongs to one player into a portable
// bundle: the aggregate, owned places, aliases, quests, the full turn log,
// the session context and the clock.
func (pl *Pipeline) Export(ctx context.Context, playerID int64) (*models.Bundle, error) {
	unlock := pl.st.Locks().Lock(playerKey(playerID))
	defer unlock()

	p, err := pl.st.GetPlayer(ctx, playerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrPlayerNotFound, playerID)
	}
	if err != nil {
		return nil, err
	}
	b := &models.Bundle{Player: *p}

	aliases, err := pl.st.Aliases(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	b.Aliases = aliases

	owned, err := pl.st.DynamicLocationsByOwner(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	for _, d := range owned {
		b.Dynamic = append(b.Dynamic, *d)
	}

	quests, err := pl.st.PlayerQuests(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	for _, q := range quests {
		b.Quests = append(b.Quests, *q)
	}

	logs, err := pl.st.RecentLogs(ctx, p.ID, -1)
	if err != nil {
		return nil, err
	}
	for _, l := range logs {
		b.History = append(b.History, *l)
	}

	data, err := pl.st.LoadSession(ctx, p.ID)
	switch {
	case err == nil:
		b.Session = string(data)
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	clk, err := json.Marshal(pl.clock.Snapshot())
	if err != nil {
		return nil, err
	}
	b.Clock = string(clk)
	return b, nil
}

// Import recreates a bundled player under a fresh id. Owned places whose
// parent this world does not know are dropped. The bundled clock is left
// alone: time belongs to the world, not to the player.
func (pl *Pipeline) Import(ctx context.Context, b *models.Bundle) (*models.Player, error) {
	if b == nil || b.Player.Name == "" {
		return nil, fmt.Errorf("%w: empty bundle", ErrInvalidCharacter)
	}
	p := b.Player
	p.ID = 0

	history := append([]models.GameLog(nil), b.History...)
	sort.Slice(history, func(i, j int) bool { return history[i].Turn < history[j].Turn })

	err := pl.st.WithTx(ctx, func(q *store.Queries) error {
		if _, err := q.GetPlayerByName(ctx, p.Name); err == nil {
			return fmt.Errorf("%w: player %q already exists", store.ErrConflict, p.Name)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := q.CreatePlayer(ctx, &p); err != nil {
			return err
		}
		for i := range history {
			l := history[i]
			l.ID, l.PlayerID, l.Turn = 0, p.ID, i
			if err := q.AppendLog(ctx, &l); err != nil {
				return fmt.Errorf("import turn %d: %w", i, err)
			}
		}
		for _, qu := range b.Quests {
			qu.ID, qu.PlayerID = 0, p.ID
			if err := q.CreateQuest(ctx, &qu); err != nil {
				return err
			}
		}
		for _, d := range b.Dynamic {
			d.ID, d.OwnerID = 0, p.ID
			err := q.CreateDynamicLocation(ctx, &d)
			if errors.Is(err, store.ErrNotFound) {
				pl.logger.Warn("dropping imported place", "name", d.Name, "parent", d.Parent)
				continue
			}
			if err != nil {
				return err
			}
		}
		for _, a := range b.Aliases {
			a.PlayerID = p.ID
			if err := q.SetAlias(ctx, a); err != nil {
				return err
			}
		}
		if b.Session == "" {
			return nil
		}
		sc, err := session.Unmarshal([]byte(b.Session))
		if err != nil {
			return fmt.Errorf("bundled session: %w", err)
		}
		sc.PlayerID = p.ID
		return pl.sessions.Save(ctx, q, sc)
	})
	if err != nil {
		return nil, err
	}
	pl.sessions.Forget(p.ID)
	pl.logger.Info("player imported", "player_id", p.ID, "name", p.Name, "turns", len(history))
	return &p, nil
}
