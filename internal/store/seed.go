package store

import (
	"context"

	"github.com/daicherr/orbis/internal/models"
)

// WorldSeed is the initial content of an empty world.
type WorldSeed struct {
	Locations []models.Location
	Factions  []models.Faction
	Economy   []models.EconomyItem
	Ecology   []models.RegionEcology
}

// Seed writes the seed into empty tables and leaves populated ones alone.
func (s *Store) Seed(ctx context.Context, seed WorldSeed) error {
	return s.WithTx(ctx, func(q *Queries) error {
		var n int
		if err := getContext(ctx, q, &n, `SELECT COUNT(*) FROM locations`); err != nil {
			return err
		}
		if n == 0 {
			for i := range seed.Locations {
				if err := q.SaveLocation(ctx, &seed.Locations[i]); err != nil {
					return err
				}
			}
		}
		if err := getContext(ctx, q, &n, `SELECT COUNT(*) FROM factions`); err != nil {
			return err
		}
		if n == 0 {
			for i := range seed.Factions {
				if err := q.SaveFaction(ctx, &seed.Factions[i]); err != nil {
					return err
				}
			}
		}
		if err := getContext(ctx, q, &n, `SELECT COUNT(*) FROM economy`); err != nil {
			return err
		}
		if n == 0 {
			for i := range seed.Economy {
				if err := q.SaveEconomyItem(ctx, &seed.Economy[i]); err != nil {
					return err
				}
			}
		}
		if err := getContext(ctx, q, &n, `SELECT COUNT(*) FROM ecology`); err != nil {
			return err
		}
		if n == 0 {
			for i := range seed.Ecology {
				if err := q.SaveEcology(ctx, &seed.Ecology[i]); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
