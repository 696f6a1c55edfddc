package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/daicherr/orbis/internal/catalog"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/simulation"
	"github.com/daicherr/orbis/internal/store"
)

var (
	ErrNotEnoughGold   = errors.New("not enough gold")
	ErrNotInInventory  = errors.New("item not in inventory")
	ErrUnknownResource = errors.New("unknown resource")
)

// sellShare is the fraction of the market price a merchant pays.
const sellShare = 0.7

// Deal is one settled purchase or sale.
type Deal struct {
	Resource  string  `json:"resource"`
	ItemID    string  `json:"item_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Total     int     `json:"total"`
	Sale      bool    `json:"sale"`
	Gold      int     `json:"gold_after"`
}

// resource finds the market row for name, which may be the resource name,
// an item id or an item name.
func (x *Rules) resource(ctx context.Context, q *store.Queries, name string) (*models.EconomyItem, string, error) {
	if name == "" {
		return nil, "", ErrUnknownResource
	}
	it, err := q.GetEconomyItem(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		if item := x.cat.ItemByName(name); item != nil {
			it, err = q.GetEconomyItem(ctx, item.Name)
		}
	}
	if errors.Is(err, store.ErrNotFound) {
		it, err = mentioned(ctx, q, name)
	}
	if err != nil {
		return nil, "", err
	}
	id := catalog.Slug(it.Name)
	if item := x.cat.ItemByName(it.Name); item != nil {
		id = item.ID
	}
	return it, id, nil
}

// mentioned finds the market row whose name appears in a free-form phrase
// such as "arroz do mercador".
func mentioned(ctx context.Context, q *store.Queries, phrase string) (*models.EconomyItem, error) {
	items, err := q.ListEconomy(ctx)
	if err != nil {
		return nil, err
	}
	in := lower(phrase)
	for _, it := range items {
		if strings.Contains(in, lower(it.Name)) {
			return it, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", phrase, ErrUnknownResource)
}

func (x *Rules) price(it *models.EconomyItem, location string) float64 {
	if x.oracle == nil {
		return it.CurrentPrice
	}
	return x.oracle.Price(it.Name, location)
}

// deal moves gold and goods between p and the market row it. The row is
// updated in place; the caller persists both.
func (x *Rules) deal(p *models.Player, it *models.EconomyItem, id string, qty int, sale bool) (*Deal, error) {
	if qty <= 0 {
		qty = 1
	}
	unit := x.price(it, p.Location)
	t := &Deal{Resource: it.Name, ItemID: id, Quantity: qty, UnitPrice: unit, Sale: sale}
	if sale {
		if p.ItemQuantity(id) < qty {
			return nil, fmt.Errorf("%s: %w", it.Name, ErrNotInInventory)
		}
		t.UnitPrice = round2(unit * sellShare)
		t.Total = int(math.Floor(t.UnitPrice * float64(qty)))
		p.RemoveItem(id, qty)
		p.Gold += t.Total
		simulation.Sold(it, qty)
	} else {
		t.Total = int(math.Ceil(unit * float64(qty)))
		if p.Gold < t.Total {
			return nil, fmt.Errorf("%s costs %d, have %d: %w", it.Name, t.Total, p.Gold, ErrNotEnoughGold)
		}
		p.Gold -= t.Total
		p.AddItem(id, qty)
		simulation.Bought(it, qty)
	}
	t.Gold = p.Gold
	return t, nil
}

// Market lists the current market with prices as seen from location.
func (x *Rules) Market(ctx context.Context, location string) ([]*models.EconomyItem, error) {
	items, err := x.st.ListEconomy(ctx)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		it.CurrentPrice = x.price(it, location)
	}
	return items, nil
}

// Buy purchases qty units of resource for the player at the market price
// of their location.
func (pl *Pipeline) Buy(ctx context.Context, playerID int64, resource string, qty int) (*Deal, error) {
	return pl.settleTrade(ctx, playerID, resource, qty, false)
}

// Sell sells qty units of resource from the player's inventory.
func (pl *Pipeline) Sell(ctx context.Context, playerID int64, resource string, qty int) (*Deal, error) {
	return pl.settleTrade(ctx, playerID, resource, qty, true)
}

func (pl *Pipeline) settleTrade(ctx context.Context, playerID int64, resource string, qty int, sale bool) (*Deal, error) {
	unlock := pl.st.Locks().Lock(playerKey(playerID))
	defer unlock()

	var (
		t  *Deal
		it *models.EconomyItem
	)
	err := pl.st.WithTx(ctx, func(q *store.Queries) error {
		p, err := q.GetPlayer(ctx, playerID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrPlayerNotFound, playerID)
		}
		if err != nil {
			return err
		}
		var id string
		if it, id, err = pl.rules.resource(ctx, q, resource); err != nil {
			return err
		}
		if t, err = pl.rules.deal(p, it, id, qty, sale); err != nil {
			return err
		}
		if err := q.SaveEconomyItem(ctx, it); err != nil {
			return err
		}
		return q.SavePlayer(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	if pl.oracle != nil {
		if err := pl.oracle.SyncPrices(ctx, []*models.EconomyItem{it}); err != nil {
			pl.logger.Warn("oracle price sync", "resource", it.Name, "err", err)
		}
	}
	pl.logger.Info("trade settled", "player_id", playerID, "resource", t.Resource, "quantity", t.Quantity, "total", t.Total, "sale", sale)
	return t, nil
}

// Price is the market row for resource priced at location.
func (pl *Pipeline) Price(ctx context.Context, resource, location string) (*models.EconomyItem, error) {
	it, _, err := pl.rules.resource(ctx, pl.st.Queries, resource)
	if err != nil {
		return nil, err
	}
	it.CurrentPrice = round2(pl.rules.price(it, location))
	return it, nil
}

// Market lists every resource priced at location.
func (pl *Pipeline) Market(ctx context.Context, location string) ([]*models.EconomyItem, error) {
	return pl.rules.Market(ctx, location)
}
