package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daicherr/orbis/internal/generators"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/store"
)

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withoutDirector())
	c, err := h.pl.CreateFull(ctx, generators.Character{
		Name:         "Lin Mo",
		Constitution: "Mortal",
		Origin:       "Initial Village",
		Answers:      []string{"Acordo numa estrada de terra.", "", ""},
	})
	require.NoError(t, err)
	_, err = h.pl.Turn(ctx, c.Player.ID, "olhar ao redor")
	require.NoError(t, err)

	b, err := h.pl.Export(ctx, c.Player.ID)
	require.NoError(t, err)
	require.Equal(t, "Lin Mo", b.Player.Name)
	require.Len(t, b.History, 2)
	require.NotEmpty(t, b.Session)
	require.NotEmpty(t, b.Clock)

	dir := t.TempDir()
	require.NoError(t, b.Save(dir, "lin-mo"))
	loaded, err := models.LoadBundle(dir, "lin-mo")
	require.NoError(t, err)

	_, err = h.pl.Import(ctx, loaded)
	require.ErrorIs(t, err, store.ErrConflict)

	other := newHarness(t, withoutDirector())
	p, err := other.pl.Import(ctx, loaded)
	require.NoError(t, err)
	require.NotZero(t, p.ID)
	require.Equal(t, "Lin Mo", p.Name)
	_, err = other.pl.Import(ctx, loaded)
	require.ErrorIs(t, err, store.ErrConflict, "a second import of the same bundle")
	players, err := other.st.ListPlayers(ctx)
	require.NoError(t, err)
	require.Len(t, players, 1)

	next, err := other.st.NextTurn(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 2, next)

	res, err := other.pl.Turn(ctx, p.ID, "olhar ao redor")
	require.NoError(t, err)
	require.Equal(t, 2, res.Turn)

	_, err = other.pl.Export(ctx, 999)
	require.ErrorIs(t, err, ErrPlayerNotFound)
	_, err = other.pl.Import(ctx, &models.Bundle{})
	require.ErrorIs(t, err, ErrInvalidCharacter)
}
