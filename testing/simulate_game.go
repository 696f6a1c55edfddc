// Command simulate_game lets a language model play a short session against
// the engine and exits non-zero if any turn fails.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/daicherr/orbis/internal/config"
	"github.com/daicherr/orbis/internal/engine"
	"github.com/daicherr/orbis/internal/generators"
	"github.com/daicherr/orbis/internal/pipeline"
	"github.com/daicherr/orbis/internal/textgen"
)

const maxTurns = 10

func main() {
	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	// A throwaway world per run.
	dir, err := os.MkdirTemp("", "orbis-sim-*")
	if err != nil {
		log.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)
	cfg.DatabaseURL = "file:" + filepath.Join(dir, "sim.db")
	cfg.ArchiveDir = filepath.Join(dir, "archive")

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	eng, err := engine.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	defer eng.Close()

	playerModel, err := textgen.NewGemini(ctx, cfg.GeminiAPIKey, textgen.Options{Logger: logger})
	if err != nil {
		log.Fatalf("Failed to create player model: %v", err)
	}
	defer playerModel.Close()

	fmt.Println("--- Step 1: Creating a character ---")
	c := generators.Character{
		Name:         "Wei Lan",
		Appearance:   "jovem, olhos atentos, roupas de viajante",
		Constitution: "Mortal",
		Origin:       "Vila Crisântemos",
	}
	c.Answers = eng.Pipeline.SessionZero(ctx, c)
	for i, q := range c.Answers {
		c.Answers[i] = ask(ctx, playerModel, fmt.Sprintf(
			"Você está criando um personagem de cultivo chamado %s. Responda em uma frase, em português: %s", c.Name, q), "")
	}
	creation, err := eng.Pipeline.CreateFull(ctx, c)
	if err != nil {
		log.Fatalf("Failed to create character: %v", err)
	}
	fmt.Printf("Player %d at %s\n\n%s\n\n", creation.Player.ID, creation.Feedback.StartingLocation, creation.Feedback.FirstScene)

	failures := 0
	scene := creation.Feedback.FirstScene
	for turn := 1; turn <= maxTurns; turn++ {
		fmt.Printf("--- Turn %d ---\n", turn)
		action := ask(ctx, playerModel, actionPrompt(scene), "olhar ao redor")
		fmt.Printf("Player Action: %s\n", action)

		res, err := eng.Pipeline.Turn(ctx, creation.Player.ID, action)
		if errors.Is(err, pipeline.ErrPlayerDead) {
			fmt.Println("Game Ended: the character died.")
			break
		}
		if err != nil {
			fmt.Printf("Error processing turn: %v\n", err)
			failures++
			continue
		}
		if res.Failed {
			failures++
		}
		scene = res.Narration
		fmt.Printf("%s\n", res.Narration)
		fmt.Printf("Intent=%s Attempts=%d HP=%.0f/%.0f Location=%s\n\n",
			res.Action.Intent, res.Attempts, res.Player.HP, res.Player.MaxHP, res.Player.Location)
		if res.WorldTick != nil {
			for _, e := range res.WorldTick.Events() {
				fmt.Printf("World: %s\n", e.Description)
			}
		}
	}
	if failures > 0 {
		fmt.Printf("%d turn(s) failed\n", failures)
		os.Exit(1)
	}
}

func actionPrompt(scene string) string {
	return fmt.Sprintf(`Você joga um RPG de texto de cultivo (xianxia).
Cena atual:
%s

Qual é a sua próxima ação? Seja criativo mas coerente com o mundo. Responda APENAS com a ação, em uma frase curta, em português.`, scene)
}

func ask(ctx context.Context, model textgen.Client, prompt, fallback string) string {
	out, err := model.GenerateText(ctx, prompt, textgen.TaskStory)
	if err != nil || strings.TrimSpace(out) == "" {
		return fallback
	}
	return strings.TrimSpace(out)
}
