// Package generators produces new game content with the text model: enemies,
// NPCs, quests, skills and the session-zero material of character creation.
//
// Every generator returns a proposal and leaves the catalog untouched; the
// Save methods append a proposal to the on-disk catalogs. When the model is
// unavailable or its reply does not match the expected schema, a generator
// retries once with a shorter prompt and then falls back to a deterministic
// template, so callers always get something playable.
package generators

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"text/template"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/daicherr/orbis/internal/catalog"
	"github.com/daicherr/orbis/internal/textgen"
)

//go:embed prompts/*.txt
var promptFS embed.FS

//go:embed schemas/*.json
var schemaFS embed.FS

// ErrSchema is returned when a model reply does not match its schema.
var ErrSchema = errors.New("generated content does not match schema")

const schemaBase = "mem:///schemas/"

type Generator struct {
	text    textgen.Client
	cat     *catalog.Catalog
	logger  *slog.Logger
	prompts *template.Template
	schemas map[string]*jsonschema.Schema
}

// New builds a Generator. The embedded prompts and schemas are parsed once.
func New(text textgen.Client, cat *catalog.Catalog, logger *slog.Logger) (*Generator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tmpl, err := template.New("prompts").
		Funcs(template.FuncMap{"join": strings.Join}).
		ParseFS(promptFS, "prompts/*.txt")
	if err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	return &Generator{
		text:    text,
		cat:     cat,
		logger:  logger,
		prompts: tmpl,
		schemas: schemas,
	}, nil
}

func compileSchemas() (map[string]*jsonschema.Schema, error) {
	files, err := fs.Glob(schemaFS, "schemas/*.json")
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	for _, f := range files {
		data, err := schemaFS.ReadFile(f)
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBase+path.Base(f), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", f, err)
		}
	}
	out := make(map[string]*jsonschema.Schema, len(files))
	for _, f := range files {
		name := strings.TrimSuffix(path.Base(f), ".json")
		s, err := c.Compile(schemaBase + path.Base(f))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", f, err)
		}
		out[name] = s
	}
	return out, nil
}

func (g *Generator) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := g.prompts.ExecuteTemplate(&buf, name+".txt", data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return buf.String(), nil
}

// Validate checks a JSON document against the named schema.
func (g *Generator) Validate(schema string, body []byte) error {
	s, ok := g.schemas[schema]
	if !ok {
		return fmt.Errorf("unknown schema %q", schema)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}

// ask renders the prompt, asks for JSON and validates it against the schema
// of the same name. A failure is retried once with the short variant of the
// prompt, selected by the setSimple callback.
func (g *Generator) ask(ctx context.Context, name string, data any, setSimple func(), out any) error {
	err := g.askOnce(ctx, name, data, out)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	g.logger.Warn("generator retrying with short prompt", "generator", name, "err", err)
	setSimple()
	return g.askOnce(ctx, name, data, out)
}

func (g *Generator) askOnce(ctx context.Context, name string, data any, out any) error {
	prompt, err := g.render(name, data)
	if err != nil {
		return err
	}
	reply, err := g.text.GenerateText(ctx, prompt, textgen.TaskGenerator)
	if err != nil {
		return err
	}
	body, err := textgen.ExtractJSON(reply)
	if err != nil {
		return err
	}
	if err := g.Validate(name, []byte(body)); err != nil {
		return err
	}
	return json.Unmarshal([]byte(body), out)
}

// plain asks for plain text and falls back to the given default on any error.
func (g *Generator) plain(ctx context.Context, name string, data any, fallback string) (string, bool) {
	prompt, err := g.render(name, data)
	if err != nil {
		g.logger.Warn("generator prompt failed", "generator", name, "err", err)
		return fallback, false
	}
	reply, err := g.text.GenerateText(ctx, prompt, textgen.TaskGenerator)
	if err != nil {
		g.logger.Warn("generator falling back", "generator", name, "err", err)
		return fallback, false
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return fallback, false
	}
	return reply, true
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}
