package tui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/daicherr/orbis/internal/catalog"
	"github.com/daicherr/orbis/internal/generators"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/pipeline"
	"github.com/daicherr/orbis/internal/store"
)

// Game is the slice of the engine the terminal client drives.
type Game interface {
	FindPlayer(ctx context.Context, name string) (*models.Player, error)
	SessionZero(ctx context.Context, c generators.Character) []string
	CreateFull(ctx context.Context, c generators.Character) (*pipeline.Creation, error)
	Turn(ctx context.Context, playerID int64, input string) (*pipeline.TurnResult, error)
	Export(ctx context.Context, playerID int64) (*models.Bundle, error)
}

const lookInput = "olhar ao redor"

type sessionState int

const (
	stateName sessionState = iota
	stateOrigin
	stateQuestions
	stateLoading
	statePlaying
	stateError
)

type model struct {
	state     sessionState
	game      Game
	saveDir   string
	textInput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	err       error
	gameLog   string
	width     int
	height    int

	character generators.Character
	questions []string
	player    *models.Player
	busy      bool
}

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#5F5F87")).
			Bold(true).
			PaddingLeft(1)

	gameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#D7AF5F")).
			Italic(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	stateStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			PaddingLeft(2).
			Foreground(lipgloss.Color("#AAAAAA"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true).
			Underline(true)
)

func NewModel(game Game, saveDir string) model {
	ti := textinput.New()
	ti.Placeholder = "Nome do personagem..."
	ti.Focus()
	ti.CharLimit = 280
	ti.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return model{
		state:     stateName,
		game:      game,
		saveDir:   saveDir,
		textInput: ti,
		spinner:   sp,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

type playerFoundMsg struct {
	player *models.Player
}

type newCharacterMsg struct{}

type questionsMsg struct {
	questions []string
}

type createdMsg struct {
	creation *pipeline.Creation
}

type turnProcessedMsg struct {
	result *pipeline.TurnResult
	err    error
}

type savedMsg struct {
	name string
	err  error
}

type errMsg struct {
	err error
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = m.logWidth()
		m.viewport.Height = msg.Height - 6
		if m.state == statePlaying {
			m.viewport.SetContent(m.gameLog)
		}

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case playerFoundMsg:
		m.player = msg.player
		m.startPlaying()
		m.appendGame(noticeStyle.Render(fmt.Sprintf("%s retorna a %s.", m.player.Name, m.player.Location)))
		return m, nil

	case newCharacterMsg:
		m.state = stateOrigin
		m.textInput.Placeholder = "Onde sua história começa?"
		return m, nil

	case questionsMsg:
		m.questions = msg.questions
		m.state = stateQuestions
		m.textInput.Placeholder = m.questions[0]
		return m, nil

	case createdMsg:
		m.player = msg.creation.Player
		m.startPlaying()
		fb := msg.creation.Feedback
		m.appendGame(gameStyle.Width(m.logWidth()).Render(fb.FirstScene))
		if fb.SkillsExplanation != "" {
			m.appendGame(noticeStyle.Render(fb.SkillsExplanation))
		}
		return m, nil

	case turnProcessedMsg:
		m.busy = false
		if errors.Is(msg.err, pipeline.ErrPlayerDead) {
			m.err = msg.err
			m.state = stateError
			return m, nil
		}
		if msg.err != nil {
			m.appendGame(noticeStyle.Render("O mundo hesita: " + msg.err.Error()))
			return m, nil
		}
		m.player = msg.result.Player
		m.appendGame(gameStyle.Width(m.logWidth()).Render(msg.result.Narration))
		if msg.result.WorldTick != nil {
			for _, e := range msg.result.WorldTick.Events() {
				m.appendGame(noticeStyle.Render("☯ " + e.Description))
			}
		}
		return m, nil

	case savedMsg:
		if msg.err != nil {
			m.appendGame(noticeStyle.Render("Falha ao salvar: " + msg.err.Error()))
		} else {
			m.appendGame(noticeStyle.Render("Salvo em " + msg.name + "."))
		}
		return m, nil

	case errMsg:
		m.err = msg.err
		m.state = stateError
		return m, nil
	}

	if m.state != stateLoading && m.state != stateError {
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

// submit handles Enter in each state.
func (m model) submit() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.textInput.Value())
	switch m.state {
	case stateName:
		if value == "" {
			return m, nil
		}
		m.textInput.Reset()
		m.character.Name = value
		m.state = stateLoading
		return m, m.findPlayer(value)

	case stateOrigin:
		if value == "" {
			return m, nil
		}
		m.textInput.Reset()
		m.character.Origin = value
		m.character.Constitution = "Mortal"
		m.state = stateLoading
		return m, m.sessionZero()

	case stateQuestions:
		m.textInput.Reset()
		m.character.Answers = append(m.character.Answers, value)
		if n := len(m.character.Answers); n < len(m.questions) {
			m.textInput.Placeholder = m.questions[n]
			return m, nil
		}
		m.state = stateLoading
		return m, m.create()

	case statePlaying:
		if value == "" || m.busy {
			return m, nil
		}
		m.textInput.Reset()
		switch value {
		case "/quit":
			return m, tea.Quit
		case "/save":
			return m, m.save()
		case "/look":
			value = lookInput
		}
		m.appendGame(userStyle.Width(m.logWidth()).Render("> " + value))
		m.busy = true
		return m, m.processTurn(value)
	}
	return m, nil
}

func (m *model) startPlaying() {
	m.state = statePlaying
	if m.viewport.Width == 0 {
		m.viewport = viewport.New(m.logWidth(), max(m.height-6, 10))
	}
	m.textInput.Placeholder = "O que você faz?"
	m.textInput.Reset()
}

func (m *model) appendGame(s string) {
	m.gameLog += s + "\n\n"
	m.viewport.SetContent(m.gameLog)
	m.viewport.GotoBottom()
}

func (m model) logWidth() int {
	if m.width == 0 {
		return 80
	}
	return int(float64(m.width) * 0.72)
}

func (m model) View() string {
	var s string

	switch m.state {
	case stateName:
		s = fmt.Sprintf("%s\n\n%s\n\n%s",
			titleStyle.Render("ORBIS"),
			"Quem caminha por este mundo? Um nome existente retoma a jornada.",
			m.textInput.View())

	case stateOrigin:
		s = fmt.Sprintf("%s\n\n%s", "De onde vem "+m.character.Name+"?", m.textInput.View())

	case stateQuestions:
		n := len(m.character.Answers)
		s = fmt.Sprintf("Sessão zero (%d/%d)\n\n%s\n\n%s",
			n+1, len(m.questions), m.questions[n], m.textInput.View())

	case stateLoading:
		s = "\n  " + m.spinner.View() + " O mundo se forma..."

	case statePlaying:
		body := lipgloss.JoinHorizontal(lipgloss.Top, m.viewport.View(), m.renderState())
		prompt := m.textInput.View()
		if m.busy {
			prompt = m.spinner.View() + " ..."
		}
		help := helpStyle.Render("Comandos: /look, /save, /quit, ou descreva o que quer fazer.")
		s = lipgloss.JoinVertical(lipgloss.Left, body, "\n"+prompt, "\n"+help)

	case stateError:
		s = fmt.Sprintf("\n  %v\n\nEsc para sair.", m.err)
	}

	return "\n" + s + "\n"
}

func (m model) renderState() string {
	if m.player == nil {
		return ""
	}
	p := m.player

	var b strings.Builder
	b.WriteString(titleStyle.Render("LOCAL") + "\n" + p.Location + "\n\n")

	b.WriteString(titleStyle.Render("VITAIS") + "\n")
	fmt.Fprintf(&b, "HP: %.0f/%.0f\n", p.HP, p.MaxHP)
	fmt.Fprintf(&b, "Reino: %d\n", p.Tier)
	fmt.Fprintf(&b, "Corrupção: %.0f\n\n", p.Corruption)

	b.WriteString(titleStyle.Render("ENERGIAS") + "\n")
	fmt.Fprintf(&b, "Quintessência: %.0f/%.0f\n", p.Quintessence, p.MaxQuintessence)
	fmt.Fprintf(&b, "Chi Sombrio: %.0f/%.0f\n", p.ShadowChi, p.MaxShadowChi)
	fmt.Fprintf(&b, "Yuan Qi: %.0f/%.0f\n\n", p.YuanQi, p.MaxYuanQi)

	b.WriteString(titleStyle.Render("INVENTÁRIO") + "\n")
	fmt.Fprintf(&b, "Ouro: %d\n", p.Gold)
	if len(p.Inventory) == 0 {
		b.WriteString("(vazio)\n")
	}
	items := append([]models.InventoryItem(nil), p.Inventory...)
	sort.Slice(items, func(i, j int) bool { return items[i].ItemID < items[j].ItemID })
	for _, it := range items {
		fmt.Fprintf(&b, "- %s x%d\n", it.ItemID, it.Quantity)
	}

	width := int(float64(m.width) * 0.25)
	return stateStyle.Width(width).Height(m.viewport.Height).Render(b.String())
}

func (m model) findPlayer(name string) tea.Cmd {
	return func() tea.Msg {
		p, err := m.game.FindPlayer(context.Background(), name)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return newCharacterMsg{}
		case err != nil:
			return errMsg{err}
		}
		return playerFoundMsg{p}
	}
}

func (m model) sessionZero() tea.Cmd {
	c := m.character
	return func() tea.Msg {
		qs := m.game.SessionZero(context.Background(), c)
		if len(qs) == 0 {
			qs = append([]string{}, generators.SessionZeroQuestions...)
		}
		return questionsMsg{qs}
	}
}

func (m model) create() tea.Cmd {
	c := m.character
	return func() tea.Msg {
		creation, err := m.game.CreateFull(context.Background(), c)
		if err != nil {
			return errMsg{err}
		}
		return createdMsg{creation}
	}
}

func (m model) processTurn(input string) tea.Cmd {
	id := m.player.ID
	return func() tea.Msg {
		res, err := m.game.Turn(context.Background(), id, input)
		return turnProcessedMsg{res, err}
	}
}

func (m model) save() tea.Cmd {
	id, name := m.player.ID, catalog.Slug(m.player.Name)
	return func() tea.Msg {
		b, err := m.game.Export(context.Background(), id)
		if err != nil {
			return savedMsg{name: name, err: err}
		}
		return savedMsg{name: name, err: b.Save(m.saveDir, name)}
	}
}

// Run plays game in the terminal until the player quits.
func Run(game Game, saveDir string) error {
	p := tea.NewProgram(NewModel(game, saveDir), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
