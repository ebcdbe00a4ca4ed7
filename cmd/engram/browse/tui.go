package browsecmder

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	bubbletea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/engramhq/engram/pkg/memory"
)

func init() {
	// Force TrueColor profile to fix lipgloss color detection issue
	// See: https://github.com/charmbracelet/lipgloss/issues/439
	renderer := lipgloss.NewRenderer(os.Stdout, termenv.WithProfile(termenv.TrueColor))
	renderer.SetColorProfile(termenv.TrueColor)
	lipgloss.SetDefaultRenderer(renderer)
}

type browseView int

const (
	viewList browseView = iota
	viewDetail
)

var (
	browseTitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	browseMutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	browseIDStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	browseRecordStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	browseCursorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("235")).Background(lipgloss.Color("214")).Bold(true)
	browseTechStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	browseSectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	browseErrStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

type browseKeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Enter    key.Binding
	Back     key.Binding
	Archived key.Binding
	Reload   key.Binding
	Quit     key.Binding
}

func (k browseKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Down, k.Up, k.Enter, k.Back, k.Archived, k.Reload, k.Quit}
}

func (k browseKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Down, k.Up, k.Enter, k.Back}, {k.Archived, k.Reload, k.Quit}}
}

func defaultKeyMap() browseKeyMap {
	return browseKeyMap{
		Up:       key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k", "up")),
		Down:     key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j", "down")),
		Enter:    key.NewBinding(key.WithKeys("enter", "l"), key.WithHelp("enter", "open")),
		Back:     key.NewBinding(key.WithKeys("h", "esc"), key.WithHelp("h", "back")),
		Archived: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "archived")),
		Reload:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

type memoriesLoadedMsg struct {
	page *listPage
	err  error
}

type browseModel struct {
	apiTarget string
	limit     int
	archived  bool

	records []*memory.Record
	total   int
	cursor  int
	view    browseView
	width   int
	height  int
	loadErr error

	keys browseKeyMap
	help help.Model
}

func newBrowseModel(apiTarget string, limit int, archived bool) browseModel {
	return browseModel{
		apiTarget: apiTarget,
		limit:     limit,
		archived:  archived,
		view:      viewList,
		keys:      defaultKeyMap(),
		help:      help.New(),
	}
}

func runBrowseTUI(apiTarget string, limit int, archived bool) error {
	model := newBrowseModel(apiTarget, limit, archived)

	program := bubbletea.NewProgram(model,
		bubbletea.WithAltScreen(),
	)
	_, err := program.Run()
	return err
}

func (m browseModel) loadMemories() bubbletea.Cmd {
	apiTarget, limit, archived := m.apiTarget, m.limit, m.archived
	return func() bubbletea.Msg {
		page, err := fetchMemories(apiTarget, limit, archived)
		return memoriesLoadedMsg{page: page, err: err}
	}
}

func (m browseModel) Init() bubbletea.Cmd {
	return m.loadMemories()
}

func (m browseModel) Update(msg bubbletea.Msg) (bubbletea.Model, bubbletea.Cmd) {
	switch msg := msg.(type) {
	case bubbletea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case memoriesLoadedMsg:
		if msg.err != nil {
			m.loadErr = msg.err
			return m, nil
		}
		m.loadErr = nil
		m.records = msg.page.Records
		m.total = msg.page.Pagination.Total
		if m.cursor >= len(m.records) {
			m.cursor = clamp(m.cursor, len(m.records)-1)
		}
		return m, nil
	case bubbletea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m browseModel) handleKey(msg bubbletea.KeyMsg) (bubbletea.Model, bubbletea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, bubbletea.Quit
	case key.Matches(msg, m.keys.Down):
		if m.view == viewList && m.cursor < len(m.records)-1 {
			m.cursor++
		}
		return m, nil
	case key.Matches(msg, m.keys.Up):
		if m.view == viewList && m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case key.Matches(msg, m.keys.Enter):
		if m.view == viewList && len(m.records) > 0 {
			m.view = viewDetail
		}
		return m, nil
	case key.Matches(msg, m.keys.Back):
		m.view = viewList
		return m, nil
	case key.Matches(msg, m.keys.Archived):
		m.archived = !m.archived
		m.cursor = 0
		return m, m.loadMemories()
	case key.Matches(msg, m.keys.Reload):
		return m, m.loadMemories()
	}
	return m, nil
}

func (m browseModel) View() string {
	var b strings.Builder

	if m.view == viewDetail && m.cursor < len(m.records) {
		m.renderDetail(&b, m.records[m.cursor])
	} else {
		m.renderList(&b)
	}

	b.WriteString("\n" + m.help.View(m.keys) + "\n")
	return b.String()
}

func (m browseModel) renderList(b *strings.Builder) {
	scope := "active"
	if m.archived {
		scope = "all"
	}
	fmt.Fprintf(b, "%s %s\n\n",
		browseTitleStyle.Render("Engram Memories"),
		browseMutedStyle.Render(fmt.Sprintf("(%d of %d, %s)", len(m.records), m.total, scope)),
	)

	if m.loadErr != nil {
		fmt.Fprintf(b, "  %s\n", browseErrStyle.Render(m.loadErr.Error()))
		return
	}
	if len(m.records) == 0 {
		fmt.Fprintf(b, "  %s\n", browseMutedStyle.Render("no memories stored"))
		return
	}

	visible := m.height - 6
	if visible < 5 {
		visible = len(m.records)
	}
	start := 0
	if m.cursor >= visible {
		start = m.cursor - visible + 1
	}

	for i := start; i < len(m.records) && i < start+visible; i++ {
		rec := m.records[i]

		title := rec.Title
		if title == "" {
			title = "(untitled)"
		}
		if rec.Archived {
			title += " [archived]"
		}

		line := fmt.Sprintf("%-10s  %s  %s", rec.Date, shortID(rec.ID), title)
		if i == m.cursor {
			fmt.Fprintf(b, "  %s\n", browseCursorStyle.Render(line))
		} else {
			fmt.Fprintf(b, "  %s  %s  %s\n",
				browseMutedStyle.Render(fmt.Sprintf("%-10s", rec.Date)),
				browseIDStyle.Render(shortID(rec.ID)),
				browseRecordStyle.Render(title),
			)
		}
	}
}

func (m browseModel) renderDetail(b *strings.Builder, rec *memory.Record) {
	title := rec.Title
	if title == "" {
		title = "(untitled)"
	}

	fmt.Fprintf(b, "%s\n", browseTitleStyle.Render(title))
	fmt.Fprintf(b, "%s\n\n", browseMutedStyle.Render(fmt.Sprintf(
		"%s  %s  source: %s  quality: %.2f", rec.ID, rec.Date, rec.Source, rec.QualityScore)))

	if len(rec.Technologies) > 0 {
		fmt.Fprintf(b, "%s %s\n",
			browseSectionStyle.Render("Technologies:"),
			browseTechStyle.Render(strings.Join(rec.Technologies, ", ")),
		)
	}
	if len(rec.FilePaths) > 0 {
		fmt.Fprintf(b, "%s %s\n",
			browseSectionStyle.Render("Files:"),
			browseTechStyle.Render(strings.Join(rec.FilePaths, ", ")),
		)
	}
	if rec.Project != "" {
		fmt.Fprintf(b, "%s %s\n",
			browseSectionStyle.Render("Project:"),
			browseTechStyle.Render(rec.Project),
		)
	}

	b.WriteString("\n")
	content := rec.Content
	if m.width > 4 {
		content = wrap(content, m.width-4)
	}
	fmt.Fprintf(b, "%s\n", browseRecordStyle.Render(content))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func clamp(v, max int) int {
	if max < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// wrap breaks long lines at word boundaries for terminal display.
func wrap(text string, width int) string {
	var out strings.Builder
	for _, line := range strings.Split(text, "\n") {
		for len(line) > width {
			cut := strings.LastIndex(line[:width], " ")
			if cut <= 0 {
				cut = width
			}
			out.WriteString(line[:cut])
			out.WriteString("\n")
			line = strings.TrimLeft(line[cut:], " ")
		}
		out.WriteString(line)
		out.WriteString("\n")
	}
	return strings.TrimRight(out.String(), "\n")
}
