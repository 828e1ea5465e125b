// Package tui provides interactive terminal UI components using BubbleTea.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ConflictItem is one conflicting path offered for backport.
type ConflictItem struct {
	DestPath string
	Kind     string // "conflict" or "double conflict"
	Preview  string // rendered diff shown in the detail view
}

// PickResult is the outcome of the picker interaction.
type PickResult struct {
	// Chosen is the index of the selected conflict, or -1 when cancelled.
	Chosen int
}

type pickPhase int

const (
	pickList pickPhase = iota
	pickDetail
)

type pickKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	View   key.Binding
	Choose key.Binding
	Back   key.Binding
	Quit   key.Binding
}

func defaultPickKeyMap() pickKeyMap {
	return pickKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		View: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "view diff"),
		),
		Choose: key.NewBinding(
			key.WithKeys("b"),
			key.WithHelp("b", "backport this one"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

var pickStyles = struct {
	Title  lipgloss.Style
	Help   lipgloss.Style
	Status lipgloss.Style
}{
	Title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Padding(0, 1),
	Help:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	Status: lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1),
}

// ConflictPickerModel lets the user pick exactly one conflict to backport.
// One conflict per invocation keeps a fix from masking other errors the
// same fix might resolve.
type ConflictPickerModel struct {
	items    []ConflictItem
	table    table.Model
	viewport viewport.Model
	keys     pickKeyMap
	result   PickResult
	phase    pickPhase
	cursor   int
	width    int
	height   int
	quitting bool
	ready    bool
}

// NewConflictPickerModel creates the picker model.
func NewConflictPickerModel(items []ConflictItem) ConflictPickerModel {
	columns := []table.Column{
		{Title: "Path", Width: 48},
		{Title: "Kind", Width: 16},
	}
	rows := make([]table.Row, len(items))
	for i, it := range items {
		rows[i] = table.Row{it.DestPath, it.Kind}
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return ConflictPickerModel{
		items:  items,
		table:  t,
		keys:   defaultPickKeyMap(),
		result: PickResult{Chosen: -1},
		phase:  pickList,
	}
}

// Init implements tea.Model.
func (m ConflictPickerModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ConflictPickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m.phase {
	case pickDetail:
		return m.updateDetail(msg)
	default:
		return m.updateList(msg)
	}
}

func (m ConflictPickerModel) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(max(msg.Height-8, 5))

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit), key.Matches(msg, m.keys.Back):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Choose):
			if len(m.items) > 0 {
				m.result.Chosen = m.table.Cursor()
				m.quitting = true
				return m, tea.Quit
			}

		case key.Matches(msg, m.keys.View):
			if len(m.items) > 0 {
				m.cursor = m.table.Cursor()
				m.phase = pickDetail
				m.ready = false
				return m, nil
			}
		}
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m ConflictPickerModel) updateDetail(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		height := max(msg.Height-6, 5)
		if !m.ready {
			m.viewport = viewport.New(msg.Width-2, height)
			m.viewport.SetContent(m.detailContent())
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 2
			m.viewport.Height = height
		}

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Back):
			m.phase = pickList
			return m, nil

		case key.Matches(msg, m.keys.Choose):
			m.result.Chosen = m.cursor
			m.quitting = true
			return m, tea.Quit
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m ConflictPickerModel) detailContent() string {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return "No conflict selected"
	}
	it := m.items[m.cursor]

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s (%s)\n\n", it.DestPath, it.Kind))
	if it.Preview == "" {
		b.WriteString("(no preview available)")
	} else {
		b.WriteString(it.Preview)
	}
	return b.String()
}

// View implements tea.Model.
func (m ConflictPickerModel) View() string {
	if m.quitting {
		return ""
	}
	if m.phase == pickDetail {
		return m.viewDetail()
	}
	return m.viewList()
}

func (m ConflictPickerModel) viewList() string {
	var b strings.Builder
	b.WriteString(pickStyles.Title.Render("Pick a conflict to backport"))
	b.WriteString("\n\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")
	b.WriteString(pickStyles.Status.Render(fmt.Sprintf("%d conflict(s); one is resolved per invocation", len(m.items))))
	b.WriteString("\n")
	b.WriteString(pickStyles.Help.Render("↑/↓ navigate • enter view diff • b backport • q quit"))
	return b.String()
}

func (m ConflictPickerModel) viewDetail() string {
	if !m.ready {
		return "Loading..."
	}
	var b strings.Builder
	b.WriteString(pickStyles.Title.Render("Conflict: " + m.items[m.cursor].DestPath))
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(pickStyles.Help.Render("↑/↓ scroll • b backport • esc back • q quit"))
	return b.String()
}

// Result returns the picker outcome.
func (m ConflictPickerModel) Result() PickResult {
	return m.result
}

// RunConflictPicker runs the interactive picker and returns the selected
// index, or -1 when cancelled.
func RunConflictPicker(items []ConflictItem) (int, error) {
	if len(items) == 0 {
		return -1, nil
	}

	mdl := NewConflictPickerModel(items)
	finalModel, err := tea.NewProgram(mdl, tea.WithAltScreen()).Run()
	if err != nil {
		return -1, err
	}
	if m, ok := finalModel.(ConflictPickerModel); ok {
		return m.Result().Chosen, nil
	}
	return -1, nil
}
