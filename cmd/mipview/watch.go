package main

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type keyMap struct {
	ZoomIn  key.Binding
	ZoomOut key.Binding
	Quit    key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		ZoomIn: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "zoom in"),
		),
		ZoomOut: key.NewBinding(
			key.WithKeys("-", "_"),
			key.WithHelp("-", "zoom out"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k keyMap) help() string {
	parts := make([]string, 0, 3)
	for _, b := range []key.Binding{k.ZoomIn, k.ZoomOut, k.Quit} {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, "  ")
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	footerStyle = lipgloss.NewStyle().Faint(true)
)

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// model drives the viewer from bubbletea ticks.
type model struct {
	ctx  context.Context
	v    *viewer
	keys keyMap
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.ZoomIn):
			m.v.zoom(2)
		case key.Matches(msg, m.keys.ZoomOut):
			m.v.zoom(0.5)
		}
		return m, nil

	case tickMsg:
		if m.ctx.Err() != nil {
			return m, tea.Quit
		}
		m.v.step()
		return m, tickCmd()
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("mipview"))
	b.WriteString("\n\n")
	b.WriteString(m.v.table())
	b.WriteString("\n")
	b.WriteString(m.v.summary())
	b.WriteString("\n\n")
	b.WriteString(footerStyle.Render(m.keys.help()))
	b.WriteString("\n")
	return b.String()
}

func runWatch(ctx context.Context, v *viewer) error {
	m := model{ctx: ctx, v: v, keys: defaultKeyMap()}
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
