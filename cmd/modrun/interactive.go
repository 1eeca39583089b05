package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wippyai/modrun/runtime"
)

type explorerModel struct {
	err      error
	path     string
	name     string
	nodes    []runtime.Node
	visible  []int
	filter   textinput.Model
	selected int
	state    explorerState
	loaded   bool
}

type explorerState int

const (
	stateBrowse explorerState = iota
	stateFilter
	stateDetail
)

func newExplorerModel(path string) *explorerModel {
	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "filter identifiers"
	ti.Width = 40
	return &explorerModel{path: path, filter: ti, state: stateBrowse}
}

type graphLoadedMsg struct {
	err   error
	name  string
	nodes []runtime.Node
}

func (m *explorerModel) Init() tea.Cmd {
	return m.load
}

func (m *explorerModel) load() tea.Msg {
	src, err := openSource(m.path)
	if err != nil {
		return graphLoadedMsg{err: err}
	}
	defer src.Close()

	r := src.runner()
	defer r.Close()
	nodes, err := r.Graph(context.Background())
	return graphLoadedMsg{err: err, name: src.name, nodes: nodes}
}

func (m *explorerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateFilter {
			return m.updateFilter(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			if m.state == stateBrowse && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateBrowse && m.selected < len(m.visible)-1 {
				m.selected++
			}

		case "/":
			if m.state == stateBrowse {
				m.state = stateFilter
				return m, m.filter.Focus()
			}

		case "enter":
			switch m.state {
			case stateBrowse:
				if len(m.visible) > 0 {
					m.state = stateDetail
				}
			case stateDetail:
				m.state = stateBrowse
			}

		case "esc":
			if m.state == stateDetail {
				m.state = stateBrowse
			}
		}

	case graphLoadedMsg:
		m.loaded = true
		m.err = msg.err
		m.name = msg.name
		m.nodes = msg.nodes
		m.applyFilter()
	}
	return m, nil
}

func (m *explorerModel) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "enter", "esc":
		m.filter.Blur()
		m.state = stateBrowse
		return m, nil
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.applyFilter()
	return m, cmd
}

func (m *explorerModel) applyFilter() {
	q := strings.ToLower(m.filter.Value())
	m.visible = m.visible[:0]
	for i, n := range m.nodes {
		if q == "" || strings.Contains(strings.ToLower(n.ID), q) {
			m.visible = append(m.visible, i)
		}
	}
	if m.selected >= len(m.visible) {
		m.selected = max(len(m.visible)-1, 0)
	}
}

func (m *explorerModel) View() string {
	if !m.loaded {
		return "Linking module graph..."
	}
	if len(m.nodes) == 0 && m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Module Graph"))
	b.WriteString(" ")
	b.WriteString(m.name)
	b.WriteString("\n\n")

	switch m.state {
	case stateBrowse, stateFilter:
		if m.state == stateFilter || m.filter.Value() != "" {
			b.WriteString(m.filter.View())
			b.WriteString("\n\n")
		}
		for i, idx := range m.visible {
			line := m.formatNode(m.nodes[idx])
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		if m.err != nil {
			b.WriteString("\n")
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		if m.state == stateFilter {
			b.WriteString(helpStyle.Render("type to filter • enter/esc done"))
		} else {
			b.WriteString(helpStyle.Render("↑/↓ select • / filter • enter details • q quit"))
		}

	case stateDetail:
		n := m.nodes[m.visible[m.selected]]
		b.WriteString(m.formatNode(n))
		b.WriteString("\n\n")
		if len(n.Deps) > 0 {
			b.WriteString("Dependencies:\n")
			for _, d := range n.Deps {
				fmt.Fprintf(&b, "  %s -> %s\n", d.Specifier, idStyle.Render(d.ID))
			}
			b.WriteString("\n")
		}
		if len(n.Exports) > 0 {
			b.WriteString("Exports:\n")
			for _, e := range n.Exports {
				b.WriteString("  " + exportStyle.Render(e) + "\n")
			}
			b.WriteString("\n")
		}
		if n.Err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", n.Err)))
			b.WriteString("\n\n")
		}
		b.WriteString(helpStyle.Render("enter/esc back • q quit"))
	}

	return b.String()
}

func (m *explorerModel) formatNode(n runtime.Node) string {
	status := string(n.Format) + " " + n.State.String()
	if n.Err != nil {
		return idStyle.Render(n.ID) + " " + errorStyle.Render(status)
	}
	return idStyle.Render(n.ID) + " " + formatStyle.Render(status)
}

func runInteractive(path string) error {
	p := tea.NewProgram(newExplorerModel(path), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
