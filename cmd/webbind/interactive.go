package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tidwall/gjson"

	"github.com/wippyai/webbind/async"
	"github.com/wippyai/webbind/proxy"
	"github.com/wippyai/webbind/resource"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// callTimeout bounds how long the TUI waits for an async result.
const callTimeout = 10 * time.Second

type interactiveModel struct {
	err      error
	reg      *proxy.Registry
	result   string
	entries  []entry
	input    textinput.Model
	selected int
	state    modelState
}

// entry is one callable: a static factory or a method of a live proxy.
type entry struct {
	call       func(ctx context.Context, args []any) (any, error)
	label      string
	signatures []string
}

type modelState int

const (
	stateSelect modelState = iota
	stateInputArgs
	stateShowResult
)

type callResultMsg struct {
	err    error
	result string
}

func newInteractiveModel(reg *proxy.Registry) *interactiveModel {
	m := &interactiveModel{reg: reg, state: stateSelect}
	m.refresh()
	return m
}

// refresh rebuilds the entry list from the registry's classes and the
// proxies currently alive in its table.
func (m *interactiveModel) refresh() {
	var entries []entry
	for _, c := range m.reg.Classes() {
		for _, s := range c.Statics() {
			cls, name := c, s.Name
			entries = append(entries, entry{
				label:      cls.Name + "." + name,
				signatures: s.Signatures(),
				call: func(ctx context.Context, args []any) (any, error) {
					return cls.CallStatic(ctx, name, args...)
				},
			})
		}
	}
	var live []*proxy.Proxy
	m.reg.Table().Each(func(_ resource.Handle, _ string, v any) bool {
		if p, ok := v.(*proxy.Proxy); ok && !p.Closed() {
			live = append(live, p)
		}
		return true
	})
	for _, p := range live {
		for _, meth := range p.Class().Methods() {
			target, name := p, meth.Name
			entries = append(entries, entry{
				label:      target.String() + "." + name,
				signatures: meth.Signatures(),
				call: func(ctx context.Context, args []any) (any, error) {
					return target.Invoke(ctx, name, args...)
				},
			})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].label < entries[j].label })
	m.entries = entries
	if m.selected >= len(entries) {
		m.selected = 0
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelect && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelect && m.selected < len(m.entries)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelect:
				if len(m.entries) == 0 {
					return m, nil
				}
				m.prepareInput()
				m.state = stateInputArgs
				return m, nil

			case stateInputArgs:
				return m, m.callEntry(m.entries[m.selected], m.input.Value())

			case stateShowResult:
				m.state = stateSelect
				m.result = ""
				m.err = nil
				m.refresh()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelect
			case stateShowResult:
				m.state = stateSelect
				m.result = ""
				m.err = nil
				m.refresh()
			}
		}

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *interactiveModel) prepareInput() {
	ti := textinput.New()
	ti.Placeholder = `["arg", 1, {"$handle": 3}]`
	ti.Prompt = "args: "
	ti.Width = 60
	ti.Focus()
	m.input = ti
}

func (m *interactiveModel) callEntry(e entry, raw string) tea.Cmd {
	reg := m.reg
	return func() tea.Msg {
		args, err := parseArgs(reg, raw)
		if err != nil {
			return callResultMsg{err: err}
		}
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		v, err := e.call(ctx, args)
		if err != nil {
			return callResultMsg{err: err}
		}
		if aw, ok := v.(async.Awaitable); ok {
			if v, err = async.FromAwaitable(aw).Await(ctx); err != nil {
				return callResultMsg{err: err}
			}
		}
		out, err := json.MarshalIndent(display(v), "", "  ")
		if err != nil {
			return callResultMsg{err: err}
		}
		return callResultMsg{result: string(out)}
	}
}

// parseArgs reads a JSON array of arguments; {"$handle": N} refers to a
// live proxy.
func parseArgs(reg *proxy.Registry, raw string) ([]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("arguments are not valid JSON")
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("arguments must be a JSON array")
	}
	var args []any
	var resolveErr error
	parsed.ForEach(func(_, v gjson.Result) bool {
		if h := v.Get(`\$handle`); v.IsObject() && h.Exists() {
			p, ok := reg.Proxy(resource.Handle(h.Uint()))
			if !ok {
				resolveErr = fmt.Errorf("no live proxy with handle %d", h.Uint())
				return false
			}
			args = append(args, p)
			return true
		}
		args = append(args, v.Value())
		return true
	})
	return args, resolveErr
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("webbind"))
	b.WriteString(fmt.Sprintf(" %d callables\n\n", len(m.entries)))

	switch m.state {
	case stateSelect:
		b.WriteString("Select a method to call:\n\n")
		for i, e := range m.entries {
			line := m.formatEntry(e)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + e.label))
				b.WriteString(" ")
				b.WriteString(typeStyle.Render(strings.Join(e.signatures, " | ")))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		e := m.entries[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(e.label)))
		for _, s := range e.signatures {
			b.WriteString(typeStyle.Render("  " + s))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter call • esc back"))

	case stateShowResult:
		e := m.entries[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(e.label)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatEntry(e entry) string {
	return funcStyle.Render(e.label) + " " + typeStyle.Render(strings.Join(e.signatures, " | "))
}

func runInteractive(reg *proxy.Registry) error {
	p := tea.NewProgram(newInteractiveModel(reg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
