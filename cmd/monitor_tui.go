// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/lumen/internal/gatt"
	"github.com/Thermoquad/lumen/pkg/bluefruit"
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// charItem is one characteristic in the list
type charItem struct {
	char  bluefruit.Characteristic
	value *bluefruit.Value
}

func (i charItem) Title() string { return fmt.Sprintf("%2d %s", i.char.Index, i.char.Name) }

func (i charItem) Description() string {
	access := "published"
	if i.char.Access == bluefruit.WriteOnly {
		access = "intake"
	}
	switch {
	case i.value == nil:
		return access + " | -"
	case i.value.IsSentinel():
		return access + " | unset"
	case i.char.Unit != "":
		return fmt.Sprintf("%s | %s %s", access, i.value, i.char.Unit)
	default:
		return fmt.Sprintf("%s | %s", access, i.value)
	}
}

func (i charItem) FilterValue() string { return i.char.Name }

// Messages
type monitorTickMsg time.Time

type readingsMsg struct {
	values    map[int]bluefruit.Value
	connected bool
	err       error
}

type writeDoneMsg struct {
	name string
	err  error
}

// Monitor model
type monitorModel struct {
	sess     *session
	connInfo string
	interval time.Duration
	started  time.Time

	chars   list.Model
	input   textinput.Model
	editing bool
	spin    spinner.Model
	polling bool

	connected     bool
	log           []logEntry
	maxLogEntries int

	width    int
	height   int
	quitting bool
}

func initialMonitorModel(sess *session, interval time.Duration) monitorModel {
	items := make([]list.Item, 0, gatt.Characteristics.Len())
	for _, c := range gatt.Characteristics.All() {
		items = append(items, charItem{char: c})
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	chars := list.New(items, delegate, 40, 20)
	chars.Title = "Characteristics"
	chars.SetShowStatusBar(false)
	chars.SetShowHelp(false)
	chars.SetFilteringEnabled(false)

	ti := textinput.New()
	ti.Placeholder = "value"
	ti.CharLimit = 16
	ti.Width = 16

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return monitorModel{
		sess:          sess,
		connInfo:      sess.link.info,
		interval:      interval,
		started:       time.Now(),
		chars:         chars,
		input:         ti,
		spin:          sp,
		polling:       true, // Init starts the first poll
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, pollCmd(m.sess))
}

func monitorTickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

// pollCmd reads every characteristic and the connection state
func pollCmd(sess *session) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		values := make(map[int]bluefruit.Value)
		for _, c := range gatt.Characteristics.All() {
			v, err := c.ReadContext(ctx, sess.d)
			if err != nil {
				return readingsMsg{values: values, err: fmt.Errorf("%s: %w", c.Name, err)}
			}
			values[c.Index] = v
		}
		connected, err := bluefruit.Connected(ctx, sess.d)
		return readingsMsg{values: values, connected: connected, err: err}
	}
}

// writeCmd writes a value to an intake characteristic
func writeCmd(sess *session, c bluefruit.Characteristic, v bluefruit.Value) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return writeDoneMsg{name: c.Name, err: c.WriteContext(ctx, sess.d, v)}
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.editing {
			return m.handleEditKey(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "e", "enter":
			item, ok := m.chars.SelectedItem().(charItem)
			if !ok {
				return m, nil
			}
			if item.char.Access != bluefruit.WriteOnly {
				m.addLogEntry(fmt.Sprintf("%s is published by the node", item.char.Name), true)
				return m, nil
			}
			m.editing = true
			m.input.SetValue("")
			m.input.Placeholder = item.char.Unit
			return m, m.input.Focus()
		case "r":
			if !m.polling {
				m.polling = true
				return m, pollCmd(m.sess)
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.chars, cmd = m.chars.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chars.SetSize(m.width/2, m.height-6)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case monitorTickMsg:
		// the poll in flight schedules the next tick
		if m.polling {
			return m, nil
		}
		m.polling = true
		return m, pollCmd(m.sess)

	case readingsMsg:
		m.polling = false
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("READ ERROR: %v", msg.err), true)
		}
		if msg.connected != m.connected && msg.err == nil {
			m.connected = msg.connected
			if m.connected {
				m.addLogEntry("Central connected", false)
			} else {
				m.addLogEntry("Central disconnected", false)
			}
		}
		items := m.chars.Items()
		for i, it := range items {
			ci := it.(charItem)
			if v, ok := msg.values[ci.char.Index]; ok {
				ci.value = &v
				items[i] = ci
			}
		}
		cmd := m.chars.SetItems(items)
		return m, tea.Batch(cmd, monitorTickCmd(m.interval))

	case writeDoneMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("WRITE ERROR: %s: %v", msg.name, msg.err), true)
		} else {
			m.addLogEntry(fmt.Sprintf("Wrote %s", msg.name), false)
		}
	}

	return m, nil
}

func (m monitorModel) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.editing = false
		m.input.Blur()
		return m, nil
	case "enter":
		m.editing = false
		m.input.Blur()
		item, ok := m.chars.SelectedItem().(charItem)
		if !ok {
			return m, nil
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(m.input.Value()), 64)
		if err != nil {
			m.addLogEntry(fmt.Sprintf("Invalid value %q", m.input.Value()), true)
			return m, nil
		}
		v, err := item.char.Format.ParseFloat(x)
		if err != nil {
			m.addLogEntry(fmt.Sprintf("%s: %v", item.char.Name, err), true)
			return m, nil
		}
		return m, writeCmd(m.sess, item.char, v)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.log = append(m.log, logEntry{timestamp: time.Now(), message: message, isError: isError})

	// Keep only last N entries
	if len(m.log) > m.maxLogEntries {
		m.log = m.log[len(m.log)-m.maxLogEntries:]
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("LUMEN - MODULE MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Poll: %s | 'e' edit, 'r' refresh, 'q' quit",
		m.connInfo, m.interval)))
	s.WriteString("\n\n")

	// Right pane: status, link statistics, events
	var right strings.Builder
	status := statsValueStyle.Render("✓ Central connected")
	if !m.connected {
		status = warningStyle.Render("○ No central")
	}
	right.WriteString(status)
	if m.polling {
		right.WriteString(" " + m.spin.View())
	}
	right.WriteString("\n")
	right.WriteString(fmt.Sprintf("%s %s\n",
		statsLabelStyle.Render("Session:"), statsValueStyle.Render(formatUptime(uint64(time.Since(m.started).Milliseconds())))))

	c := m.sess.tr.Stats().Snapshot()
	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		statsLabelStyle.Render("Commands:"), statsValueStyle.Render(fmt.Sprintf("%d", c.Commands)),
		statsLabelStyle.Render("Responses:"), statsValueStyle.Render(fmt.Sprintf("%d", c.Responses)),
	))
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		statsLabelStyle.Render("Frames TX:"), statsValueStyle.Render(fmt.Sprintf("%d", c.FramesSent)),
		statsLabelStyle.Render("Frames RX:"), statsValueStyle.Render(fmt.Sprintf("%d", c.FramesReceived)),
	))
	errCount := c.Errors()
	errText := statsValueStyle.Render(fmt.Sprintf("%d", errCount))
	if errCount > 0 {
		errText = errorStyle.Render(fmt.Sprintf("%d (timeouts %d, remote %d, link %d)",
			errCount, c.Timeouts, c.RemoteErrors, c.LinkErrors))
	}
	statsContent.WriteString(fmt.Sprintf("%s %s", statsLabelStyle.Render("Errors:"), errText))
	right.WriteString(boxStyle.Render(statsContent.String()))
	right.WriteString("\n\n")

	if m.editing {
		right.WriteString(statsLabelStyle.Render("New value: "))
		right.WriteString(m.input.View())
		right.WriteString("\n\n")
	}

	right.WriteString(statsLabelStyle.Render("Recent Events:"))
	right.WriteString("\n")
	logHeight := max(m.height-20, 5)
	startIdx := max(len(m.log)-logHeight, 0)
	logContent := strings.Builder{}
	if len(m.log) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for _, entry := range m.log[startIdx:] {
		timestamp := entry.timestamp.Format("15:04:05.000")
		if entry.isError {
			logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), errorStyle.Render("✗ "+entry.message)))
		} else {
			logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), warningStyle.Render("ℹ "+entry.message)))
		}
	}
	right.WriteString(boxStyle.Width(max(m.width/2-4, 20)).Render(logContent.String()))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, m.chars.View(), "  ", right.String()))
	return s.String()
}

// formatUptime formats uptime in milliseconds to human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24
	months := days / 30
	years := months / 12

	seconds %= 60
	minutes %= 60
	hours %= 24
	days %= 30
	months %= 12

	parts := []string{}
	if years > 0 {
		if years == 1 {
			parts = append(parts, "1 year")
		} else {
			parts = append(parts, fmt.Sprintf("%d years", years))
		}
	}
	if months > 0 {
		if months == 1 {
			parts = append(parts, "1 month")
		} else {
			parts = append(parts, fmt.Sprintf("%d months", months))
		}
	}
	if days > 0 {
		if days == 1 {
			parts = append(parts, "1 day")
		} else {
			parts = append(parts, fmt.Sprintf("%d days", days))
		}
	}
	if hours > 0 {
		if hours == 1 {
			parts = append(parts, "1 hour")
		} else {
			parts = append(parts, fmt.Sprintf("%d hours", hours))
		}
	}
	if minutes > 0 {
		if minutes == 1 {
			parts = append(parts, "1 minute")
		} else {
			parts = append(parts, fmt.Sprintf("%d minutes", minutes))
		}
	}
	if seconds > 0 || len(parts) == 0 {
		if seconds == 1 {
			parts = append(parts, "1 second")
		} else {
			parts = append(parts, fmt.Sprintf("%d seconds", seconds))
		}
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}
