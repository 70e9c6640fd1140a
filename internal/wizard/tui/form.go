package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muurk/nodelink/internal/discovery"
	"github.com/muurk/nodelink/internal/provision"
)

// Form fields, in focus order
const (
	fieldSSID = iota
	fieldPassword
	fieldRestart
	fieldSubmit
	fieldCount
)

// provisionResultMsg carries the outcome of a provisioning exchange
type provisionResultMsg struct {
	SaveReply    string
	RestartReply string
	Err          error
}

// formKeyMap defines key bindings for the credentials form
type formKeyMap struct {
	Next   key.Binding
	Prev   key.Binding
	Toggle key.Binding
	Submit key.Binding
	Back   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k formKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Prev, k.Toggle, k.Submit, k.Back}
}

// FullHelp returns keybindings for the expanded help view
func (k formKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Next, k.Prev}, {k.Toggle, k.Submit, k.Back}}
}

// FormModel collects network credentials for one node and sends them
type FormModel struct {
	Node          *discovery.Node
	SSIDInput     textinput.Model
	PasswordInput textinput.Model
	Restart       bool
	Focus         int

	Sending bool
	Done    bool
	Result  provisionResultMsg
	Err     error

	Width   int
	Height  int
	Spinner spinner.Model
	Help    help.Model
	Keys    formKeyMap

	back     bool
	services Services
}

// NewFormModel creates the credentials form for node
func NewFormModel(node *discovery.Node, services Services) FormModel {
	ssid := textinput.New()
	ssid.Placeholder = "home network name"
	ssid.CharLimit = 32
	ssid.Width = 32
	ssid.Focus()

	password := textinput.New()
	password.Placeholder = "network password"
	password.CharLimit = 64
	password.Width = 32
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	keys := formKeyMap{
		Next:   key.NewBinding(key.WithKeys("tab", "down"), key.WithHelp("tab", "next field")),
		Prev:   key.NewBinding(key.WithKeys("shift+tab", "up"), key.WithHelp("shift+tab", "previous")),
		Toggle: key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "toggle restart")),
		Submit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		Back:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	}

	return FormModel{
		Node:          node,
		SSIDInput:     ssid,
		PasswordInput: password,
		Restart:       true,
		Spinner:       s,
		Help:          help.New(),
		Keys:          keys,
		services:      services,
	}
}

// Init starts the cursor blink
func (m FormModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages and updates the model
func (m FormModel) Update(msg tea.Msg) (FormModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case provisionResultMsg:
		m.Sending = false
		m.Done = true
		m.Result = msg
		m.Err = msg.Err
		return m, nil

	case spinner.TickMsg:
		if !m.Sending {
			return m, nil
		}
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.Sending {
			return m, nil
		}
		return m.updateKeys(msg)
	}

	return m, nil
}

func (m FormModel) updateKeys(msg tea.KeyMsg) (FormModel, tea.Cmd) {
	switch {
	case key.Matches(msg, m.Keys.Back):
		m.back = true
		return m, nil

	case key.Matches(msg, m.Keys.Next):
		return m.setFocus((m.Focus + 1) % fieldCount)

	case key.Matches(msg, m.Keys.Prev):
		return m.setFocus((m.Focus + fieldCount - 1) % fieldCount)

	case m.Focus == fieldRestart && key.Matches(msg, m.Keys.Toggle):
		m.Restart = !m.Restart
		return m, nil

	case key.Matches(msg, m.Keys.Submit):
		if m.Focus != fieldSubmit {
			return m.setFocus(m.Focus + 1)
		}
		return m.submit()
	}

	var cmd tea.Cmd
	switch m.Focus {
	case fieldSSID:
		m.SSIDInput, cmd = m.SSIDInput.Update(msg)
	case fieldPassword:
		m.PasswordInput, cmd = m.PasswordInput.Update(msg)
	}
	return m, cmd
}

func (m FormModel) setFocus(field int) (FormModel, tea.Cmd) {
	m.Focus = field
	m.SSIDInput.Blur()
	m.PasswordInput.Blur()
	switch field {
	case fieldSSID:
		return m, m.SSIDInput.Focus()
	case fieldPassword:
		return m, m.PasswordInput.Focus()
	}
	return m, nil
}

// validate mirrors the node's own acceptance rule so obvious mistakes are
// caught before a round trip
func (m FormModel) validate() error {
	if strings.TrimSpace(m.SSIDInput.Value()) == "" || m.PasswordInput.Value() == "" {
		return fmt.Errorf("SSID and password are required")
	}
	return nil
}

func (m FormModel) submit() (FormModel, tea.Cmd) {
	if err := m.validate(); err != nil {
		m.Err = err
		return m, nil
	}
	m.Err = nil
	m.Sending = true
	return m, tea.Batch(m.Spinner.Tick, sendCredentials(m.services, m.Node.URL(), strings.TrimSpace(m.SSIDInput.Value()), m.PasswordInput.Value(), m.Restart))
}

// sendCredentials dials the node, saves the credentials and optionally asks
// it to restart
func sendCredentials(services Services, url, ssid, password string, restart bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), services.Timeout)
		defer cancel()

		client, err := services.Dial(ctx, url)
		if err != nil {
			return provisionResultMsg{Err: err}
		}
		defer client.Close()

		var result provisionResultMsg
		result.SaveReply, err = client.SaveCredentials(ctx, ssid, password)
		if err != nil {
			result.Err = err
			return result
		}
		if result.SaveReply != provision.ReplySaved {
			result.Err = fmt.Errorf("node rejected credentials: %s", result.SaveReply)
			return result
		}
		if restart {
			result.RestartReply, result.Err = client.Restart(ctx)
		}
		return result
	}
}

// IsBackRequested reports whether the user left the form
func (m FormModel) IsBackRequested() bool {
	return m.back
}

// View renders the form
func (m FormModel) View() string {
	var b strings.Builder

	b.WriteString(RenderTitle("Provision " + m.Node.Instance))
	b.WriteString("\n")
	b.WriteString(RenderSubtitle(m.Node.URL()))
	b.WriteString("\n\n")

	b.WriteString(m.label("  Network SSID: ", fieldSSID))
	b.WriteString(m.SSIDInput.View())
	b.WriteString("\n\n")
	b.WriteString(m.label("  Password:     ", fieldPassword))
	b.WriteString(m.PasswordInput.View())
	b.WriteString("\n\n")

	check := "[ ]"
	if m.Restart {
		check = "[x]"
	}
	b.WriteString(m.label("  "+check+" Restart node after saving", fieldRestart))
	b.WriteString("\n\n")
	b.WriteString(RenderMenuItem("Send credentials", m.Focus == fieldSubmit))
	b.WriteString("\n\n")

	if m.Sending {
		b.WriteString(SpinnerStyle.Render("  " + m.Spinner.View() + " Sending credentials..."))
		b.WriteString("\n")
	}
	if m.Err != nil && !m.Done {
		b.WriteString(RenderError(m.Err.Error()))
		b.WriteString("\n")
	}

	return RenderApplicationContainer(b.String(), m.Help.View(m.Keys), m.Width, m.Height)
}

func (m FormModel) label(text string, field int) string {
	if m.Focus == field {
		return FocusedInputStyle.Render(text)
	}
	return BlurredInputStyle.Render(text)
}
