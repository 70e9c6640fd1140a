package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muurk/nodelink/internal/discovery"
	"github.com/muurk/nodelink/internal/provision"
)

// Screen represents the current active screen in the application
type Screen string

const (
	ScreenDiscovery Screen = "discovery"
	ScreenForm      Screen = "form"
	ScreenSuccess   Screen = "success"
	ScreenFailure   Screen = "failure"
)

// ScanFunc discovers nodes in provisioning mode
type ScanFunc func() ([]*discovery.Node, error)

// Provisioner is the client side of the provisioning channel
type Provisioner interface {
	SaveCredentials(ctx context.Context, ssid, password string) (string, error)
	Restart(ctx context.Context) (string, error)
	Close() error
}

// Services are the network operations the wizard performs
type Services struct {
	Scan    ScanFunc
	Dial    func(ctx context.Context, url string) (Provisioner, error)
	Timeout time.Duration // Per provisioning exchange
	ScanFor time.Duration // Scan duration shown in the progress bar
}

// DefaultServices scans with mDNS and provisions over WebSocket
func DefaultServices(scanTimeout time.Duration) Services {
	return Services{
		Scan: func() ([]*discovery.Node, error) {
			scanner := discovery.NewScanner()
			scanner.Timeout = scanTimeout
			return scanner.ScanForNodes(context.Background())
		},
		Dial: func(ctx context.Context, url string) (Provisioner, error) {
			client, err := provision.Dial(ctx, url)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
		Timeout: provision.DefaultTimeout,
		ScanFor: scanTimeout,
	}
}

// resultKeyMap defines key bindings for the result screens
type resultKeyMap struct {
	Again    key.Binding
	Discover key.Binding
	Quit     key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k resultKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Again, k.Discover, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k resultKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Again, k.Discover, k.Quit}}
}

// AppModel is the top-level coordinator model that manages screen transitions
type AppModel struct {
	CurrentScreen Screen

	DiscoveryModel DiscoveryModel
	FormModel      FormModel

	SelectedNode *discovery.Node
	LastResult   provisionResultMsg

	Width  int
	Height int

	Help       help.Model
	ResultKeys resultKeyMap

	services Services
}

// NewAppModel creates a new application model. A non-nil node skips
// discovery and opens the credentials form directly.
func NewAppModel(services Services, node *discovery.Node) AppModel {
	m := AppModel{
		Help: help.New(),
		ResultKeys: resultKeyMap{
			Again:    key.NewBinding(key.WithKeys("e", "enter"), key.WithHelp("e", "edit and resend")),
			Discover: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "discover")),
			Quit:     key.NewBinding(key.WithKeys("q", "esc"), key.WithHelp("q", "quit")),
		},
		services: services,
	}

	if node != nil {
		m.SelectedNode = node
		m.CurrentScreen = ScreenForm
		m.FormModel = NewFormModel(node, services)
		return m
	}

	m.CurrentScreen = ScreenDiscovery
	m.DiscoveryModel = NewDiscoveryModel(services.Scan, services.ScanFor)
	return m
}

// Init initializes the current screen
func (m AppModel) Init() tea.Cmd {
	switch m.CurrentScreen {
	case ScreenDiscovery:
		return m.DiscoveryModel.Init()
	case ScreenForm:
		return m.FormModel.Init()
	default:
		return nil
	}
}

// Update handles all messages and routes them to the appropriate screen
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		switch m.CurrentScreen {
		case ScreenDiscovery:
			m.DiscoveryModel, _ = m.DiscoveryModel.Update(msg)
		case ScreenForm:
			m.FormModel, _ = m.FormModel.Update(msg)
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}

	switch m.CurrentScreen {
	case ScreenDiscovery:
		return m.updateDiscovery(msg)
	case ScreenForm:
		return m.updateForm(msg)
	case ScreenSuccess, ScreenFailure:
		return m.updateResult(msg)
	}
	return m, nil
}

func (m AppModel) updateDiscovery(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && !m.DiscoveryModel.ManualMode && !m.DiscoveryModel.Scanning {
		if key.Matches(keyMsg, m.DiscoveryModel.Keys.Quit) {
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.DiscoveryModel, cmd = m.DiscoveryModel.Update(msg)

	if node := m.DiscoveryModel.SelectedNode(); node != nil {
		m.DiscoveryModel.Selected = false
		m.SelectedNode = node
		return m.transitionTo(ScreenForm)
	}
	return m, cmd
}

func (m AppModel) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.FormModel, cmd = m.FormModel.Update(msg)

	if m.FormModel.IsBackRequested() {
		return m.transitionTo(ScreenDiscovery)
	}

	if m.FormModel.Done {
		m.LastResult = m.FormModel.Result
		if m.LastResult.Err != nil {
			m.CurrentScreen = ScreenFailure
		} else {
			m.CurrentScreen = ScreenSuccess
		}
		return m, nil
	}
	return m, cmd
}

func (m AppModel) updateResult(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(keyMsg, m.ResultKeys.Again):
		form := m.FormModel
		form.Done = false
		form.Err = nil
		form.Result = provisionResultMsg{}
		m.FormModel = form
		m.CurrentScreen = ScreenForm
		return m, nil
	case key.Matches(keyMsg, m.ResultKeys.Discover):
		return m.transitionTo(ScreenDiscovery)
	case key.Matches(keyMsg, m.ResultKeys.Quit):
		return m, tea.Quit
	}
	return m, nil
}

// transitionTo initializes and enters a screen
func (m AppModel) transitionTo(screen Screen) (tea.Model, tea.Cmd) {
	m.CurrentScreen = screen

	switch screen {
	case ScreenDiscovery:
		m.DiscoveryModel = NewDiscoveryModel(m.services.Scan, m.services.ScanFor)
		m.DiscoveryModel.Width, m.DiscoveryModel.Height = m.Width, m.Height
		return m, m.DiscoveryModel.Init()

	case ScreenForm:
		m.FormModel = NewFormModel(m.SelectedNode, m.services)
		m.FormModel.Width, m.FormModel.Height = m.Width, m.Height
		return m, m.FormModel.Init()
	}
	return m, nil
}

// View renders the current screen
func (m AppModel) View() string {
	switch m.CurrentScreen {
	case ScreenDiscovery:
		return m.DiscoveryModel.View()
	case ScreenForm:
		return m.FormModel.View()
	case ScreenSuccess:
		return RenderApplicationContainer(m.buildSuccessContent(), m.Help.View(m.ResultKeys), m.Width, m.Height)
	case ScreenFailure:
		return RenderApplicationContainer(m.buildFailureContent(), m.Help.View(m.ResultKeys), m.Width, m.Height)
	default:
		return "Unknown screen"
	}
}

func (m AppModel) buildSuccessContent() string {
	var b strings.Builder

	b.WriteString(RenderTitle("✓ Credentials Sent"))
	b.WriteString("\n\n")
	b.WriteString(RenderSuccess("Node replied: " + m.LastResult.SaveReply))
	b.WriteString("\n\n")

	if m.LastResult.RestartReply != "" {
		b.WriteString("  Node replied to restart: " + m.LastResult.RestartReply + "\n")
		b.WriteString("  It will leave provisioning mode and join the new network.\n\n")
	} else {
		b.WriteString("  The node keeps provisioning until it restarts.\n\n")
	}

	b.WriteString(MenuItemStyle.Render("  e - Edit and resend"))
	b.WriteString("\n")
	b.WriteString(MenuItemStyle.Render("  d - Discover another node"))
	b.WriteString("\n")
	b.WriteString(MenuItemStyle.Render("  q - Exit"))
	b.WriteString("\n")
	return b.String()
}

func (m AppModel) buildFailureContent() string {
	var b strings.Builder

	b.WriteString(RenderTitle("✗ Provisioning Failed"))
	b.WriteString("\n\n")
	if m.LastResult.Err != nil {
		b.WriteString(RenderError(m.LastResult.Err.Error()))
		b.WriteString("\n\n")
	}

	b.WriteString("Troubleshooting:\n")
	if provision.IsRetryable(m.LastResult.Err) {
		b.WriteString("  • Check you are still joined to the node's provisioning network\n")
		b.WriteString("  • The node may have restarted; rescan with 'd'\n")
	} else {
		b.WriteString("  • The node answered but did not accept the request\n")
		b.WriteString("  • Check the SSID and password and resend with 'e'\n")
	}
	b.WriteString("\n")

	b.WriteString(MenuItemStyle.Render("  e - Edit and resend"))
	b.WriteString("\n")
	b.WriteString(MenuItemStyle.Render("  d - Discover again"))
	b.WriteString("\n")
	b.WriteString(MenuItemStyle.Render("  q - Exit"))
	b.WriteString("\n")
	return b.String()
}
