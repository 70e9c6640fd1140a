package tui

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muurk/nodelink/internal/discovery"
	"github.com/muurk/nodelink/internal/provision"
)

// Messages for async operations
type scanStartMsg struct{}
type scanCompleteMsg struct {
	nodes []*discovery.Node
	err   error
}

// discoveryKeyMap defines key bindings for the node list
type discoveryKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Enter  key.Binding
	Rescan key.Binding
	Manual key.Binding
	Quit   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k discoveryKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Enter, k.Rescan, k.Manual, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k discoveryKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Enter},
		{k.Rescan, k.Manual, k.Quit},
	}
}

// manualModeKeyMap defines key bindings for manual address entry
type manualModeKeyMap struct {
	Confirm key.Binding
	Cancel  key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (m manualModeKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{m.Confirm, m.Cancel}
}

// FullHelp returns keybindings for the expanded help view
func (m manualModeKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{m.Confirm, m.Cancel}}
}

// nodeItem wraps a Node for use with bubbles/list
type nodeItem struct {
	node *discovery.Node
}

// FilterValue implements list.Item
func (n nodeItem) FilterValue() string {
	return n.node.Instance + " " + n.node.IP + " " + n.node.MAC
}

// nodeDelegate renders one node card
type nodeDelegate struct {
	width int
}

func (d nodeDelegate) Height() int { return 6 }

func (d nodeDelegate) Spacing() int { return 1 }

func (d nodeDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d nodeDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ni, ok := item.(nodeItem)
	if !ok {
		return
	}
	node := ni.node
	selected := index == m.Index()

	var content strings.Builder
	if selected {
		content.WriteString(SelectedMenuItemStyle.Render("→ " + node.Instance))
	} else {
		content.WriteString("  " + node.Instance)
	}
	content.WriteString("\n")

	mac := node.MAC
	if mac == "" {
		mac = "unknown"
	}
	content.WriteString(fmt.Sprintf("  Address: %s\n", node.URL()))
	content.WriteString(fmt.Sprintf("  MAC:     %s", mac))

	cardWidth := d.width - 6
	if cardWidth < MinTerminalWidth-6 {
		cardWidth = MinTerminalWidth - 6
	}
	if cardWidth > MaxContentWidth-6 {
		cardWidth = MaxContentWidth - 6
	}

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(BorderColor).
		Padding(0, 2).
		MarginLeft(2).
		Width(cardWidth)
	if selected {
		cardStyle = cardStyle.BorderForeground(HighlightColor)
	}

	fmt.Fprint(w, cardStyle.Render(content.String()))
}

// DiscoveryModel represents the node discovery screen state
type DiscoveryModel struct {
	Scanning bool
	NodeList list.Model
	Selected bool
	Err      error

	ManualMode   bool
	AddressInput textinput.Model

	Width         int
	Height        int
	Spinner       spinner.Model
	ProgressBar   progress.Model
	ScanStartTime time.Time
	ScanTimeout   time.Duration
	Help          help.Model
	Keys          discoveryKeyMap
	ManualKeys    manualModeKeyMap

	scan ScanFunc
}

// NewDiscoveryModel creates a new discovery screen model
func NewDiscoveryModel(scan ScanFunc, timeout time.Duration) DiscoveryModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	addressInput := textinput.New()
	addressInput.Placeholder = "192.168.4.1:8080"
	addressInput.CharLimit = 64
	addressInput.Width = 30

	progressBar := progress.New(progress.WithDefaultGradient())
	progressBar.Width = 40

	nodeList := list.New([]list.Item{}, nodeDelegate{width: MinTerminalWidth}, 0, 0)
	nodeList.Title = "Nodes in provisioning mode"
	nodeList.SetShowStatusBar(false)
	nodeList.SetFilteringEnabled(true)
	nodeList.Styles.Title = TitleStyle

	keys := discoveryKeyMap{
		Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "move up")),
		Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "move down")),
		Enter:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "provision")),
		Rescan: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rescan")),
		Manual: key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "manual address")),
		Quit:   key.NewBinding(key.WithKeys("q", "esc"), key.WithHelp("q", "quit")),
	}
	manualKeys := manualModeKeyMap{
		Confirm: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "confirm")),
		Cancel:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
	}

	return DiscoveryModel{
		NodeList:     nodeList,
		AddressInput: addressInput,
		Spinner:      s,
		ProgressBar:  progressBar,
		ScanTimeout:  timeout,
		Help:         help.New(),
		Keys:         keys,
		ManualKeys:   manualKeys,
		scan:         scan,
	}
}

// Init starts scanning immediately
func (m DiscoveryModel) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return scanStartMsg{} },
		m.scanCmd(),
		m.Spinner.Tick,
	)
}

func (m DiscoveryModel) scanCmd() tea.Cmd {
	scan := m.scan
	return func() tea.Msg {
		nodes, err := scan()
		return scanCompleteMsg{nodes: nodes, err: err}
	}
}

// Update handles messages and updates the model
func (m DiscoveryModel) Update(msg tea.Msg) (DiscoveryModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.ManualMode {
			return m.updateManualMode(msg)
		}
		if m.Scanning {
			if msg.String() == "m" {
				m.ManualMode = true
				m.AddressInput.SetValue("")
				m.AddressInput.Focus()
			}
			return m, nil
		}
		return m.updateNormalMode(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.NodeList.SetDelegate(nodeDelegate{width: msg.Width})
		m.NodeList.SetWidth(msg.Width - 4)
		m.NodeList.SetHeight(msg.Height - 10)
		return m, nil

	case scanStartMsg:
		m.Scanning = true
		m.ScanStartTime = time.Now()
		return m, nil

	case scanCompleteMsg:
		m.Scanning = false
		m.Err = msg.err
		items := make([]list.Item, 0, len(msg.nodes)+len(m.NodeList.Items()))
		for _, it := range m.NodeList.Items() {
			if ni, ok := it.(nodeItem); ok && ni.node.Instance == manualInstance {
				items = append(items, it)
			}
		}
		for _, n := range msg.nodes {
			items = append(items, nodeItem{node: n})
		}
		m.NodeList.SetItems(items)
		return m, nil

	case spinner.TickMsg:
		if !m.Scanning {
			return m, nil
		}
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// updateNormalMode handles keyboard input in the node list
func (m DiscoveryModel) updateNormalMode(msg tea.KeyMsg) (DiscoveryModel, tea.Cmd) {
	if m.NodeList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.NodeList, cmd = m.NodeList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.Keys.Enter):
		if m.NodeList.SelectedItem() != nil {
			m.Selected = true
		}
		return m, nil

	case key.Matches(msg, m.Keys.Rescan):
		m.Err = nil
		return m, tea.Batch(
			func() tea.Msg { return scanStartMsg{} },
			m.scanCmd(),
			m.Spinner.Tick,
		)

	case key.Matches(msg, m.Keys.Manual):
		m.ManualMode = true
		m.AddressInput.SetValue("")
		m.AddressInput.Focus()
		return m, textinput.Blink
	}

	var cmd tea.Cmd
	m.NodeList, cmd = m.NodeList.Update(msg)
	return m, cmd
}

// manualInstance names nodes entered by address rather than discovered
const manualInstance = "manual"

// updateManualMode handles keyboard input in manual address entry mode
func (m DiscoveryModel) updateManualMode(msg tea.KeyMsg) (DiscoveryModel, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.ManualMode = false
		m.AddressInput.SetValue("")
		m.AddressInput.Blur()
		return m, nil

	case "enter":
		node, err := manualNode(m.AddressInput.Value())
		if err != nil {
			m.Err = err
			return m, nil
		}
		m.Err = nil
		items := append([]list.Item{nodeItem{node: node}}, m.NodeList.Items()...)
		m.NodeList.SetItems(items)
		m.NodeList.Select(0)
		m.ManualMode = false
		m.AddressInput.SetValue("")
		m.AddressInput.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.AddressInput, cmd = m.AddressInput.Update(msg)
	return m, cmd
}

// manualNode builds a provisioning node from "host" or "host:port"
func manualNode(addr string) (*discovery.Node, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("enter the node address")
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		host, portStr = addr, ""
	}
	port := 8080
	if portStr != "" {
		port, err = strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid port %q", portStr)
		}
	}

	return &discovery.Node{
		Instance:     manualInstance,
		IP:           host,
		Port:         port,
		Path:         provision.DefaultPath,
		DiscoveredAt: time.Now(),
	}, nil
}

// SelectedNode returns the selected node (if any)
func (m DiscoveryModel) SelectedNode() *discovery.Node {
	if !m.Selected {
		return nil
	}
	if ni, ok := m.NodeList.SelectedItem().(nodeItem); ok {
		return ni.node
	}
	return nil
}

// View renders the discovery screen
func (m DiscoveryModel) View() string {
	width := m.Width
	if width == 0 {
		width = MinTerminalWidth
	}

	var content, helpText string
	switch {
	case m.ManualMode:
		content = m.renderManualEntry()
		helpText = m.Help.View(m.ManualKeys)
	case m.Scanning:
		content = m.renderScanning(width)
		helpText = "m manual address • ctrl+c quit"
	default:
		content = m.renderResults()
		helpText = m.Help.View(m.Keys)
	}

	return RenderApplicationContainer(content, helpText, m.Width, m.Height)
}

// renderScanning renders a centered scanning progress display
func (m DiscoveryModel) renderScanning(width int) string {
	elapsed := time.Since(m.ScanStartTime)
	fraction := 1.0
	if m.ScanTimeout > 0 && elapsed < m.ScanTimeout {
		fraction = float64(elapsed) / float64(m.ScanTimeout)
	}

	content := lipgloss.JoinVertical(lipgloss.Center,
		"",
		TitleStyle.Render(fmt.Sprintf("%s SEARCHING FOR NODES", m.Spinner.View())),
		SubtitleStyle.Render("Looking for "+discovery.ServiceType(discovery.KindProvisioning)+" advertisements..."),
		"",
		m.ProgressBar.ViewAs(fraction),
		"",
	)
	return lipgloss.Place(width, 0, lipgloss.Center, lipgloss.Top, content)
}

// renderResults renders the node list or a "no nodes found" message
func (m DiscoveryModel) renderResults() string {
	var b strings.Builder
	b.WriteString("\n")

	if m.Err != nil {
		b.WriteString(RenderError(m.Err.Error()))
		b.WriteString("\n\n")
	}

	if len(m.NodeList.Items()) == 0 {
		b.WriteString("  ")
		b.WriteString(WarningStyle.Render("⚠ No nodes in provisioning mode found"))
		b.WriteString("\n\n")
		b.WriteString("  Troubleshooting:\n")
		b.WriteString("    • Join the node's provisioning network first\n")
		b.WriteString("    • A node only provisions when it has no saved network\n")
		b.WriteString("    • Press 'm' to enter the node address manually\n")
		return b.String()
	}

	b.WriteString(m.NodeList.View())
	return b.String()
}

// renderManualEntry renders the manual address entry dialog
func (m DiscoveryModel) renderManualEntry() string {
	var b strings.Builder
	b.WriteString(RenderSubtitle("Enter node address (host or host:port)"))
	b.WriteString("\n\n  Address: ")
	b.WriteString(m.AddressInput.View())
	b.WriteString("\n\n")
	if m.Err != nil {
		b.WriteString(RenderError(m.Err.Error()))
	}
	return b.String()
}
