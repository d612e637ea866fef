package cli

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nexuscore/nexuscore/internal/interfaces/di"
	"github.com/nexuscore/nexuscore/internal/plugins"
)

// DashboardFlags holds command-line flags for the dashboard command.
type DashboardFlags struct {
	RefreshRate time.Duration
}

// NewDashboardCommand creates the dashboard command: a live terminal view
// of per-plugin health.
func NewDashboardCommand(container *di.Container) *cobra.Command {
	flags := &DashboardFlags{}

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Live terminal dashboard of plugin health",
		Long: `Launch an interactive terminal dashboard showing the health of every
registered plugin: request counts, error counts, and the healthy/warning/
error status the health monitor reports.`,
		Example: `  nexuscore dashboard
  nexuscore dashboard --refresh 2s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := container.Loader.LoadAll(cmd.Context()); err != nil {
				return fmt.Errorf("load plugins: %w", err)
			}

			model := newDashboardModel(container, flags)
			program := tea.NewProgram(model, tea.WithAltScreen())
			if _, err := program.Run(); err != nil {
				return fmt.Errorf("dashboard failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&flags.RefreshRate, "refresh", time.Second, "Refresh rate for live updates")
	return cmd
}

type tickMsg time.Time

type dashboardModel struct {
	container    *di.Container
	flags        *DashboardFlags
	report       plugins.HealthReport
	paused       bool
	lastUpdate   time.Time
	windowWidth  int
	windowHeight int
}

func newDashboardModel(container *di.Container, flags *DashboardFlags) dashboardModel {
	return dashboardModel{
		container:  container,
		flags:      flags,
		report:     container.Monitor.Check(),
		lastUpdate: time.Now(),
	}
}

func (m dashboardModel) tickCmd() tea.Cmd {
	return tea.Tick(m.flags.RefreshRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init implements the Bubble Tea init method.
func (m dashboardModel) Init() tea.Cmd {
	return m.tickCmd()
}

// Update implements the Bubble Tea update method.
func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		m.windowHeight = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
			return m, nil
		case "r":
			m.report = m.container.Monitor.Check()
			m.lastUpdate = time.Now()
			return m, nil
		}

	case tickMsg:
		if !m.paused {
			m.report = m.container.Monitor.Check()
			m.lastUpdate = time.Now()
		}
		return m, m.tickCmd()
	}

	return m, nil
}

// View implements the Bubble Tea view method.
func (m dashboardModel) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderHealthTable(),
		m.renderFooter(),
	)
}

func (m dashboardModel) renderHeader() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86")).
		Render("NexusCore Plugin Health")

	summary := fmt.Sprintf("Total: %d | Healthy: %d | Warnings: %d | Errors: %d",
		m.report.Total, m.report.Healthy, m.report.Warnings, m.report.Errors)

	status := "LIVE"
	statusStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
	if m.paused {
		status = "PAUSED"
		statusStyle = statusStyle.Foreground(lipgloss.Color("196"))
	}

	line1 := lipgloss.JoinHorizontal(lipgloss.Left, title, "  ", summary, "  ", statusStyle.Render(status))
	line2 := fmt.Sprintf("Last Update: %s | Refresh Rate: %v",
		m.lastUpdate.Format("15:04:05"), m.flags.RefreshRate)

	return lipgloss.JoinVertical(lipgloss.Left, line1, line2, "")
}

func (m dashboardModel) renderHealthTable() string {
	if len(m.report.Plugins) == 0 {
		return lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Render("\n  No active plugins registered.\n")
	}

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86")).
		Render(fmt.Sprintf("%-30s │ %-8s │ %10s │ %8s │ %s",
			"PLUGIN", "STATUS", "REQUESTS", "ERRORS", "LAST USED"))

	rows := []string{header}
	for _, p := range m.report.Plugins {
		lastUsed := "never"
		if !p.LastUsed.IsZero() {
			lastUsed = p.LastUsed.Format("15:04:05")
		}
		row := fmt.Sprintf("%-30s │ %-8s │ %10d │ %8d │ %s",
			p.Key, p.Status, p.RequestCount, p.ErrorCount, lastUsed)
		rows = append(rows, statusStyleFor(p.Status).Render(row))
	}

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m dashboardModel) renderFooter() string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Render("\n  q: quit │ space: pause │ r: refresh")
}

func statusStyleFor(status plugins.HealthStatus) lipgloss.Style {
	switch status {
	case plugins.StatusError:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	case plugins.StatusWarning:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	}
}
