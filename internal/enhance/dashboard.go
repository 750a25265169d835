package enhance

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	dashTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	dashMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dashOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	dashPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type dashSnapshotMsg Snapshot

type dashQuitMsg struct{}

type dashModel struct {
	bar      progress.Model
	snap     Snapshot
	hasSnap  bool
	finished bool
	width    int
}

func newDashModel() dashModel {
	return dashModel{
		bar: progress.New(progress.WithDefaultGradient()),
	}
}

func (m dashModel) Init() tea.Cmd {
	return nil
}

func (m dashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = msg.Width - 8
		if m.bar.Width > 72 {
			m.bar.Width = 72
		}
		return m, nil
	case dashSnapshotMsg:
		m.snap = Snapshot(msg)
		m.hasSnap = true
		m.finished = m.snap.Finished
		return m, nil
	case dashQuitMsg:
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m dashModel) View() string {
	if !m.hasSnap {
		return dashMutedStyle.Render("waiting for first progress sample...") + "\n"
	}
	s := m.snap
	var b strings.Builder
	b.WriteString(dashTitleStyle.Render(fmt.Sprintf("%s  batches %s", s.Stage, s.Range)))
	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(s.Percent() / 100))
	b.WriteString("\n")
	line := fmt.Sprintf("%d/%d frames | %.1f fps | elapsed %s",
		s.Done, s.Total, s.Throughput, s.Elapsed.Round(time.Second))
	if s.ETA > 0 {
		line += fmt.Sprintf(" | eta ~ %s", s.ETA.Round(time.Second))
	}
	b.WriteString(dashMutedStyle.Render(line))
	if m.finished {
		b.WriteString("\n")
		b.WriteString(dashOKStyle.Render("stage complete"))
	}
	return dashPanelStyle.Render(b.String()) + "\n"
}

// Dashboard renders monitor snapshots as a live terminal panel. Snapshots
// arriving before Start or after Stop are dropped.
type Dashboard struct {
	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
}

func NewDashboard() *Dashboard {
	return &Dashboard{}
}

func (d *Dashboard) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.program != nil {
		return
	}
	d.program = tea.NewProgram(newDashModel())
	d.done = make(chan struct{})
	go func(p *tea.Program, done chan struct{}) {
		defer close(done)
		_, _ = p.Run()
	}(d.program, d.done)
}

func (d *Dashboard) Send(snap Snapshot) {
	d.mu.Lock()
	p := d.program
	d.mu.Unlock()
	if p != nil {
		p.Send(dashSnapshotMsg(snap))
	}
}

func (d *Dashboard) Stop() {
	d.mu.Lock()
	p := d.program
	done := d.done
	d.program = nil
	d.mu.Unlock()
	if p == nil {
		return
	}
	p.Send(dashQuitMsg{})
	<-done
}
