package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/climatepart/internal/pipeline"
)

var (
	titleStyle              = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	errorStyle              = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle               = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	progressBarStyle        = lipgloss.NewStyle().Padding(0, 1)
	stepProgressHeaderStyle = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	stepStatusStyle         = map[string]lipgloss.Style{
		string(pipeline.StatusRunning): lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		string(pipeline.StatusDone):    lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		string(pipeline.StatusSkipped): lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		string(pipeline.StatusFailed):  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

type StepProgress struct {
	Name    string
	Status  string
	ErrMsg  string
	Elapsed time.Duration
}

// AppModel shows a single pipeline run: spinner, overall progress bar and one row per step.
type AppModel struct {
	Title            string
	State            AppState
	spinner          spinner.Model
	overallProgress  progress.Model
	progressBarWidth int

	mu             sync.RWMutex
	stepProgress   map[string]*StepProgress
	stepOrder      []string
	overallTotal   int64
	overallCurrent int64
	currentTaskTag string
	lastActivity   string

	Result   pipeline.Result
	FatalErr error
	Quitting bool

	termWidth  int
	termHeight int

	uiMsgChan chan any
}

func NewAppModel(title string, uiMsgChan chan any) *AppModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &AppModel{
		Title:           title,
		State:           Running,
		spinner:         s,
		overallProgress: progress.New(progress.WithDefaultGradient()),
		stepProgress:    make(map[string]*StepProgress),
		termWidth:       100,
		termHeight:      30,
		uiMsgChan:       uiMsgChan,
	}
}

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForActivityCmd(m.uiMsgChan))
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.Quitting = true
			m.State = Exiting
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.termWidth = msg.Width
		m.termHeight = msg.Height
		m.progressBarWidth = max(0, m.termWidth-4)
		m.overallProgress.Width = m.progressBarWidth
	case ProgressMsg:
		m.mu.Lock()
		m.currentTaskTag = msg.Tag
		m.overallCurrent = msg.Current
		m.overallTotal = msg.Total
		m.lastActivity = msg.Activity
		m.mu.Unlock()
	case StepProgressMsg:
		m.mu.Lock()
		sp, ok := m.stepProgress[msg.StepID]
		if !ok {
			sp = &StepProgress{Name: msg.Name}
			m.stepProgress[msg.StepID] = sp
			m.stepOrder = append(m.stepOrder, msg.StepID)
		}
		sp.Status = msg.Status
		sp.ErrMsg = msg.ErrMsg
		sp.Elapsed = msg.ElapsedTime
		m.mu.Unlock()
	case TaskFinishedMsg:
		m.Result = msg.Result
		m.FatalErr = msg.Err
		m.uiMsgChan = nil
		if msg.Err != nil {
			m.State = ShowError
		} else {
			m.State = Finished
		}
		return m, tea.Quit
	case spinner.TickMsg:
		if m.State == Running {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	switch msg.(type) {
	case ProgressMsg, StepProgressMsg:
		cmds = append(cmds, m.waitForActivityCmd(m.uiMsgChan))
	}
	return m, tea.Batch(cmds...)
}

func (m *AppModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.Title))
	b.WriteString("\n\n")

	switch m.State {
	case Running:
		b.WriteString(m.viewProgress())
		b.WriteString("\n")
		b.WriteString(infoStyle.Render("Run in progress... 'q' or Ctrl+C to cancel."))
	case Finished:
		b.WriteString(m.viewProgress())
	case ShowError:
		b.WriteString(m.viewProgress())
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Run failed:"))
		b.WriteString("\n")
		b.WriteString(wrapText(m.FatalErr.Error(), m.termWidth-4))
	case Exiting:
		b.WriteString(infoStyle.Render("Cancelling..."))
	}
	b.WriteString("\n")
	return b.String()
}

func (m *AppModel) viewProgress() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s Stage: %s %s\n", m.spinner.View(), m.currentTaskTag, m.lastActivity))
	b.WriteString(progressBarStyle.Render(m.overallProgress.ViewAs(m.percent())))
	b.WriteString(fmt.Sprintf(" (%d/%d)\n\n", m.overallCurrent, m.overallTotal))

	maxLines := max(1, m.termHeight-10)
	startIdx := 0
	if len(m.stepOrder) > maxLines {
		startIdx = len(m.stepOrder) - maxLines
	}
	if len(m.stepOrder) == 0 {
		return b.String()
	}

	b.WriteString(stepProgressHeaderStyle.Render(fmt.Sprintf("%-50s | %-10s | %s", "Step", "Status", "Elapsed")))
	b.WriteString("\n")
	for i := startIdx; i < len(m.stepOrder); i++ {
		sp := m.stepProgress[m.stepOrder[i]]
		statusStyled, ok := stepStatusStyle[sp.Status]
		if !ok {
			statusStyled = infoStyle
		}
		name := sp.Name
		if len(name) > 50 {
			name = name[:47] + "..."
		}
		elapsed := ""
		if sp.Elapsed > 0 {
			elapsed = sp.Elapsed.Round(time.Millisecond).String()
		}
		b.WriteString(fmt.Sprintf("%-50s | %-10s | %s\n", name, statusStyled.Render(sp.Status), elapsed))
		if sp.Status == string(pipeline.StatusFailed) && sp.ErrMsg != "" {
			b.WriteString(errorStyle.Render("  -> Error: " + sp.ErrMsg))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m *AppModel) percent() float64 {
	if m.overallTotal <= 0 {
		return 0
	}
	return float64(m.overallCurrent) / float64(m.overallTotal)
}

func (m *AppModel) waitForActivityCmd(uiMsgChan chan any) tea.Cmd {
	if uiMsgChan == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-uiMsgChan
		if !ok {
			return nil
		}
		return msg
	}
}

// RunFunc runs the pipeline and reports progress on events.
type RunFunc func(ctx context.Context, events chan<- pipeline.Event) (pipeline.Result, error)

// Start runs fn behind the progress view and returns its result once both have finished.
// Quitting the view cancels the run.
func Start(ctx context.Context, title string, fn RunFunc, opts ...tea.ProgramOption) (pipeline.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	uiMsgChan := make(chan any)
	model := NewAppModel(title, uiMsgChan)

	type outcome struct {
		res pipeline.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		start := time.Now()
		events := make(chan pipeline.Event)
		translated := make(chan struct{})
		go func() {
			defer close(translated)
			for e := range events {
				for _, msg := range FromEvent(e) {
					select {
					case uiMsgChan <- msg:
					case <-ctx.Done():
					}
				}
			}
		}()
		res, err := fn(ctx, events)
		close(events)
		<-translated
		select {
		case uiMsgChan <- NewTaskFinished("run", start, res, err):
		case <-ctx.Done():
		}
		done <- outcome{res: res, err: err}
	}()

	p := tea.NewProgram(model, append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)...)
	_, uiErr := p.Run()
	if model.Quitting || uiErr != nil {
		cancel()
	}
	out := <-done
	if out.err == nil && uiErr != nil && ctx.Err() == nil {
		return out.res, fmt.Errorf("progress view: %w", uiErr)
	}
	return out.res, out.err
}

func wrapText(text string, maxWidth int) string {
	if maxWidth <= 0 {
		return text
	}
	var result strings.Builder
	var currentLine strings.Builder
	for _, word := range strings.Fields(text) {
		if currentLine.Len() > 0 && currentLine.Len()+len(word)+1 > maxWidth {
			result.WriteString(currentLine.String())
			result.WriteString("\n")
			currentLine.Reset()
		}
		if currentLine.Len() > 0 {
			currentLine.WriteString(" ")
		}
		currentLine.WriteString(word)
	}
	result.WriteString(currentLine.String())
	return result.String()
}
