package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"

	"web-search-chat/internal/client"
	"web-search-chat/internal/history"
	"web-search-chat/internal/terminal"
)

// Color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// Display renders server events for the chat client. Answer fragments are
// streamed raw as they arrive; once no fragment has arrived for the settle
// period the whole answer is re-rendered as markdown.
type Display struct {
	out      io.Writer
	width    int
	renderer *glamour.TermRenderer
	spinner  *terminal.Spinner
	settle   time.Duration

	mu        sync.Mutex
	answer    strings.Builder
	sources   []history.Result
	streaming bool
	startTime time.Time
	timer     *time.Timer
}

// NewDisplay creates a display. styled selects terminal colors for
// markdown; plain output uses glamour's notty style.
func NewDisplay(out io.Writer, width int, settle time.Duration, styled bool) *Display {
	style := glamour.WithStandardStyle("notty")
	if styled {
		style = glamour.WithAutoStyle()
	}
	wrap := width - 10
	if wrap < 20 {
		wrap = 20
	}
	renderer, _ := glamour.NewTermRenderer(style, glamour.WithWordWrap(wrap))

	return &Display{
		out:      out,
		width:    width,
		renderer: renderer,
		spinner:  terminal.NewSpinner(out),
		settle:   settle,
	}
}

// PrintWelcome displays the welcome banner
func (d *Display) PrintWelcome(serverURL string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.out, "%s%sweb-search-chat · answers grounded in live web results%s\n", colorBold, colorCyan, colorReset)
	fmt.Fprintf(d.out, "%sServer:%s %s\n", colorGray, colorReset, serverURL)
	fmt.Fprintf(d.out, "%sType a question, or /exit to quit%s\n", colorGray, colorReset)
}

// PrintPrompt displays the user input prompt
func (d *Display) PrintPrompt() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.printPromptLocked()
}

func (d *Display) printPromptLocked() {
	fmt.Fprintf(d.out, "\n%s%s❯%s ", colorBold, colorGreen, colorReset)
}

// BeginQuery marks the start of a turn and shows a spinner until the
// server responds
func (d *Display) BeginQuery() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finishLocked(false)
	d.startTime = time.Now()
	d.spinner.Start("Searching the web")
}

// Handle renders one server event. Safe to call from the listener goroutine.
func (d *Display) Handle(ev client.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.spinner.Stop()

	switch ev.Kind {
	case client.EventSearchResults:
		d.finishLocked(false)
		d.sources = ev.Results
		d.printSourcesLocked()
		d.spinner.Start("Generating answer")
	case client.EventContent:
		if !d.streaming {
			d.streaming = true
			fmt.Fprintf(d.out, "\n%s┌─ Assistant · %s%s\n", colorGray, time.Now().Format("15:04:05"), colorReset)
		}
		d.answer.WriteString(ev.Text)
		fmt.Fprint(d.out, ev.Text)
		d.armTimerLocked()
	case client.EventNotice:
		fmt.Fprintf(d.out, "%s⚠ %s%s\n", colorYellow, ev.Text, colorReset)
		d.printPromptLocked()
	}
}

// Flush renders any pending answer immediately
func (d *Display) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.spinner.Stop()
	d.finishLocked(false)
}

// Answer returns the raw text of the answer currently being streamed
func (d *Display) Answer() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.answer.String()
}

// PrintError displays an error message
func (d *Display) PrintError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.spinner.Stop()
	fmt.Fprintf(d.out, "\n%s✗ Error: %v%s\n", colorRed, err, colorReset)
}

// PrintGoodbye displays goodbye message
func (d *Display) PrintGoodbye() {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.out, "\n%s%sGoodbye!%s\n", colorBold, colorCyan, colorReset)
}

func (d *Display) armTimerLocked() {
	if d.settle <= 0 {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.settle, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.finishLocked(true)
	})
}

func (d *Display) printSourcesLocked() {
	if len(d.sources) == 0 {
		fmt.Fprintf(d.out, "%sNo sources found%s\n", colorDim, colorReset)
		return
	}
	fmt.Fprintf(d.out, "%s%s📚 Sources:%s\n", colorDim, colorCyan, colorReset)
	for i, s := range d.sources {
		fmt.Fprintf(d.out, "%s  %d. %s · %s%s\n", colorGray, i+1, truncate(s.Title, 60), truncate(s.URL, 60), colorReset)
	}
}

// finishLocked renders the streamed answer as markdown and resets state
func (d *Display) finishLocked(prompt bool) {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if !d.streaming {
		return
	}
	d.streaming = false

	fmt.Fprintln(d.out)
	if d.renderer != nil {
		if rendered, err := d.renderer.Render(d.answer.String()); err == nil {
			fmt.Fprintf(d.out, "%s│ Rendered:%s\n", colorGray, colorReset)
			for _, line := range strings.Split(strings.TrimRight(rendered, "\n"), "\n") {
				fmt.Fprintf(d.out, "%s│%s %s\n", colorGray, colorReset, line)
			}
		}
	}
	words := len(strings.Fields(d.answer.String()))
	fmt.Fprintf(d.out, "%s│ ⏱  %s · ~%d words%s\n", colorGray, formatDuration(time.Since(d.startTime)), words, colorReset)
	fmt.Fprintf(d.out, "%s└%s\n", colorGray, colorReset)

	d.answer.Reset()
	d.sources = nil
	if prompt {
		d.printPromptLocked()
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
