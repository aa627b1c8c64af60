// Package tui renders a live view of the supervised programs and lets the
// operator start, stop and restart them through the control API.
package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/Paintersrp/procsup/internal/api"
	"github.com/Paintersrp/procsup/internal/cliutil"
)

const (
	tableTitle      = "Programs"
	messagesTitle   = "Messages"
	filterPageName  = "filter"
	defaultInterval = time.Second
	maxMessages     = 200
)

// Option configures UI behaviour.
type Option func(*UI)

// WithRefreshInterval sets how often the status is polled.
func WithRefreshInterval(d time.Duration) Option {
	return func(u *UI) {
		if d > 0 {
			u.interval = d
		}
	}
}

// UI coordinates the interactive status interface backed by tview.
type UI struct {
	app      *tview.Application
	pages    *tview.Pages
	table    *tview.Table
	messages *tview.TextView
	ctrl     api.Controller
	interval time.Duration

	mu         sync.RWMutex
	programs   []api.ProgramStatus
	visible    []string
	filter     string
	filterExpr *regexp.Regexp
	history    []string
	lastErr    string

	ctxMu sync.Mutex
	ctx   context.Context

	// kick asks the poll loop for an immediate refresh.
	kick chan struct{}

	// wg tracks in-flight actions.
	wg       sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}
}

// New constructs a UI that drives ctrl.
func New(ctrl api.Controller, opts ...Option) *UI {
	app := tview.NewApplication()
	table := tview.NewTable().SetFixed(1, 1).SetSelectable(true, false)
	table.SetBorder(true).SetTitle(tableTitle)

	messages := tview.NewTextView().SetDynamicColors(true).SetWrap(true)
	messages.SetBorder(true).SetTitle(messagesTitle)

	help := tview.NewTextView().SetDynamicColors(true).
		SetText("[yellow]s[-] start  [yellow]x[-] stop  [yellow]r[-] restart  [yellow]S/X/R[-] all  [yellow]/[-] filter  [yellow]q[-] quit")

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(table, 0, 3, true).
		AddItem(messages, 0, 1, false).
		AddItem(help, 1, 0, false)

	pages := tview.NewPages().AddPage("main", flex, true, true)

	ui := &UI{
		app:      app,
		pages:    pages,
		table:    table,
		messages: messages,
		ctrl:     ctrl,
		interval: defaultInterval,
		ctx:      context.Background(),
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ui)
	}

	app.SetRoot(pages, true)
	app.SetInputCapture(ui.handleKey)

	ui.mu.Lock()
	ui.refreshTableLocked()
	ui.mu.Unlock()

	return ui
}

// Done returns a channel that is closed when the UI stops.
func (u *UI) Done() <-chan struct{} {
	return u.done
}

// Run starts the tview application and polls the controller until Stop is
// invoked or ctx is cancelled.
func (u *UI) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	u.ctxMu.Lock()
	u.ctx = ctx
	u.ctxMu.Unlock()

	go u.poll(ctx)

	go func() {
		<-ctx.Done()
		u.Stop()
	}()

	err := u.app.Run()
	cancel()
	u.wg.Wait()
	u.Stop()
	return err
}

// Stop terminates the application loop.
func (u *UI) Stop() {
	u.stopOnce.Do(func() {
		u.app.Stop()
		close(u.done)
	})
}

func (u *UI) context() context.Context {
	u.ctxMu.Lock()
	defer u.ctxMu.Unlock()
	return u.ctx
}

func (u *UI) poll(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	u.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.refresh(ctx)
		case <-u.kick:
			u.refresh(ctx)
		}
	}
}

// refresh fetches the status once and schedules a redraw. It must only be
// called from the poll loop: QueueUpdateDraw blocks until the running
// application executes the update.
func (u *UI) refresh(ctx context.Context) {
	report, err := u.ctrl.Status(ctx)
	if ctx.Err() != nil {
		return
	}
	u.applyReport(report, err)
	select {
	case <-u.done:
		return
	default:
	}
	u.queueRefresh()
}

func (u *UI) applyReport(report *api.StatusReport, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err != nil {
		msg := fmt.Sprintf("status: %v", err)
		if msg != u.lastErr {
			u.lastErr = msg
			u.appendMessageLocked("[red]" + tview.Escape(msg) + "[-]")
		}
		return
	}
	u.lastErr = ""
	if report == nil {
		u.programs = nil
		return
	}
	u.programs = append([]api.ProgramStatus(nil), report.Programs...)
}

func (u *UI) queueRefresh() {
	u.app.QueueUpdateDraw(func() {
		u.mu.Lock()
		defer u.mu.Unlock()
		u.refreshTableLocked()
		u.renderMessagesLocked()
	})
}

func (u *UI) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if u.overlayActive() {
		return event
	}
	switch event.Key() {
	case tcell.KeyUp, tcell.KeyDown:
		return event
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q', 'Q':
			go u.Stop()
			return nil
		case '/':
			u.showFilterPrompt()
			return nil
		case 's':
			u.dispatch("start", u.selectedName())
			return nil
		case 'x':
			u.dispatch("stop", u.selectedName())
			return nil
		case 'r':
			u.dispatch("restart", u.selectedName())
			return nil
		case 'S':
			u.dispatch("start", api.AllPrograms)
			return nil
		case 'X':
			u.dispatch("stop", api.AllPrograms)
			return nil
		case 'R':
			u.dispatch("restart", api.AllPrograms)
			return nil
		}
	}
	return event
}

func (u *UI) overlayActive() bool {
	name, _ := u.pages.GetFrontPage()
	return name == filterPageName
}

func (u *UI) selectedName() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.selectedLocked()
}

func (u *UI) selectedLocked() string {
	row, _ := u.table.GetSelection()
	if row <= 0 || row-1 >= len(u.visible) {
		return ""
	}
	return u.visible[row-1]
}

// dispatch runs an action in the background; stopping a program can take
// several seconds.
func (u *UI) dispatch(action, name string) {
	if name == "" {
		return
	}
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		u.perform(u.context(), action, name)
		select {
		case u.kick <- struct{}{}:
		default:
		}
	}()
}

// perform executes an action synchronously and records its outcome.
func (u *UI) perform(ctx context.Context, action, name string) string {
	var (
		res *api.ActionResult
		err error
	)
	switch action {
	case "start":
		res, err = u.ctrl.Start(ctx, name)
	case "stop":
		res, err = u.ctrl.Stop(ctx, name)
	case "restart":
		res, err = u.ctrl.Restart(ctx, name)
	default:
		err = fmt.Errorf("unknown action %q", action)
	}

	var msg string
	if err != nil {
		msg = fmt.Sprintf("%s %s failed: %v", action, name, err)
		u.mu.Lock()
		u.appendMessageLocked("[red]" + tview.Escape(msg) + "[-]")
		u.mu.Unlock()
		return msg
	}
	msg = cliutil.FormatResult(action, name, res)
	u.mu.Lock()
	u.appendMessageLocked(tview.Escape(msg))
	u.mu.Unlock()
	return msg
}

func (u *UI) appendMessageLocked(msg string) {
	stamp := time.Now().Format("15:04:05")
	u.history = append(u.history, stamp+"  "+msg)
	if len(u.history) > maxMessages {
		u.history = append([]string(nil), u.history[len(u.history)-maxMessages:]...)
	}
}

func (u *UI) renderMessagesLocked() {
	u.messages.SetText(strings.Join(u.history, "\n"))
	u.messages.ScrollToEnd()
}

func (u *UI) showFilterPrompt() {
	u.mu.RLock()
	current := u.filter
	u.mu.RUnlock()

	input := tview.NewInputField().
		SetLabel("Regex filter: ").
		SetText(current).
		SetFieldWidth(40)

	form := tview.NewForm().
		AddFormItem(input).
		AddButton("Apply", func() {
			u.applyFilter(input.GetText())
		}).
		AddButton("Cancel", func() {
			u.closeOverlay()
		})
	form.SetBorder(true).SetTitle("Filter Programs")

	grid := tview.NewGrid().
		SetColumns(0, 60, 0).
		SetRows(0, 7, 0).
		AddItem(form, 1, 1, 1, 1, 0, 0, true)

	u.pages.AddPage(filterPageName, grid, true, true)
	u.app.SetFocus(input)
}

func (u *UI) closeOverlay() {
	u.pages.RemovePage(filterPageName)
	u.app.SetFocus(u.table)
}

func (u *UI) applyFilter(expr string) {
	expr = strings.TrimSpace(expr)
	var re *regexp.Regexp
	if expr != "" {
		var err error
		re, err = regexp.Compile(expr)
		if err != nil {
			u.showErrorModal(fmt.Sprintf("Invalid filter: %v", err))
			return
		}
	}

	u.mu.Lock()
	u.filter = expr
	u.filterExpr = re
	u.refreshTableLocked()
	u.mu.Unlock()
	u.closeOverlay()
}

func (u *UI) showErrorModal(message string) {
	modal := tview.NewModal().
		SetText(message).
		AddButtons([]string{"OK"}).
		SetDoneFunc(func(buttonIndex int, buttonLabel string) {
			u.closeOverlay()
		})

	u.pages.RemovePage(filterPageName)
	u.pages.AddPage(filterPageName, modal, true, true)
}

func (u *UI) refreshTableLocked() {
	previous := u.selectedLocked()
	u.table.Clear()

	headers := []string{"NAME", "STATE", "PID", "UPTIME", "RESTARTS"}
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetSelectable(false).
			SetAttributes(tcell.AttrBold)
		u.table.SetCell(0, col, cell)
	}

	if u.filter != "" {
		u.table.SetTitle(fmt.Sprintf("%s /%s/", tableTitle, u.filter))
	} else {
		u.table.SetTitle(tableTitle)
	}

	u.visible = nil
	row := 1
	for _, st := range u.programs {
		if u.filterExpr != nil && !u.filterExpr.MatchString(st.Name) {
			continue
		}
		u.visible = append(u.visible, st.Name)
		values := []string{
			st.Name,
			st.State,
			cliutil.FormatPID(st.PID),
			cliutil.FormatUptime(st.Uptime),
			fmt.Sprintf("%d", st.RestartCount),
		}
		for col, value := range values {
			cell := tview.NewTableCell(value)
			switch {
			case col == 0:
				cell.SetReference(st.Name)
			case col == 1:
				cell.SetTextColor(stateColor(st.State))
			}
			u.table.SetCell(row, col, cell)
		}
		row++
	}

	u.selectLocked(previous)
}

// selectLocked keeps name selected when it is still visible, falling back
// to the first row.
func (u *UI) selectLocked(name string) {
	if len(u.visible) == 0 {
		u.table.Select(0, 0)
		return
	}
	idx := 0
	for i, visible := range u.visible {
		if visible == name {
			idx = i
			break
		}
	}
	u.table.Select(idx+1, 0)
}

func stateColor(state string) tcell.Color {
	switch state {
	case "RUNNING":
		return tcell.ColorGreen
	case "STARTING":
		return tcell.ColorYellow
	default:
		return tcell.ColorRed
	}
}
