// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/dustin/go-humanize"
	"github.com/peterh/liner"

	core "github.com/jeranaias/streamchat/internal/chat"
	"github.com/jeranaias/streamchat/internal/config"
	"github.com/jeranaias/streamchat/internal/export"
	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/transcript"
	"github.com/jeranaias/streamchat/internal/util"
)

// errQuit ends the REPL loop.
var errQuit = errors.New("quit")

// =============================================================================
// REPL
// =============================================================================

// REPL is the line-oriented host. Replies print as they stream in through
// a transcript store subscription.
type REPL struct {
	app *App
	out io.Writer
	err io.Writer

	// markdown renders finished replies when live streaming is off.
	markdown bool
	width    int

	// mu guards printed and serializes writes to out.
	mu      sync.Mutex
	printed map[string]string // message ID -> text already written

	unsubscribe func()
}

// NewREPL creates a REPL writing to out and err. Markdown rendering is only
// used when tty is true.
func NewREPL(app *App, out, errOut io.Writer, tty bool) *REPL {
	r := &REPL{
		app:      app,
		out:      out,
		err:      errOut,
		markdown: tty,
		width:    GetTerminalWidth(),
		printed:  make(map[string]string),
	}
	r.unsubscribe = app.Store.Subscribe(r.onEvent)
	return r
}

// Close drops the store subscription.
func (r *REPL) Close() {
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
}

// Run reads lines until /quit, EOF or ctrl+c at the prompt. Ctrl+c while a
// reply streams stops that reply.
func (r *REPL) Run(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	history := historyPath()
	if f, err := os.Open(history); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer saveHistory(line, history)

	r.printBanner()
	for {
		input, err := line.Prompt("you> ")
		if err != nil {
			// liner.ErrPromptAborted on ctrl+c, io.EOF on ctrl+d
			fmt.Fprintln(r.out)
			return nil
		}
		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}

		if err := r.Execute(ctx, input); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintf(r.err, "%s %v\n", errorStyle.Render("[Error]"), err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Execute runs one input line: a slash command or a message to the active
// session.
func (r *REPL) Execute(ctx context.Context, input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}
	if strings.HasPrefix(input, "/") {
		return r.command(ctx, input)
	}
	return r.send(ctx, input)
}

// send streams a reply into the active session. An interrupt cancels it.
func (r *REPL) send(ctx context.Context, text string) error {
	sendCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	err := r.app.Orchestrator.Send(sendCtx, r.app.Sessions.ActiveID(), text)
	var cfgErr *core.ConfigurationError
	if errors.As(err, &cfgErr) {
		return errors.New("no API key configured: set [api] key in the config file or STREAMCHAT_API_KEY")
	}
	return err
}

// =============================================================================
// LIVE OUTPUT
// =============================================================================

// onEvent prints assistant output for the active session. It runs on the
// goroutine that mutated the store.
func (r *REPL) onEvent(ev transcript.Event) {
	if ev.Message.Role != model.RoleAssistant || ev.SessionID != r.app.Sessions.ActiveID() {
		return
	}
	settings := r.app.Settings.Snapshot()

	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Kind {
	case transcript.EventAppended:
		fmt.Fprint(r.out, assistantStyle.Render("assistant> "))
		r.printed[ev.Message.ID] = ""

	case transcript.EventUpdated:
		if settings.EnableStreaming {
			r.writeSuffixLocked(ev.Message)
		}

	case transcript.EventFinalized:
		if settings.EnableStreaming {
			r.writeSuffixLocked(ev.Message)
		} else {
			fmt.Fprint(r.out, r.render(ev.Message.Content, settings))
		}
		fmt.Fprintln(r.out)
		delete(r.printed, ev.Message.ID)
	}
}

// writeSuffixLocked prints the part of msg not yet written. Content only
// grows while streaming, except when a failure rewrites it; then the whole
// message is printed again on a new line.
func (r *REPL) writeSuffixLocked(msg model.Message) {
	done := r.printed[msg.ID]
	if !strings.HasPrefix(msg.Content, done) {
		done = ""
		fmt.Fprintln(r.out)
	}
	fmt.Fprint(r.out, msg.Content[len(done):])
	r.printed[msg.ID] = msg.Content
}

func (r *REPL) render(content string, settings config.Settings) string {
	if !r.markdown || !settings.EnableMarkdown || strings.Contains(content, core.ErrorMarker) {
		return content
	}
	style := "dark"
	if strings.EqualFold(settings.Theme.DarkMode, "light") {
		style = "light"
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(r.width),
	)
	if err != nil {
		return content
	}
	out, err := tr.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

const replHelp = `Commands:
  /new                start a new chat
  /list               list chats
  /switch N           switch to chat N
  /delete [N]         delete chat N (default: current)
  /move FROM TO       move chat FROM to position TO
  /rename TITLE       rename the current chat
  /export md|json [DIR]
                      export the current chat
  /clear              delete all chats and saved settings
  /models             list models at the configured endpoint
  /help               show this help
  /quit               exit`

func (r *REPL) command(ctx context.Context, input string) error {
	fields := strings.Fields(input)
	name, args := strings.ToLower(fields[0]), fields[1:]
	mgr := r.app.Sessions

	switch name {
	case "/quit", "/exit", "/q":
		return errQuit

	case "/help", "/?":
		fmt.Fprintln(r.out, replHelp)

	case "/new":
		if _, err := mgr.CreateSession(); err != nil {
			return err
		}
		fmt.Fprintln(r.out, successStyle.Render("Started a new chat."))

	case "/list", "/ls":
		r.printSessions()

	case "/switch":
		i, err := r.sessionIndex(args, 0)
		if err != nil {
			return err
		}
		sess := mgr.Sessions()[i]
		if err := mgr.SelectSession(sess.ID); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Switched to %q.\n", sess.Title)
		r.printTranscript()

	case "/delete":
		id := mgr.ActiveID()
		if len(args) > 0 {
			i, err := r.sessionIndex(args, 0)
			if err != nil {
				return err
			}
			id = mgr.Sessions()[i].ID
		}
		if err := mgr.DeleteSession(id); err != nil {
			return err
		}
		fmt.Fprintln(r.out, successStyle.Render("Chat deleted."))

	case "/move":
		if len(args) != 2 {
			return errors.New("usage: /move FROM TO")
		}
		from, err := r.sessionIndex(args, 0)
		if err != nil {
			return err
		}
		to, err := r.sessionIndex(args, 1)
		if err != nil {
			return err
		}
		if err := mgr.ReorderSessions(from, to); err != nil {
			return err
		}
		r.printSessions()

	case "/rename":
		if len(args) == 0 {
			return errors.New("usage: /rename TITLE")
		}
		if err := mgr.RenameSession(mgr.ActiveID(), strings.Join(args, " ")); err != nil {
			return err
		}

	case "/export":
		format := export.FormatMarkdown
		if len(args) > 0 {
			format = args[0]
		}
		dir := ""
		if len(args) > 1 {
			dir = args[1]
		}
		path, err := mgr.ExportToFile(mgr.ActiveID(), format, dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "%s %s\n", successStyle.Render("Exported to"), path)

	case "/clear":
		if err := r.app.ClearAll(); err != nil {
			return err
		}
		fmt.Fprintln(r.out, successStyle.Render("All chats and saved settings cleared."))

	case "/models":
		checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		models, err := r.app.CheckConnection(checkCtx)
		if err != nil {
			return err
		}
		for _, m := range models {
			fmt.Fprintln(r.out, "  "+m)
		}

	default:
		return fmt.Errorf("unknown command %s (try /help)", fields[0])
	}
	return nil
}

// sessionIndex parses args[pos] as a 1-based chat number.
func (r *REPL) sessionIndex(args []string, pos int) (int, error) {
	if len(args) <= pos {
		return 0, errors.New("missing chat number")
	}
	n, err := strconv.Atoi(args[pos])
	count := len(r.app.Sessions.Sessions())
	if err != nil || n < 1 || n > count {
		return 0, fmt.Errorf("chat number must be between 1 and %d", count)
	}
	return n - 1, nil
}

func (r *REPL) printSessions() {
	active := r.app.Sessions.ActiveID()
	for i, s := range r.app.Sessions.Sessions() {
		line := fmt.Sprintf("%2d. %s  %s", i+1, util.TruncateWidth(util.SingleLine(s.Title), 48),
			mutedStyle.Render(fmt.Sprintf("(%d msgs, %s)", s.MessageCount(), humanize.Time(time.UnixMilli(s.UpdatedAt)))))
		if s.ID == active {
			line = activeStyle.Render("*") + line[1:]
		}
		fmt.Fprintln(r.out, line)
	}
}

func (r *REPL) printTranscript() {
	sess, ok := r.app.Sessions.Active()
	if !ok {
		return
	}
	for _, m := range sess.Messages {
		label := promptStyle.Render("you> ")
		if m.Role == model.RoleAssistant {
			label = assistantStyle.Render("assistant> ")
		}
		fmt.Fprintln(r.out, label+m.Content)
	}
}

func (r *REPL) printBanner() {
	s := r.app.Settings.Snapshot()
	fmt.Fprintf(r.out, "streamchat · %s · %s\n", s.Model, s.APIEndpoint)
	if !s.HasAPIKey() {
		fmt.Fprintln(r.out, errorStyle.Render("No API key configured; set [api] key or STREAMCHAT_API_KEY."))
	}
	fmt.Fprintln(r.out, mutedStyle.Render("Type /help for commands."))
}

// =============================================================================
// HISTORY
// =============================================================================

func historyPath() string {
	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "chat_history")
}

// saveHistory writes history with owner-only permissions.
func saveHistory(line *liner.State, path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = line.WriteHistory(f)
}
