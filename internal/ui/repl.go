// Package ui implements the interactive read-eval-print loop that fronts a
// chat session. Lines starting with "/" are interpreted as commands;
// everything else is forwarded to the session as a user turn.
package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/fledge/internal/chat"
	"github.com/MrWong99/fledge/internal/mcp"
)

const helpText = `Commands:
  /help                             Show this help.
  /clear                            Forget the conversation so far.
  /tools                            List the tools currently available.
  /enable <server>                  Connect a configured MCP server.
  /disable <server>                 Disconnect an MCP server and drop its tools.
  /set max_tool_call_iterations N   Cap tool invocations per turn.
  /set max_working_time DURATION    Cap wall-clock time per turn (e.g. 45s, 2m).
  /citations on|off                 Toggle the citations block after answers.
  /exit                             Quit.

Anything else is sent to the model.`

// REPL reads user input line by line and drives a [chat.Session].
type REPL struct {
	session *chat.Session
	servers map[string]mcp.ServerConfig

	in  io.Reader
	out io.Writer

	showCitations bool
	logger        *slog.Logger
}

// Option configures a [REPL].
type Option func(*REPL)

// WithInput sets the reader user input comes from. The default is stdin.
func WithInput(r io.Reader) Option {
	return func(u *REPL) { u.in = r }
}

// WithOutput sets the writer responses are printed to. The default is stdout.
func WithOutput(w io.Writer) Option {
	return func(u *REPL) { u.out = w }
}

// WithServers registers the MCP server configs that /enable may connect.
// Keys are server names as the user types them.
func WithServers(servers map[string]mcp.ServerConfig) Option {
	return func(u *REPL) { u.servers = servers }
}

// WithLogger sets the logger. The default is [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(u *REPL) { u.logger = l }
}

// New creates a REPL bound to session.
func New(session *chat.Session, opts ...Option) *REPL {
	u := &REPL{
		session:       session,
		servers:       map[string]mcp.ServerConfig{},
		in:            os.Stdin,
		out:           os.Stdout,
		showCitations: true,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Run reads lines until EOF, /exit, or ctx cancellation.
func (u *REPL) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(u.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(u.out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("ui: read input: %w", err)
			}
			fmt.Fprintln(u.out)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := u.handleCommand(ctx, line); quit {
				return nil
			}
			continue
		}

		u.runTurn(ctx, line)
	}
}

// handleCommand executes a single /-prefixed command and reports whether the
// REPL should terminate.
func (u *REPL) handleCommand(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/exit", "/quit":
		return true

	case "/help":
		fmt.Fprintln(u.out, helpText)

	case "/clear":
		if err := u.session.ClearHistory(); err != nil {
			u.printError(err)
			break
		}
		fmt.Fprintln(u.out, "Conversation cleared.")

	case "/tools":
		u.printTools()

	case "/enable":
		if len(args) != 1 {
			fmt.Fprintln(u.out, "Usage: /enable <server>")
			break
		}
		cfg, ok := u.servers[args[0]]
		if !ok {
			fmt.Fprintf(u.out, "Unknown server %q. Configured servers: %s\n", args[0], strings.Join(u.serverNames(), ", "))
			break
		}
		if err := u.session.EnableServer(ctx, cfg); err != nil {
			u.printError(err)
			break
		}
		fmt.Fprintf(u.out, "Server %q enabled.\n", args[0])

	case "/disable":
		if len(args) != 1 {
			fmt.Fprintln(u.out, "Usage: /disable <server>")
			break
		}
		if err := u.session.DisableServer(args[0]); err != nil {
			u.printError(err)
			break
		}
		fmt.Fprintf(u.out, "Server %q disabled.\n", args[0])

	case "/set":
		u.handleSet(args)

	case "/citations":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			fmt.Fprintln(u.out, "Usage: /citations on|off")
			break
		}
		u.showCitations = args[0] == "on"
		fmt.Fprintf(u.out, "Citations %s.\n", args[0])

	default:
		fmt.Fprintf(u.out, "Unknown command %s. Type /help for a list.\n", cmd)
	}
	return false
}

// handleSet adjusts one of the per-turn limits.
func (u *REPL) handleSet(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(u.out, "Usage: /set max_tool_call_iterations N  or  /set max_working_time DURATION")
		return
	}

	limits := u.session.Limits()
	switch args[0] {
	case "max_tool_call_iterations":
		n, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(u.out, "Not a number: %q\n", args[1])
			return
		}
		limits.MaxToolCallIterations = n
	case "max_working_time":
		d, err := time.ParseDuration(args[1])
		if err != nil {
			fmt.Fprintf(u.out, "Not a duration: %q (try 45s or 2m)\n", args[1])
			return
		}
		limits.MaxWorkingTime = d
	default:
		fmt.Fprintf(u.out, "Unknown setting %q. Settable: max_tool_call_iterations, max_working_time\n", args[0])
		return
	}

	if err := u.session.SetLimits(limits); err != nil {
		u.printError(err)
		return
	}
	fmt.Fprintf(u.out, "Set %s to %s.\n", args[0], args[1])
}

// runTurn forwards the line to the session and renders the result.
func (u *REPL) runTurn(ctx context.Context, line string) {
	result, err := u.session.ProcessTurn(ctx, line)
	if err != nil {
		u.printError(err)
		return
	}

	fmt.Fprintln(u.out, result.FinalText)

	if u.showCitations && len(result.Citations) > 0 {
		fmt.Fprintln(u.out, "\nCitations:")
		for _, c := range result.Citations {
			fmt.Fprintf(u.out, "  - %s (%s)\n", c.Tool, c.Origin)
		}
	}

	switch result.Reason {
	case chat.ReasonIterationLimit:
		fmt.Fprintln(u.out, "\n[The tool call limit was reached; this answer may be incomplete. Use /set max_tool_call_iterations to raise it.]")
	case chat.ReasonTimeLimit:
		fmt.Fprintln(u.out, "\n[The working time limit was reached; this answer may be incomplete. Use /set max_working_time to raise it.]")
	}
}

// printTools renders the tool listing grouped as the host enumerates them.
func (u *REPL) printTools() {
	tools := u.session.Tools()
	if len(tools) == 0 {
		fmt.Fprintln(u.out, "No tools available.")
		return
	}
	fmt.Fprintf(u.out, "%d tools available:\n", len(tools))
	for _, tool := range tools {
		desc := tool.Description
		if desc == "" {
			desc = "(no description)"
		}
		fmt.Fprintf(u.out, "  %-24s %s  [%s]\n", tool.Name, desc, tool.Server)
	}
}

func (u *REPL) printError(err error) {
	if errors.Is(err, chat.ErrTurnActive) {
		fmt.Fprintln(u.out, "A turn is still in progress; try again in a moment.")
		return
	}
	u.logger.Error("command failed", "err", err)
	fmt.Fprintf(u.out, "Error: %v\n", err)
}

func (u *REPL) serverNames() []string {
	names := make([]string, 0, len(u.servers))
	for name := range u.servers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
