package ui

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/fledge/internal/chat"
	"github.com/MrWong99/fledge/internal/mcp"
	mcpmock "github.com/MrWong99/fledge/internal/mcp/mock"
	"github.com/MrWong99/fledge/pkg/provider/llm"
	llmmock "github.com/MrWong99/fledge/pkg/provider/llm/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

// mulHost returns a host mock exposing a multiply tool that answers "105".
func mulHost() *mcpmock.Host {
	return &mcpmock.Host{
		ToolsResult: []mcp.ToolDescriptor{{
			Name:        "multiply",
			Description: "Multiply two numbers.",
			Server:      "builtin",
			Citation:    mcp.Citation{Tool: "multiply", Origin: "arith origin", Implementation: "arith impl"},
		}},
		InvokeResults: map[string]mcp.ToolCallResult{
			"multiply": {Content: "105"},
		},
	}
}

// runScript executes the REPL over the given input lines and returns its
// output. The session is built around the supplied provider and host.
func runScript(t *testing.T, p llm.Provider, h mcp.Host, input string, opts ...Option) (string, *chat.Session) {
	t.Helper()
	session := chat.NewSession(p, h)
	var out bytes.Buffer
	opts = append([]Option{WithInput(strings.NewReader(input)), WithOutput(&out)}, opts...)
	u := New(session, opts...)
	if err := u.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return out.String(), session
}

// ── turns ─────────────────────────────────────────────────────────────────────

// TestRun_ForwardsTurn verifies a plain line is sent to the model and the
// answer is printed.
func TestRun_ForwardsTurn(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Hi there."}}

	out, _ := runScript(t, p, &mcpmock.Host{}, "hello\n")

	if !strings.Contains(out, "Hi there.") {
		t.Errorf("output should contain the answer, got:\n%s", out)
	}
	if len(p.CompleteCalls) != 1 {
		t.Errorf("Complete calls = %d, want 1", len(p.CompleteCalls))
	}
}

// TestRun_BlankLinesIgnored verifies empty input does not reach the model.
func TestRun_BlankLinesIgnored(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{}

	runScript(t, p, &mcpmock.Host{}, "\n   \n\n")

	if len(p.CompleteCalls) != 0 {
		t.Errorf("Complete calls = %d, want 0", len(p.CompleteCalls))
	}
}

// TestRun_CitationsPrinted verifies tool use produces a Citations block.
func TestRun_CitationsPrinted(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{Script: []*llm.CompletionResponse{
		{ToolCalls: []llm.ToolCall{{ID: "call-1", Name: "multiply", Arguments: `{"a":15,"b":7}`}}},
		{Content: "The answer is 105."},
	}}

	out, _ := runScript(t, p, mulHost(), "what is 15*7?\n")

	if !strings.Contains(out, "Citations:") {
		t.Fatalf("output should contain a Citations block, got:\n%s", out)
	}
	if !strings.Contains(out, "multiply (arith origin)") {
		t.Errorf("citation line missing, got:\n%s", out)
	}
}

// TestRun_CitationsToggle verifies /citations off suppresses the block.
func TestRun_CitationsToggle(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{Script: []*llm.CompletionResponse{
		{ToolCalls: []llm.ToolCall{{ID: "call-1", Name: "multiply", Arguments: `{"a":15,"b":7}`}}},
		{Content: "The answer is 105."},
	}}

	out, _ := runScript(t, p, mulHost(), "/citations off\nwhat is 15*7?\n")

	if strings.Contains(out, "Citations:") {
		t.Errorf("Citations block should be suppressed, got:\n%s", out)
	}
}

// TestRun_BudgetNoticePrinted verifies a tripped iteration budget surfaces a
// notice after the partial answer.
func TestRun_BudgetNoticePrinted(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{Script: []*llm.CompletionResponse{
		{ToolCalls: []llm.ToolCall{{ID: "call-1", Name: "multiply", Arguments: `{"a":15,"b":7}`}}},
		{Content: "Partial answer."},
	}}
	session := chat.NewSession(p, mulHost(),
		chat.WithLimits(chat.Limits{MaxToolCallIterations: 0, MaxWorkingTime: time.Minute}))
	var out bytes.Buffer
	u := New(session, WithInput(strings.NewReader("go\n")), WithOutput(&out))

	if err := u.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !strings.Contains(out.String(), "Partial answer.") {
		t.Errorf("partial answer missing, got:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "tool call limit was reached") {
		t.Errorf("budget notice missing, got:\n%s", out.String())
	}
}

// ── commands ──────────────────────────────────────────────────────────────────

// TestRun_ExitStopsProcessing verifies /exit terminates before later lines run.
func TestRun_ExitStopsProcessing(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "should not appear"}}

	out, _ := runScript(t, p, &mcpmock.Host{}, "/exit\nhello\n")

	if len(p.CompleteCalls) != 0 {
		t.Errorf("Complete calls = %d, want 0", len(p.CompleteCalls))
	}
	if strings.Contains(out, "should not appear") {
		t.Errorf("turn after /exit was processed:\n%s", out)
	}
}

// TestRun_Help verifies /help prints the command list.
func TestRun_Help(t *testing.T) {
	t.Parallel()
	out, _ := runScript(t, &llmmock.Provider{}, &mcpmock.Host{}, "/help\n")

	if !strings.Contains(out, "/enable <server>") {
		t.Errorf("help text missing, got:\n%s", out)
	}
}

// TestRun_UnknownCommand verifies unknown commands are not sent to the model.
func TestRun_UnknownCommand(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{}

	out, _ := runScript(t, p, &mcpmock.Host{}, "/frobnicate\n")

	if !strings.Contains(out, "Unknown command /frobnicate") {
		t.Errorf("unknown command notice missing, got:\n%s", out)
	}
	if len(p.CompleteCalls) != 0 {
		t.Errorf("Complete calls = %d, want 0", len(p.CompleteCalls))
	}
}

// TestRun_Clear verifies /clear empties the session history.
func TestRun_Clear(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Hello!"}}

	out, session := runScript(t, p, &mcpmock.Host{}, "hi\n/clear\n")

	if !strings.Contains(out, "Conversation cleared.") {
		t.Errorf("clear confirmation missing, got:\n%s", out)
	}
	if got := len(session.History()); got != 0 {
		t.Errorf("history length after /clear = %d, want 0", got)
	}
}

// TestRun_Tools verifies the tool listing includes name, description, and server.
func TestRun_Tools(t *testing.T) {
	t.Parallel()
	out, _ := runScript(t, &llmmock.Provider{}, mulHost(), "/tools\n")

	if !strings.Contains(out, "1 tools available") {
		t.Errorf("tool count missing, got:\n%s", out)
	}
	if !strings.Contains(out, "multiply") || !strings.Contains(out, "Multiply two numbers.") {
		t.Errorf("tool line missing, got:\n%s", out)
	}
}

// TestRun_ToolsEmpty verifies the listing copes with no tools.
func TestRun_ToolsEmpty(t *testing.T) {
	t.Parallel()
	out, _ := runScript(t, &llmmock.Provider{}, &mcpmock.Host{}, "/tools\n")

	if !strings.Contains(out, "No tools available.") {
		t.Errorf("empty notice missing, got:\n%s", out)
	}
}

// TestRun_EnableServer verifies /enable connects a configured server.
func TestRun_EnableServer(t *testing.T) {
	t.Parallel()
	h := &mcpmock.Host{}
	servers := map[string]mcp.ServerConfig{
		"weather": {Name: "weather", Transport: mcp.TransportStdio, Command: "mcp-weather"},
	}

	out, _ := runScript(t, &llmmock.Provider{}, h, "/enable weather\n", WithServers(servers))

	if !strings.Contains(out, `Server "weather" enabled.`) {
		t.Errorf("enable confirmation missing, got:\n%s", out)
	}
	calls := h.Calls()
	if len(calls) != 1 || calls[0].Method != "RegisterServer" {
		t.Fatalf("host calls = %+v, want one RegisterServer", calls)
	}
	cfg := calls[0].Args[0].(mcp.ServerConfig)
	if cfg.Name != "weather" || cfg.Command != "mcp-weather" {
		t.Errorf("RegisterServer config = %+v", cfg)
	}
}

// TestRun_EnableUnknownServer verifies /enable rejects unconfigured names.
func TestRun_EnableUnknownServer(t *testing.T) {
	t.Parallel()
	h := &mcpmock.Host{}

	out, _ := runScript(t, &llmmock.Provider{}, h, "/enable nope\n")

	if !strings.Contains(out, `Unknown server "nope"`) {
		t.Errorf("unknown server notice missing, got:\n%s", out)
	}
	if h.CallCount("RegisterServer") != 0 {
		t.Error("RegisterServer should not be called for unknown servers")
	}
}

// TestRun_DisableServer verifies /disable drops the named server.
func TestRun_DisableServer(t *testing.T) {
	t.Parallel()
	h := mulHost()

	out, _ := runScript(t, &llmmock.Provider{}, h, "/disable weather\n")

	if !strings.Contains(out, `Server "weather" disabled.`) {
		t.Errorf("disable confirmation missing, got:\n%s", out)
	}
	if h.CallCount("RemoveServer") != 1 {
		t.Errorf("RemoveServer calls = %d, want 1", h.CallCount("RemoveServer"))
	}
}

// TestRun_SetIterations verifies /set max_tool_call_iterations updates limits.
func TestRun_SetIterations(t *testing.T) {
	t.Parallel()
	out, session := runScript(t, &llmmock.Provider{}, &mcpmock.Host{}, "/set max_tool_call_iterations 9\n")

	if !strings.Contains(out, "Set max_tool_call_iterations to 9.") {
		t.Errorf("confirmation missing, got:\n%s", out)
	}
	if got := session.Limits().MaxToolCallIterations; got != 9 {
		t.Errorf("MaxToolCallIterations = %d, want 9", got)
	}
}

// TestRun_SetWorkingTime verifies /set max_working_time parses durations.
func TestRun_SetWorkingTime(t *testing.T) {
	t.Parallel()
	out, session := runScript(t, &llmmock.Provider{}, &mcpmock.Host{}, "/set max_working_time 2m\n")

	if !strings.Contains(out, "Set max_working_time to 2m.") {
		t.Errorf("confirmation missing, got:\n%s", out)
	}
	if got := session.Limits().MaxWorkingTime; got != 2*time.Minute {
		t.Errorf("MaxWorkingTime = %s, want 2m", got)
	}
}

// TestRun_SetRejectsBadValues verifies malformed /set arguments leave limits alone.
func TestRun_SetRejectsBadValues(t *testing.T) {
	t.Parallel()
	out, session := runScript(t, &llmmock.Provider{}, &mcpmock.Host{},
		"/set max_tool_call_iterations lots\n/set max_working_time soon\n/set unknown 3\n")

	if !strings.Contains(out, `Not a number: "lots"`) {
		t.Errorf("number error missing, got:\n%s", out)
	}
	if !strings.Contains(out, `Not a duration: "soon"`) {
		t.Errorf("duration error missing, got:\n%s", out)
	}
	if !strings.Contains(out, `Unknown setting "unknown"`) {
		t.Errorf("unknown setting error missing, got:\n%s", out)
	}
	if session.Limits() != chat.DefaultLimits() {
		t.Errorf("limits changed: %+v", session.Limits())
	}
}
