package providers

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/relaygrid/orchestrator/internal/agent"
	"github.com/relaygrid/orchestrator/internal/streambuf"
	"github.com/relaygrid/orchestrator/pkg/models"
)

const (
	defaultHeadlessTimeout = 180 * time.Second
	defaultCaptureChars    = 500_000
	headlessFlushInterval  = 1500 * time.Millisecond
	headlessFlushMinChars  = 120
)

// HeadlessConfig configures a CLI-spawning provider: a local coding-agent
// binary driven over stdin/stdout instead of an HTTP API.
type HeadlessConfig struct {
	// Name tags the provider ("chatgpt", "claude") and selects the
	// <NAME>_HEADLESS_* environment variables in HeadlessFromEnv.
	Name string

	// Command and Args spawn the CLI. The prompt is written to stdin.
	Command string
	Args    []string

	// Timeout kills the child and fails the call. Zero means 180s.
	Timeout time.Duration

	// MaxCaptureChars bounds accumulated stdout/stderr. Zero means 500K.
	MaxCaptureChars int
}

// HeadlessProvider runs a coding-agent CLI per completion call. The CLI is
// expected to frame its answer between the <<ORCH_FINAL>> markers (or emit
// a JSON event stream, one object per line); tool-call requests arrive in
// an <<ORCH_TOOL_CALLS>> block. Whatever log spam the CLI prints around
// the framed blocks is ignored.
type HeadlessProvider struct {
	config HeadlessConfig
}

func NewHeadlessProvider(config HeadlessConfig) (*HeadlessProvider, error) {
	if strings.TrimSpace(config.Command) == "" {
		return nil, fmt.Errorf("headless provider %q: command is required", config.Name)
	}
	if config.Name == "" {
		config.Name = "headless"
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultHeadlessTimeout
	}
	if config.MaxCaptureChars <= 0 {
		config.MaxCaptureChars = defaultCaptureChars
	}
	return &HeadlessProvider{config: config}, nil
}

// HeadlessFromEnv builds a provider from <NAME>_HEADLESS_COMMAND,
// <NAME>_HEADLESS_ARGS (whitespace-separated), and
// <NAME>_HEADLESS_TIMEOUT_MS.
func HeadlessFromEnv(name string) (*HeadlessProvider, error) {
	prefix := strings.ToUpper(name) + "_HEADLESS_"
	cfg := HeadlessConfig{
		Name:    strings.ToLower(name),
		Command: strings.TrimSpace(os.Getenv(prefix + "COMMAND")),
		Args:    strings.Fields(os.Getenv(prefix + "ARGS")),
	}
	if ms, err := strconv.Atoi(strings.TrimSpace(os.Getenv(prefix + "TIMEOUT_MS"))); err == nil && ms > 0 {
		cfg.Timeout = time.Duration(ms) * time.Millisecond
	}
	if chars, err := strconv.Atoi(strings.TrimSpace(os.Getenv("CLI_PROVIDER_MAX_CAPTURE_CHARS"))); err == nil && chars > 0 {
		cfg.MaxCaptureChars = chars
	}
	return NewHeadlessProvider(cfg)
}

func (p *HeadlessProvider) Name() string { return p.config.Name }

func (p *HeadlessProvider) Models() []agent.Model {
	return []agent.Model{{ID: p.config.Name, Name: p.config.Name + " CLI"}}
}

func (p *HeadlessProvider) SupportsTools() bool { return true }

func (p *HeadlessProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	chunks := make(chan *agent.CompletionChunk, 16)
	go func() {
		defer close(chunks)
		if err := p.run(ctx, req, chunks); err != nil {
			chunks <- &agent.CompletionChunk{Error: err}
		}
	}()
	return chunks, nil
}

func (p *HeadlessProvider) run(ctx context.Context, req *agent.CompletionRequest, chunks chan<- *agent.CompletionChunk) error {
	runCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	cmd := buildHeadlessCommand(runCtx, p.config.Command, p.config.Args)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%s stdin: %w", p.config.Name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%s stdout: %w", p.config.Name, err)
	}
	var stderr strings.Builder
	cmd.Stderr = boundedWriter{&stderr, p.config.MaxCaptureChars}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s spawn: %w", p.config.Name, err)
	}

	// Prompt goes to stdin in one write; stdin is closed immediately so a
	// CLI that reads to EOF doesn't hang.
	if _, err := stdin.Write([]byte(renderPrompt(req))); err != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("%s write prompt: %w", p.config.Name, err)
	}
	_ = stdin.Close()

	// Stream stdout: keep the raw capture bounded, push live previews of
	// the in-progress framed body through an overlap-deduping buffer.
	var captured strings.Builder
	var lines []string
	buf := streambuf.New()
	lastFlush := time.Now()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if captured.Len() < p.config.MaxCaptureChars {
			captured.WriteString(line)
			captured.WriteString("\n")
		}
		lines = append(lines, line)

		if body, _ := streambuf.ExtractFinal(captured.String()); body != "" {
			buf.Append(body)
			if buf.ShouldFlush(headlessFlushInterval, headlessFlushMinChars) || time.Since(lastFlush) >= headlessFlushInterval {
				if flushed := buf.Flush(); flushed != "" {
					lastFlush = time.Now()
					chunks <- &agent.CompletionChunk{Text: flushed}
				}
			}
		}
	}

	waitErr := cmd.Wait()
	output := captured.String()

	if runCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("Error: cli_timeout_%dms\n%s", p.config.Timeout.Milliseconds(), streambuf.Truncate(stderr.String(), 2000))
	}
	if line, found := streambuf.ExtractError(output); found {
		return fmt.Errorf("error calling %s: %s", p.config.Name, line)
	}
	if waitErr != nil {
		return fmt.Errorf("error calling %s: %v\n%s", p.config.Name, waitErr, streambuf.Truncate(stderr.String(), 2000))
	}

	// Both framings are parsed; whichever reconstructed more text wins.
	markerBody, _ := streambuf.ExtractFinal(output)
	jsonBody, _ := streambuf.JSONLineDelta(lines)
	final := strings.TrimSpace(streambuf.RichestOf(markerBody, jsonBody))

	if calls, ok := streambuf.ExtractToolCalls(output); ok {
		for _, call := range calls {
			id := call.ID
			if id == "" {
				id = uuid.NewString()
			}
			chunks <- &agent.CompletionChunk{ToolCall: &models.ToolCall{ID: id, Name: call.Name, Input: call.Arguments}}
		}
	}

	if final != "" {
		buf.Append(final)
		if flushed := buf.Flush(); flushed != "" {
			chunks <- &agent.CompletionChunk{Text: flushed}
		}
	}
	chunks <- &agent.CompletionChunk{Done: true}
	return nil
}

// buildHeadlessCommand wraps .cmd scripts through cmd.exe on Windows so
// PATH resolution matches an interactive shell.
func buildHeadlessCommand(ctx context.Context, command string, args []string) *exec.Cmd {
	if runtime.GOOS == "windows" && strings.HasSuffix(strings.ToLower(command), ".cmd") {
		wrapped := append([]string{"/d", "/s", "/c", command}, args...)
		return exec.CommandContext(ctx, "cmd.exe", wrapped...)
	}
	return exec.CommandContext(ctx, command, args...)
}

// renderPrompt flattens a completion request into the single text prompt a
// headless CLI consumes, instructing it to frame the answer.
func renderPrompt(req *agent.CompletionRequest) string {
	var b strings.Builder
	if req.System != "" {
		b.WriteString(req.System)
		b.WriteString("\n\n")
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case "assistant":
			b.WriteString("Assistant: ")
		case "tool":
			b.WriteString("Tool result: ")
		default:
			b.WriteString("User: ")
		}
		b.WriteString(msg.Content)
		for _, result := range msg.ToolResults {
			b.WriteString("\n")
			b.WriteString(result.Content)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nWrite the final answer between ")
	b.WriteString(streambuf.FinalStart)
	b.WriteString(" and ")
	b.WriteString(streambuf.FinalEnd)
	b.WriteString(" markers, each on its own line.\n")
	return b.String()
}

// boundedWriter drops writes past limit so a runaway child can't exhaust
// memory through stderr.
type boundedWriter struct {
	b     *strings.Builder
	limit int
}

func (w boundedWriter) Write(p []byte) (int, error) {
	if w.b.Len() < w.limit {
		room := w.limit - w.b.Len()
		if room > len(p) {
			room = len(p)
		}
		w.b.Write(p[:room])
	}
	return len(p), nil
}
