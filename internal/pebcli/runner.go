package pebcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// defaultTimeout is the maximum time a peb invocation can run before being killed
	defaultTimeout = 30 * time.Second

	// defaultMaxOutput is the maximum number of bytes kept from stdout/stderr (10MB)
	defaultMaxOutput = 10 * 1024 * 1024

	// waitDelay bounds how long Wait waits for the output pipes after peb is
	// killed, since processes forked by a wrapper command can keep them open.
	waitDelay = time.Second
)

// ErrOutputExceeded is returned when peb writes more than the configured cap.
var ErrOutputExceeded = errors.New("peb output exceeded limit")

// Runner executes the peb binary as a subprocess.
// The zero value runs "peb" from PATH in the current directory.
type Runner struct {
	// Command is the invocation prefix; arguments are appended to it
	Command []string

	// Dir is the working directory; peb discovers .pebbles/ from here
	Dir string

	// Env is appended to the parent environment when non-empty
	Env []string

	Timeout        time.Duration
	MaxOutputBytes int

	// Logger receives debug traces; nil disables them
	Logger *zerolog.Logger
}

func (r *Runner) log() *zerolog.Logger {
	if r.Logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return r.Logger
}

// Result is the captured outcome of one peb invocation.
type Result struct {
	Args     []string
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Failed reports whether peb exited non-zero or never ran.
func (r *Result) Failed() bool {
	return r.ExitCode != 0
}

// Text is the tool-facing rendering of the result: trimmed stdout, followed by
// the trimmed stderr on an "Error:" line when peb wrote anything there.
func (r *Result) Text() string {
	out := strings.TrimSpace(r.Stdout)
	errOut := strings.TrimSpace(r.Stderr)
	if errOut == "" {
		return out
	}
	if out == "" {
		return "Error: " + errOut
	}
	return out + "\nError: " + errOut
}

// Run invokes peb with args. stdin is written to the process and the pipe is
// closed; an empty stdin leaves the process without input.
//
// A non-zero exit is not an error: it is reported through Result.ExitCode so
// callers can forward peb's own message. Errors are returned when the process
// could not start, timed out, or produced more output than allowed; Result is
// still populated with whatever was captured (ExitCode -1).
func (r *Runner) Run(ctx context.Context, stdin string, args ...string) (*Result, error) {
	command := r.Command
	if len(command) == 0 {
		command = []string{"peb"}
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := r.MaxOutputBytes
	if limit <= 0 {
		limit = defaultMaxOutput
	}

	argv := append(append([]string{}, command[1:]...), args...)
	result := &Result{Args: args, ExitCode: -1}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, command[0], argv...)
	cmd.WaitDelay = waitDelay
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}

	stdoutBuf := &bytes.Buffer{}
	stderrBuf := &bytes.Buffer{}
	stdoutW := &limitedWriter{w: stdoutBuf, limit: limit}
	stderrW := &limitedWriter{w: stderrBuf, limit: limit}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	var stdinPipe io.WriteCloser
	if stdin != "" {
		pipe, err := cmd.StdinPipe()
		if err != nil {
			return result, fmt.Errorf("failed to create stdin pipe: %w", err)
		}
		stdinPipe = pipe
	}

	r.log().Debug().Strs("command", command).Strs("args", args).Str("dir", r.Dir).Msg("Running peb")

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return result, fmt.Errorf("failed to start %s: %w", command[0], err)
	}

	if stdinPipe != nil {
		go func() {
			defer stdinPipe.Close()
			if _, err := io.WriteString(stdinPipe, stdin); err != nil {
				r.log().Warn().Err(err).Msg("Failed to write to peb stdin")
			}
		}()
	}

	err := cmd.Wait()
	result.Duration = time.Since(start)
	result.Stdout = stdoutBuf.String()
	result.Stderr = stderrBuf.String()

	if execCtx.Err() == context.DeadlineExceeded {
		return result, fmt.Errorf("peb timed out after %s", timeout)
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return result, fmt.Errorf("failed to run %s: %w", command[0], err)
		}
		result.ExitCode = exitErr.ExitCode()
	} else {
		result.ExitCode = 0
	}

	if stdoutW.overflow || stderrW.overflow {
		return result, fmt.Errorf("%w of %d bytes", ErrOutputExceeded, limit)
	}

	r.log().Debug().Strs("args", args).Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).Msg("peb finished")

	return result, nil
}

// limitedWriter wraps a writer and enforces a size limit.
// Once the limit is reached, further writes are discarded.
type limitedWriter struct {
	w        io.Writer
	limit    int
	written  int
	overflow bool
}

func (lw *limitedWriter) Write(p []byte) (n int, err error) {
	remaining := lw.limit - lw.written
	if remaining <= 0 {
		lw.overflow = lw.overflow || len(p) > 0
		return len(p), nil
	}

	toWrite := p
	if len(p) > remaining {
		toWrite = p[:remaining]
		lw.overflow = true
	}

	n, err = lw.w.Write(toWrite)
	lw.written += n
	return len(p), err // Return len(p) to satisfy the writer interface
}
