package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/nerrad567/chardev-core/internal/chardev"
)

// Console is a readline prompt driving a Session.
type Console struct {
	rl   *readline.Instance
	sess *Session
}

// New creates a Console on the process terminal.
func New(reg *chardev.Registry, prompt string) (*Console, error) {
	return NewWithConfig(reg, &readline.Config{Prompt: prompt})
}

// NewWithConfig creates a Console from a readline configuration. The
// interrupt and EOF prompts and the completer are filled in when unset;
// tests use this to supply their own Stdin and Stdout.
func NewWithConfig(reg *chardev.Registry, cfg *readline.Config) (*Console, error) {
	if cfg.InterruptPrompt == "" {
		cfg.InterruptPrompt = "^C"
	}
	if cfg.EOFPrompt == "" {
		cfg.EOFPrompt = "quit"
	}
	if cfg.AutoComplete == nil {
		cfg.AutoComplete = completer()
	}

	rl, err := readline.NewEx(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating readline: %w", err)
	}
	return &Console{
		rl:   rl,
		sess: NewSession(reg, rl.Stdout()),
	}, nil
}

func completer() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(commands))
	for _, name := range CommandNames() {
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}

// Stdout returns a writer that does not disturb the prompt. Route log
// output here while the console runs.
func (c *Console) Stdout() io.Writer { return c.rl.Stdout() }

// Session returns the underlying command session.
func (c *Console) Session() *Session { return c.sess }

// Run reads and executes commands until quit, end of input, or ctx is
// cancelled. Descriptors still open when it returns are released.
// Cancelling ctx takes effect at the next prompt; call Close to interrupt
// a pending read.
func (c *Console) Run(ctx context.Context) error {
	defer c.sess.CloseAll()

	out := c.rl.Stdout()
	fmt.Fprintln(out, "chardev console; type 'help' for commands") //nolint:errcheck // Terminal output

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		line, err := c.rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if line == "" {
				return nil
			}
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("reading console input: %w", err)
		}

		if err := c.sess.Exec(line); err != nil {
			if errors.Is(err, ErrQuit) {
				return nil
			}
			fmt.Fprintf(out, "error: %s\n", strings.TrimPrefix(err.Error(), "console: ")) //nolint:errcheck // Terminal output
		}
	}
}

// Close releases the terminal. A Run blocked in Readline returns.
func (c *Console) Close() error {
	return c.rl.Close()
}
