// Package console provides an interactive shell over the device registry.
//
// Session holds the command set and the descriptor table and writes to any
// io.Writer; Console wraps a Session in a readline prompt. Descriptors are
// small integers starting at 3, the first number a POSIX process would get
// after stdin, stdout and stderr.
package console

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/agnivade/levenshtein"

	"github.com/nerrad567/chardev-core/internal/chardev"
)

// firstFD is the first descriptor handed out by open.
const firstFD = 3

// maxSuggestDistance is the largest edit distance still offered as a
// "did you mean" suggestion.
const maxSuggestDistance = 2

var (
	// ErrQuit is returned by Exec for the quit command.
	ErrQuit = errors.New("console: quit")

	// ErrUsage is returned when a command's arguments are malformed.
	ErrUsage = errors.New("console: usage")

	// ErrBadDescriptor is returned for a descriptor that is not open.
	ErrBadDescriptor = errors.New("console: bad descriptor")

	// ErrUnknownCommand is returned for an unrecognised command.
	ErrUnknownCommand = errors.New("console: unknown command")
)

type command struct {
	name  string
	usage string
	help  string
	run   func(s *Session, rest string) error
}

// commands is ordered as printed by help.
var commands []command

func init() {
	commands = []command{
		{"list", "list", "show every device", (*Session).cmdList},
		{"open", "open <minor>", "open a device, printing its descriptor", (*Session).cmdOpen},
		{"read", "read <fd> [max]", "read from the descriptor's offset", (*Session).cmdRead},
		{"write", "write <fd> <text>", "replace the device contents (text may be a quoted Go string)", (*Session).cmdWrite},
		{"ioctl", "ioctl <fd> <cmd> [arg]", "issue a control call", (*Session).cmdIoctl},
		{"close", "close <fd>", "release a descriptor", (*Session).cmdClose},
		{"handles", "handles", "show open descriptors", (*Session).cmdHandles},
		{"help", "help", "show this help", (*Session).cmdHelp},
		{"quit", "quit", "release every descriptor and leave", func(*Session, string) error { return ErrQuit }},
	}
}

// CommandNames returns the command names in help order.
func CommandNames() []string {
	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = c.name
	}
	return names
}

// Session executes console commands against a Registry.
//
// A Session is safe for concurrent use, though a console drives it from a
// single goroutine.
type Session struct {
	reg *chardev.Registry
	out io.Writer

	mu   sync.Mutex
	fds  map[int]*chardev.Handle
	next int
}

// NewSession creates a Session printing to out.
func NewSession(reg *chardev.Registry, out io.Writer) *Session {
	return &Session{
		reg:  reg,
		out:  out,
		fds:  make(map[int]*chardev.Handle),
		next: firstFD,
	}
}

// Exec runs one command line. Blank lines do nothing. It returns ErrQuit
// for quit and exit; any other error describes why the command failed.
func (s *Session) Exec(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	name, rest, _ := strings.Cut(line, " ")
	name = strings.ToLower(name)
	rest = strings.TrimSpace(rest)

	switch name {
	case "exit", "q":
		name = "quit"
	case "?":
		name = "help"
	case "ls":
		name = "list"
	}

	for _, c := range commands {
		if c.name == name {
			return c.run(s, rest)
		}
	}

	if guess := suggest(name); guess != "" {
		return fmt.Errorf("%w %q, did you mean %q?", ErrUnknownCommand, name, guess)
	}
	return fmt.Errorf("%w %q (type 'help' for commands)", ErrUnknownCommand, name)
}

// suggest returns the closest command name within maxSuggestDistance edits.
func suggest(name string) string {
	best, bestDist := "", maxSuggestDistance+1
	for _, c := range commands {
		if d := levenshtein.ComputeDistance(name, c.name); d < bestDist {
			best, bestDist = c.name, d
		}
	}
	return best
}

// CloseAll releases every open descriptor and returns how many there were.
func (s *Session) CloseAll() int {
	s.mu.Lock()
	fds := s.fds
	s.fds = make(map[int]*chardev.Handle)
	s.mu.Unlock()

	for _, h := range fds {
		h.Release() //nolint:errcheck // Releasing on exit; nothing left to report to
	}
	return len(fds)
}

// Open returns the open descriptors in ascending order.
func (s *Session) Open() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	fds := make([]int, 0, len(s.fds))
	for fd := range s.fds {
		fds = append(fds, fd)
	}
	slices.Sort(fds)
	return fds
}

func (s *Session) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...) //nolint:errcheck // Terminal output
}

func (s *Session) lookup(arg string) (int, *chardev.Handle, error) {
	fd, err := strconv.Atoi(arg)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: descriptor must be a number, got %q", ErrUsage, arg)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.fds[fd]
	if !ok {
		return 0, nil, fmt.Errorf("%w: %d", ErrBadDescriptor, fd)
	}
	return fd, h, nil
}

func (s *Session) cmdList(string) error {
	devices := s.reg.Devices()
	if devices == nil {
		return chardev.ErrNotInitialized
	}

	tw := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MINOR\tNAME\tSTATE\tLENGTH") //nolint:errcheck // Terminal output
	for _, d := range devices {
		state := "ready"
		if !d.Available {
			state = "unavailable"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d/%d\n", d.Minor, d.Name, state, d.Length, d.Capacity-1) //nolint:errcheck // Terminal output
	}
	return tw.Flush()
}

func (s *Session) cmdOpen(rest string) error {
	minor, err := strconv.Atoi(rest)
	if err != nil {
		return fmt.Errorf("%w: open <minor>", ErrUsage)
	}
	h, err := s.reg.Open(minor)
	if err != nil {
		return err
	}

	s.mu.Lock()
	fd := s.next
	s.next++
	s.fds[fd] = h
	s.mu.Unlock()

	s.printf("fd %d -> %s\n", fd, h.Name())
	return nil
}

func (s *Session) cmdRead(rest string) error {
	args := strings.Fields(rest)
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: read <fd> [max]", ErrUsage)
	}
	_, h, err := s.lookup(args[0])
	if err != nil {
		return err
	}

	maxBytes := s.reg.Capacity()
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 0 {
			return fmt.Errorf("%w: max must be a non-negative number", ErrUsage)
		}
		// Nothing beyond the device capacity can ever be read back.
		maxBytes = min(n, s.reg.Capacity())
	}

	buf := make([]byte, maxBytes)
	n, err := h.Read(buf)
	switch {
	case errors.Is(err, io.EOF):
		s.printf("(end of data, offset %d)\n", h.Offset())
		return nil
	case err != nil:
		return err
	}
	s.printf("%q (%d bytes, offset %d)\n", buf[:n], n, h.Offset())
	return nil
}

func (s *Session) cmdWrite(rest string) error {
	fdArg, text, _ := strings.Cut(rest, " ")
	if fdArg == "" {
		return fmt.Errorf("%w: write <fd> <text>", ErrUsage)
	}
	_, h, err := s.lookup(fdArg)
	if err != nil {
		return err
	}

	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, `"`) {
		unquoted, err := strconv.Unquote(text)
		if err != nil {
			return fmt.Errorf("%w: bad quoted text: %w", ErrUsage, err)
		}
		text = unquoted
	}

	n, err := h.Write([]byte(text))
	if err != nil {
		return err
	}
	if n < len(text) {
		s.printf("wrote %d of %d bytes (truncated)\n", n, len(text))
		return nil
	}
	s.printf("wrote %d bytes\n", n)
	return nil
}

func (s *Session) cmdIoctl(rest string) error {
	args := strings.Fields(rest)
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("%w: ioctl <fd> <cmd> [arg]", ErrUsage)
	}
	_, h, err := s.lookup(args[0])
	if err != nil {
		return err
	}

	cmd, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return fmt.Errorf("%w: cmd must be a number", ErrUsage)
	}
	var arg uint64
	if len(args) == 3 {
		if arg, err = strconv.ParseUint(args[2], 0, 64); err != nil {
			return fmt.Errorf("%w: arg must be a number", ErrUsage)
		}
	}

	status, err := h.Ioctl(uint(cmd), uintptr(arg))
	if err != nil {
		return err
	}
	s.printf("status %d\n", status)
	return nil
}

func (s *Session) cmdClose(rest string) error {
	fd, h, err := s.lookup(rest)
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.fds, fd)
	s.mu.Unlock()

	return h.Release()
}

func (s *Session) cmdHandles(string) error {
	fds := s.Open()
	if len(fds) == 0 {
		s.printf("no open descriptors\n")
		return nil
	}

	tw := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FD\tDEVICE\tOFFSET\tHANDLE") //nolint:errcheck // Terminal output
	s.mu.Lock()
	for _, fd := range fds {
		if h, ok := s.fds[fd]; ok {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", fd, h.Name(), h.Offset(), h.ID()) //nolint:errcheck // Terminal output
		}
	}
	s.mu.Unlock()
	return tw.Flush()
}

func (s *Session) cmdHelp(string) error {
	tw := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	for _, c := range commands {
		fmt.Fprintf(tw, "  %s\t%s\n", c.usage, c.help) //nolint:errcheck // Terminal output
	}
	return tw.Flush()
}
