package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// prompter reads answers from the user. Secrets are read without echo
// when in is a terminal, and as plain lines otherwise so scripts can
// pipe them in.
type prompter struct {
	in     *bufio.Reader
	out    io.Writer
	fd     int
	isTerm bool
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{in: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok {
		p.fd = int(f.Fd())
		p.isTerm = term.IsTerminal(p.fd)
	}
	return p
}

// Line prints label and reads one trimmed line.
func (p *prompter) Line(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Secret prints label and reads a value without echoing it.
func (p *prompter) Secret(label string) (string, error) {
	if !p.isTerm {
		return p.Line(label)
	}

	fmt.Fprint(p.out, label)
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// Confirm asks a yes/no question; anything but y or yes is no.
func (p *prompter) Confirm(label string) (bool, error) {
	answer, err := p.Line(label + " [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
