package orchestrator

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// DecisionPolicy decides whether a sequence start goes on after a unit
// failed to start.
type DecisionPolicy interface {
	ContinueAfter(id string, err error) bool
}

// PolicyFunc adapts a function to DecisionPolicy.
type PolicyFunc func(id string, err error) bool

func (f PolicyFunc) ContinueAfter(id string, err error) bool { return f(id, err) }

var (
	// ContinueOnFailure keeps going.
	ContinueOnFailure DecisionPolicy = PolicyFunc(func(string, error) bool { return true })
	// AbortOnFailure stops at the first failure.
	AbortOnFailure DecisionPolicy = PolicyFunc(func(string, error) bool { return false })
)

// ErrNotInteractive is returned when the ask policy is requested without a
// terminal to ask on.
var ErrNotInteractive = errors.New("ask policy needs an interactive terminal")

// AskPolicy prompts the operator and blocks until a line is read. Only an
// answer starting with y continues; EOF aborts.
type AskPolicy struct {
	in  *bufio.Reader
	out io.Writer
}

func NewAskPolicy(in io.Reader, out io.Writer) *AskPolicy {
	return &AskPolicy{in: bufio.NewReader(in), out: out}
}

func (a *AskPolicy) ContinueAfter(id string, err error) bool {
	_, _ = fmt.Fprintf(a.out, "%s failed to start: %v\nContinue with the remaining units? (y/N)\n> ", id, err)
	line, _ := a.in.ReadString('\n')
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "y")
}

// ParsePolicy maps continue, abort and ask to a policy. Ask is refused
// when in is not a terminal so unattended runs cannot hang.
func ParsePolicy(name string, in *os.File, out io.Writer) (DecisionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "continue", "yes":
		return ContinueOnFailure, nil
	case "abort", "no":
		return AbortOnFailure, nil
	case "ask", "":
		if in == nil || !term.IsTerminal(int(in.Fd())) {
			return nil, ErrNotInteractive
		}
		return NewAskPolicy(in, out), nil
	}
	return nil, fmt.Errorf("unknown failure policy %q (want continue, abort or ask)", name)
}
