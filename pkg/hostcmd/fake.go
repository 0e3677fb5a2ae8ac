package hostcmd

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Call records a single invocation seen by a FakeRunner.
type Call struct {
	Name string
	Args []string
}

// String renders the call the way it would appear on a shell command line.
func (c Call) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// FakeRunner is a scripted Runner for tests. Responses are matched by command
// name; unmatched commands succeed with empty output unless Strict is set.
type FakeRunner struct {
	mu        sync.Mutex
	calls     []Call
	responses map[string]response
	Strict    bool
}

type response struct {
	res Result
	err error
}

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{responses: make(map[string]response)}
}

// Respond scripts the result returned for every invocation of name.
func (f *FakeRunner) Respond(name string, res Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[name] = response{res: res}
}

// Fail scripts a start failure for every invocation of name.
func (f *FakeRunner) Fail(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[name] = response{err: err}
}

func (f *FakeRunner) Run(_ context.Context, name string, args ...string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Name: name, Args: args})

	if r, ok := f.responses[name]; ok {
		return r.res, r.err
	}
	if f.Strict {
		return Result{}, fmt.Errorf("unscripted command: %s", name)
	}
	return Result{}, nil
}

// Calls returns the recorded invocations in order.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallLines renders all recorded calls, one per line, for assertions.
func (f *FakeRunner) CallLines() []string {
	calls := f.Calls()
	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = c.String()
	}
	return lines
}
