// Package tracer is the child-side half of the trace bridge. A program run
// under the dashboard imports it and instruments functions with Enter/Exit;
// the package activates itself from the environment before the program's
// main runs and appends one JSON record per call or return to the
// side-channel file the dashboard created for this run.
//
// When the environment does not enable tracing every operation is inert: no
// file is touched, nothing is recorded, nothing panics. Instrumentation must
// never change the behavior of the traced program.
//
// The usual form is
//
//	func Fib(n int) (out int) {
//		defer tracer.Enter("Fib", tracer.Args{{"n", n}}).Exit(&out)
//		...
//	}
package tracer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Environment contract with the dashboard's executor.
const (
	// EnvTrace enables tracing when set to a truthy value.
	EnvTrace = "RUNTUI_TRACE"
	// EnvTracePath points at the side-channel file for this run.
	EnvTracePath = "RUNTUI_TRACE_PATH"
)

// Arg is one named argument value.
type Arg struct {
	Name  string
	Value any
}

// Args is the ordered argument list passed to Enter.
type Args []Arg

// Span represents one entered call. A nil Span is inert, so Enter's result
// can always be used directly in a defer.
type Span struct {
	name   string
	callID int
}

// callRecord and returnRecord are the two line shapes of the side-channel
// file. parent_id is an explicit null for root calls.
type callRecord struct {
	Type         string            `json:"type"`
	FunctionName string            `json:"function_name"`
	Filename     string            `json:"filename"`
	LineNo       int               `json:"line_no"`
	Args         map[string]string `json:"args"`
	CallID       int               `json:"call_id"`
	ParentID     *int              `json:"parent_id"`
}

type returnRecord struct {
	Type         string `json:"type"`
	FunctionName string `json:"function_name"`
	ReturnValue  string `json:"return_value"`
	CallID       int    `json:"call_id"`
}

// writer owns the side-channel file and mirrors the traced program's call
// nesting with its own stack and id counter. Ids are local to the child;
// the records are self-describing so the dashboard needs no shared id space.
type writer struct {
	mu     sync.Mutex
	f      *os.File
	stack  []int
	nextID int
	warn   sync.Once
}

var (
	mu     sync.Mutex
	active *writer

	// excludePrefixes lists source directories whose frames are not
	// recorded, so the dashboard's own code cannot trace itself. Test
	// files are always allowed.
	excludePrefixes []string
)

func init() {
	if _, file, _, ok := runtime.Caller(0); ok {
		pkgDir := filepath.Dir(file)
		modDir := filepath.Dir(pkgDir)
		excludePrefixes = []string{
			pkgDir,
			filepath.Join(modDir, "internal"),
			filepath.Join(modDir, "cmd"),
		}
	}
	initFromEnv()
}

// initFromEnv installs the writer if the environment enables tracing. It is
// the package-init bootstrap: by the time the traced program's main starts,
// the writer is already active.
func initFromEnv() {
	if !truthy(os.Getenv(EnvTrace)) {
		return
	}
	path := os.Getenv(EnvTracePath)
	if path == "" {
		return
	}
	_ = start(path)
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "", "0", "false", "no":
		return false
	}
	return true
}

// start opens the side-channel file and installs the writer. Failures leave
// tracing inactive; the traced program is never broken by its tracer.
func start(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "runtui tracer: cannot open trace file: %v\n", err)
		return err
	}
	mu.Lock()
	if active != nil {
		active.close()
	}
	active = &writer{f: f, nextID: 1}
	mu.Unlock()
	return nil
}

func current() *writer {
	mu.Lock()
	defer mu.Unlock()
	return active
}

// Enabled reports whether the writer is active for this process.
func Enabled() bool { return current() != nil }

// Close flushes and closes the side-channel file. Safe to call repeatedly
// and when tracing was never active; process exit makes the call optional.
func Close() {
	mu.Lock()
	w := active
	active = nil
	mu.Unlock()
	if w != nil {
		w.close()
	}
}

// Enter records a function call and returns its span. The caller's file and
// line are captured from the stack; frames inside the dashboard's own
// packages yield a nil (inert) span.
func Enter(functionName string, args Args) *Span {
	w := current()
	if w == nil {
		return nil
	}
	file := ""
	line := 0
	if _, f, l, ok := runtime.Caller(1); ok {
		file, line = f, l
	}
	if excludedFile(file) {
		return nil
	}
	return w.enter(functionName, file, line, args)
}

// Exit records the return of the span's call. Pointer results are
// dereferenced at exit time, so `defer Enter(...).Exit(&out)` reports the
// final value of a named result.
func (s *Span) Exit(results ...any) {
	if s == nil {
		return
	}
	w := current()
	if w == nil {
		return
	}
	w.exit(s.name, s.callID, formatResults(results))
}

func excludedFile(file string) bool {
	if file == "" {
		return false
	}
	if strings.HasSuffix(file, "_test.go") {
		return false
	}
	for _, p := range excludePrefixes {
		if strings.HasPrefix(file, p+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

func (w *writer) enter(name, file string, line int, args Args) *Span {
	formatted := make(map[string]string, len(args))
	for _, a := range args {
		formatted[a.Name] = formatValue(a.Value)
	}

	w.mu.Lock()
	id := w.nextID
	w.nextID++
	var parent *int
	if n := len(w.stack); n > 0 {
		p := w.stack[n-1]
		parent = &p
	}
	w.stack = append(w.stack, id)
	w.writeLocked(callRecord{
		Type:         "call",
		FunctionName: name,
		Filename:     file,
		LineNo:       line,
		Args:         formatted,
		CallID:       id,
		ParentID:     parent,
	})
	w.mu.Unlock()

	return &Span{name: name, callID: id}
}

func (w *writer) exit(name string, callID int, returnValue string) {
	w.mu.Lock()
	for i := len(w.stack) - 1; i >= 0; i-- {
		if w.stack[i] == callID {
			w.stack = append(w.stack[:i], w.stack[i+1:]...)
			break
		}
	}
	w.writeLocked(returnRecord{
		Type:         "return",
		FunctionName: name,
		ReturnValue:  returnValue,
		CallID:       callID,
	})
	w.mu.Unlock()
}

// writeLocked appends one record as a JSON line. Each line is flushed by the
// unbuffered write so the parent can read records the moment they exist.
// Errors are reported once and then swallowed.
func (w *writer) writeLocked(rec any) {
	if w.f == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err == nil {
		data = append(data, '\n')
		_, err = w.f.Write(data)
	}
	if err != nil {
		w.warn.Do(func() {
			fmt.Fprintf(os.Stderr, "runtui tracer: write failed: %v\n", err)
		})
	}
}

func (w *writer) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f != nil {
		_ = w.f.Sync()
		_ = w.f.Close()
		w.f = nil
	}
}
