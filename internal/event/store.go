package event

import (
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// callIDBase is the first id assigned within one store lifetime.
const callIDBase = 1

// Store aggregates everything observed during a run: output lines, calls,
// returns and exceptions. All mutating methods are safe for concurrent use
// from any goroutine. Each mutation appends to the matching collection and
// queues a notification; a pump goroutine delivers notifications on the
// channel returned by Events in arrival order, so producers never block on a
// slow consumer. The lock is never held across a channel send.
type Store struct {
	mu         sync.Mutex
	wake       *sync.Cond
	outputs    []OutputLine
	calls      []Call
	returns    []Return
	exceptions []Exception
	callStack  []int
	nextCallID int
	pending    []Event
	closed     bool

	events chan Event
	quit   chan struct{}
}

func NewStore() *Store {
	s := &Store{
		nextCallID: callIDBase,
		events:     make(chan Event),
		quit:       make(chan struct{}),
	}
	s.wake = sync.NewCond(&s.mu)
	go s.pump()
	return s
}

// Events returns the channel the rendering layer drains. Every mutation is
// delivered exactly once, in arrival order across all four kinds. The
// channel is closed after Close.
func (s *Store) Events() <-chan Event { return s.events }

// Close stops notification delivery and closes the Events channel. Pending
// undelivered notifications are dropped. Mutations after Close still update
// the collections. Close is idempotent.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.quit)
	s.wake.Signal()
}

func (s *Store) pump() {
	defer close(s.events)
	for {
		s.mu.Lock()
		for len(s.pending) == 0 && !s.closed {
			s.wake.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, ev := range batch {
			select {
			case s.events <- ev:
			case <-s.quit:
				return
			}
		}
	}
}

// notify queues a notification for delivery. Callers must hold s.mu.
func (s *Store) notify(ev Event) {
	if s.closed {
		return
	}
	s.pending = append(s.pending, ev)
	s.wake.Signal()
}

// AddOutput records one line of output. It never fails.
func (s *Store) AddOutput(content string, stream Stream) *OutputLine {
	line := OutputLine{Content: content, Stream: stream, Timestamp: time.Now()}
	s.mu.Lock()
	s.outputs = append(s.outputs, line)
	s.notify(Event{Kind: KindOutput, Output: &line})
	s.mu.Unlock()
	return &line
}

// AddCall records a function call. The store assigns the next call id and
// links the call to the innermost entered-but-not-returned call, then pushes
// the new id onto the active-call stack.
func (s *Store) AddCall(functionName, filename string, lineNo int, args map[string]string) *Call {
	return s.addCall(functionName, filename, lineNo, args, 0, 0)
}

// AddCallWithID records a call whose id and parent were assigned by the
// trace writer inside the child process. The store's id counter advances
// past callID so ids assigned later remain unique. A non-positive parentID
// falls back to the active-call stack top.
func (s *Store) AddCallWithID(functionName, filename string, lineNo int, args map[string]string, callID, parentID int) *Call {
	return s.addCall(functionName, filename, lineNo, args, callID, parentID)
}

func (s *Store) addCall(functionName, filename string, lineNo int, args map[string]string, callID, parentID int) *Call {
	now := time.Now()
	s.mu.Lock()
	if callID <= 0 {
		callID = s.nextCallID
		s.nextCallID++
	} else if callID >= s.nextCallID {
		s.nextCallID = callID + 1
	}
	if parentID <= 0 && len(s.callStack) > 0 {
		parentID = s.callStack[len(s.callStack)-1]
	}
	call := Call{
		FunctionName: functionName,
		Filename:     filename,
		LineNo:       lineNo,
		Args:         args,
		CallID:       callID,
		ParentID:     parentID,
		Timestamp:    now,
	}
	s.calls = append(s.calls, call)
	s.callStack = append(s.callStack, callID)
	s.notify(Event{Kind: KindCall, Call: &call})
	s.mu.Unlock()
	return &call
}

// AddReturn records a function return and pops the active-call stack. An
// empty stack is tolerated: the return is still recorded, with CallID zero.
func (s *Store) AddReturn(functionName, returnValue string) *Return {
	return s.addReturn(functionName, returnValue, 0)
}

// AddReturnWithID records a return for a specific call id. The id is removed
// from the active-call stack if present; the stack is otherwise untouched.
// A non-positive callID behaves as AddReturn.
func (s *Store) AddReturnWithID(functionName, returnValue string, callID int) *Return {
	return s.addReturn(functionName, returnValue, callID)
}

func (s *Store) addReturn(functionName, returnValue string, callID int) *Return {
	now := time.Now()
	s.mu.Lock()
	if callID <= 0 {
		callID = 0
		if n := len(s.callStack); n > 0 {
			callID = s.callStack[n-1]
			s.callStack = s.callStack[:n-1]
		}
	} else {
		for i, id := range s.callStack {
			if id == callID {
				s.callStack = append(s.callStack[:i], s.callStack[i+1:]...)
				break
			}
		}
	}
	ret := Return{
		FunctionName: functionName,
		ReturnValue:  returnValue,
		CallID:       callID,
		Timestamp:    now,
	}
	s.returns = append(s.returns, ret)
	s.notify(Event{Kind: KindReturn, Return: &ret})
	s.mu.Unlock()
	return &ret
}

// AddException records an error with its dynamic type, message and the
// calling goroutine's stack. A nil error is ignored.
func (s *Store) AddException(err error) *Exception {
	if err == nil {
		return nil
	}
	tb := strings.Split(strings.TrimRight(string(debug.Stack()), "\n"), "\n")
	exc := Exception{
		ExceptionType: fmt.Sprintf("%T", err),
		Message:       err.Error(),
		Traceback:     tb,
		Timestamp:     time.Now(),
	}
	s.mu.Lock()
	s.exceptions = append(s.exceptions, exc)
	s.notify(Event{Kind: KindException, Exception: &exc})
	s.mu.Unlock()
	return &exc
}

// Clear atomically drops all four collections, empties the active-call stack
// and resets call-id assignment to its base. Notifications already queued
// for delivery are not retracted.
func (s *Store) Clear() {
	s.mu.Lock()
	s.outputs = nil
	s.calls = nil
	s.returns = nil
	s.exceptions = nil
	s.callStack = nil
	s.nextCallID = callIDBase
	s.mu.Unlock()
}

// Output returns a copy of the recorded output lines.
func (s *Store) Output() []OutputLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OutputLine, len(s.outputs))
	copy(out, s.outputs)
	return out
}

// Calls returns a copy of the recorded calls.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Returns returns a copy of the recorded returns.
func (s *Store) Returns() []Return {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Return, len(s.returns))
	copy(out, s.returns)
	return out
}

// Exceptions returns a copy of the recorded exceptions.
func (s *Store) Exceptions() []Exception {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Exception, len(s.exceptions))
	copy(out, s.exceptions)
	return out
}

// Counts reports all collection sizes under one lock acquisition.
func (s *Store) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counts{
		Output:     len(s.outputs),
		Calls:      len(s.calls),
		Returns:    len(s.returns),
		Exceptions: len(s.exceptions),
	}
}

// ActiveCalls reports how many entered calls have not yet returned.
func (s *Store) ActiveCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.callStack)
}
