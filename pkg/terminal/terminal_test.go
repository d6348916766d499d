package terminal

import (
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/luishsr/rustvm/pkg/shared"
	"github.com/luishsr/rustvm/pkg/store"
)

// fakeStore is an in-memory Programs implementation.
type fakeStore struct {
	mu       sync.Mutex
	programs map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{programs: make(map[string]string)}
}

func (f *fakeStore) key(owner, name string) string { return owner + "/" + name }

func (f *fakeStore) SaveProgram(owner, name, source string) (*store.Program, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.programs[f.key(owner, name)] = source
	return &store.Program{Owner: owner, Name: name, Source: source}, nil
}

func (f *fakeStore) LoadProgram(owner, name string) (*store.Program, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	source, ok := f.programs[f.key(owner, name)]
	if !ok {
		return nil, store.ErrProgramNotFound
	}
	return &store.Program{Owner: owner, Name: name, Source: source}, nil
}

func (f *fakeStore) ListPrograms(owner string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := owner + "/"
	var names []string
	for k := range f.programs {
		if strings.HasPrefix(k, prefix) {
			names = append(names, strings.TrimPrefix(k, prefix))
		}
	}
	sort.Strings(names)
	return names, nil
}

// newTestSession builds a session without a websocket connection. The
// dispatch and run paths never touch the connection; output lands on
// outputChan where the tests read it directly.
func newTestSession(t *testing.T) *session {
	t.Helper()
	return &session{
		id:         "test-session",
		store:      newFakeStore(),
		outputChan: make(chan shared.Message, 64),
		done:       make(chan struct{}),
	}
}

func nextMessage(t *testing.T, s *session) shared.Message {
	t.Helper()
	select {
	case msg := <-s.outputChan:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a session message")
		return shared.Message{}
	}
}

// collectRun reads messages until the run finishes, returning the program's
// text output and the terminating status or error message.
func collectRun(t *testing.T, s *session) ([]string, shared.Message) {
	t.Helper()
	var texts []string
	for {
		msg := nextMessage(t, s)
		switch msg.Type {
		case shared.MessageTypeText:
			texts = append(texts, msg.Content)
		case shared.MessageTypeStatus:
			if msg.Content == "done" {
				return texts, msg
			}
		case shared.MessageTypeError:
			return texts, msg
		}
	}
}

func sessionRunning(s *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func TestOwnerPrefersUsername(t *testing.T) {
	s := newTestSession(t)
	if s.owner() != "test-session" {
		t.Errorf("guest owner = %q, want the session id", s.owner())
	}
	s.username = "alice"
	if s.owner() != "alice" {
		t.Errorf("owner = %q, want alice", s.owner())
	}
}

func TestRunStreamsProgramOutput(t *testing.T) {
	s := newTestSession(t)
	s.handleClientMessage(ClientMessage{Type: "run", Program: "PUSH 7\nPRINT\n"})

	texts, final := collectRun(t, s)
	if final.Type != shared.MessageTypeStatus {
		t.Fatalf("run ended with %+v, want done status", final)
	}
	if len(texts) != 1 || texts[0] != "7" {
		t.Errorf("output = %v, want [7]", texts)
	}
}

func TestRunRejectsEmptyProgram(t *testing.T) {
	s := newTestSession(t)
	s.handleClientMessage(ClientMessage{Type: "run", Program: "   "})

	msg := nextMessage(t, s)
	if msg.Type != shared.MessageTypeError || msg.Content != "empty program" {
		t.Errorf("message = %+v, want empty program error", msg)
	}
}

func TestRunReportsFatalErrors(t *testing.T) {
	s := newTestSession(t)
	s.handleClientMessage(ClientMessage{Type: "run", Program: "DIV 1 0\n"})

	_, final := collectRun(t, s)
	if final.Type != shared.MessageTypeError {
		t.Fatalf("run ended with %+v, want an error message", final)
	}
	if !strings.Contains(final.Content, "division by zero") {
		t.Errorf("error content = %q, want division by zero", final.Content)
	}
}

func TestRunStored(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.store.SaveProgram(s.owner(), "answer", "PUSH 42\nPRINT\n"); err != nil {
		t.Fatalf("SaveProgram failed: %v", err)
	}

	s.handleClientMessage(ClientMessage{Type: "runstored", Name: "answer"})
	texts, final := collectRun(t, s)
	if final.Type != shared.MessageTypeStatus {
		t.Fatalf("run ended with %+v, want done status", final)
	}
	if len(texts) != 1 || texts[0] != "42" {
		t.Errorf("output = %v, want [42]", texts)
	}
}

func TestRunStoredMissingProgram(t *testing.T) {
	s := newTestSession(t)
	s.handleClientMessage(ClientMessage{Type: "runstored", Name: "nope"})

	msg := nextMessage(t, s)
	if msg.Type != shared.MessageTypeError || msg.Content != "program not found: nope" {
		t.Errorf("message = %+v, want program-not-found error", msg)
	}
}

func TestSaveAndList(t *testing.T) {
	s := newTestSession(t)

	s.handleClientMessage(ClientMessage{Type: "save", Name: "b", Program: "PRINT"})
	if msg := nextMessage(t, s); msg.Type != shared.MessageTypeStatus || msg.Content != "saved b" {
		t.Fatalf("message = %+v, want saved status", msg)
	}
	s.handleClientMessage(ClientMessage{Type: "save", Name: "a", Program: "PRINT"})
	nextMessage(t, s)

	s.handleClientMessage(ClientMessage{Type: "list"})
	msg := nextMessage(t, s)
	if msg.Type != shared.MessageTypeStatus || msg.Content != "a\nb" {
		t.Errorf("list message = %+v, want names a and b", msg)
	}
}

func TestSaveRequiresNameAndProgram(t *testing.T) {
	s := newTestSession(t)
	s.handleClientMessage(ClientMessage{Type: "save", Name: "", Program: "PRINT"})
	if msg := nextMessage(t, s); msg.Type != shared.MessageTypeError {
		t.Errorf("message = %+v, want an error", msg)
	}
	s.handleClientMessage(ClientMessage{Type: "save", Name: "x", Program: "  "})
	if msg := nextMessage(t, s); msg.Type != shared.MessageTypeError {
		t.Errorf("message = %+v, want an error", msg)
	}
}

func TestUnknownMessageType(t *testing.T) {
	s := newTestSession(t)
	s.handleClientMessage(ClientMessage{Type: "bogus"})

	msg := nextMessage(t, s)
	if msg.Type != shared.MessageTypeError || msg.Content != "unknown message type: bogus" {
		t.Errorf("message = %+v, want unknown-type error", msg)
	}
}

func TestOneRunPerSession(t *testing.T) {
	s := newTestSession(t)
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.startRun("PRINT")
	msg := nextMessage(t, s)
	if msg.Type != shared.MessageTypeError || msg.Content != "a program is already running" {
		t.Errorf("message = %+v, want already-running error", msg)
	}
}

func TestInputFeedsBlockedProgram(t *testing.T) {
	s := newTestSession(t)
	s.handleClientMessage(ClientMessage{Type: "run", Program: "Input x\nGET x\nPRINT\n"})

	var texts []string
	for {
		msg := nextMessage(t, s)
		switch {
		case msg.Type == shared.MessageTypeInputControl && msg.Content == "enable":
			s.handleClientMessage(ClientMessage{Type: "input", Content: "41"})
		case msg.Type == shared.MessageTypeText:
			texts = append(texts, msg.Content)
		case msg.Type == shared.MessageTypeError:
			t.Fatalf("run failed: %s", msg.Content)
		case msg.Type == shared.MessageTypeStatus && msg.Content == "done":
			if len(texts) != 1 || texts[0] != "41" {
				t.Errorf("output = %v, want [41]", texts)
			}
			return
		}
	}
}

// TestDisconnectAbortsBlockedRun covers the disconnect path: a program
// blocked on Input must not outlive its session. abort is what readLoop's
// cleanup calls; it closes the input pipe, failing the blocked read so the
// interpreter goroutine errors out and releases its resources.
func TestDisconnectAbortsBlockedRun(t *testing.T) {
	s := newTestSession(t)
	s.handleClientMessage(ClientMessage{Type: "run", Program: "Input x\nPRINT\n"})

	for {
		msg := nextMessage(t, s)
		if msg.Type == shared.MessageTypeInputControl && msg.Content == "enable" {
			break
		}
	}

	s.abort()

	sawError := false
	for !sawError {
		if msg := nextMessage(t, s); msg.Type == shared.MessageTypeError {
			sawError = true
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for sessionRunning(s) {
		if time.Now().After(deadline) {
			t.Fatal("interpreter goroutine still running after the session was aborted")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAbortBeforePipeInstalled(t *testing.T) {
	s := newTestSession(t)
	// Disconnect first, then start a run that would otherwise block forever.
	s.abort()
	s.startRun("Input x\nPRINT\n")

	deadline := time.Now().Add(2 * time.Second)
	for sessionRunning(s) {
		if time.Now().After(deadline) {
			t.Fatal("run on an aborted session never finished")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLineWriterBuffersPartialLines(t *testing.T) {
	s := newTestSession(t)
	w := &lineWriter{session: s}

	w.Write([]byte("he"))
	select {
	case msg := <-s.outputChan:
		t.Fatalf("partial line produced message %+v", msg)
	default:
	}

	w.Write([]byte("llo\nwor"))
	msg := nextMessage(t, s)
	if msg.Type != shared.MessageTypeText || msg.Content != "hello" {
		t.Errorf("message = %+v, want text hello", msg)
	}

	w.Write([]byte("ld\n"))
	msg = nextMessage(t, s)
	if msg.Content != "world" {
		t.Errorf("message content = %q, want world", msg.Content)
	}
}

func TestLineWriterSplitsMultipleLines(t *testing.T) {
	s := newTestSession(t)
	w := &lineWriter{session: s}

	w.Write([]byte("1\n2\n3\n"))
	for _, want := range []string{"1", "2", "3"} {
		msg := nextMessage(t, s)
		if msg.Content != want {
			t.Errorf("message content = %q, want %q", msg.Content, want)
		}
	}
}
