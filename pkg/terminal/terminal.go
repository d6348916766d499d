// Package terminal serves interpreter runs over websocket connections. Each
// connection is one session; a session runs at most one program at a time
// and bridges the program's PRINT output and Input lines to the client.
package terminal

import (
	"io"
	"os"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/luishsr/rustvm/pkg/logger"
	"github.com/luishsr/rustvm/pkg/shared"
	"github.com/luishsr/rustvm/pkg/stackvm"
	"github.com/luishsr/rustvm/pkg/store"
)

// Programs is the subset of the store the session layer needs.
type Programs interface {
	SaveProgram(owner, name, source string) (*store.Program, error)
	LoadProgram(owner, name string) (*store.Program, error)
	ListPrograms(owner string) ([]string, error)
}

// Handler accepts websocket connections and runs programs for them.
type Handler struct {
	store Programs
}

// NewHandler creates a Handler backed by the given program store.
func NewHandler(st Programs) *Handler {
	return &Handler{store: st}
}

// session is the per-connection state. The interpreter runs in its own
// goroutine; outputChan carries engine output to the write pump and
// inputWriter feeds client input lines into the engine's blocking reader.
type session struct {
	id       string
	username string
	conn     *websocket.Conn
	store    Programs

	outputChan chan shared.Message

	mu          sync.Mutex
	running     bool
	aborted     bool
	inputWriter *io.PipeWriter

	done chan struct{}
}

// owner returns the store owner key for this session: the username for
// logged-in users, the session id for guests.
func (s *session) owner() string {
	if s.username != "" {
		return s.username
	}
	return s.id
}

// sendMessage queues a message for the client, dropping it if the output
// channel is full.
func (s *session) sendMessage(msgType shared.MessageType, content string) bool {
	msg := shared.Message{Type: msgType, Content: content, SessionID: s.id}
	select {
	case s.outputChan <- msg:
		return true
	default:
		logger.Warn(logger.AreaSession, "Output channel full, dropping message for session %s", s.id)
		return false
	}
}

// startRun launches a program in a fresh goroutine. Only one program may run
// per session at a time.
func (s *session) startRun(source string) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.sendMessage(shared.MessageTypeError, "a program is already running")
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.runProgram(source)
}

// runProgram executes one program source. The source is staged to a
// temporary file because the engine's else re-scan reopens the program file
// by path; running from memory would break that contract.
func (s *session) runProgram(source string) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.inputWriter = nil
		s.mu.Unlock()
		s.sendMessage(shared.MessageTypeInputControl, "disable")
	}()

	tmp, err := os.CreateTemp("", "rustvm-*.rm")
	if err != nil {
		logger.Error(logger.AreaSession, "Failed to stage program for session %s: %v", s.id, err)
		s.sendMessage(shared.MessageTypeError, "failed to stage program")
		return
	}
	path := tmp.Name()
	defer os.Remove(path)

	if _, err := tmp.WriteString(source); err != nil {
		tmp.Close()
		s.sendMessage(shared.MessageTypeError, "failed to stage program")
		return
	}
	tmp.Close()

	program, err := stackvm.TranslateFile(path)
	if err != nil {
		s.sendMessage(shared.MessageTypeError, err.Error())
		return
	}

	pr, pw := io.Pipe()
	s.mu.Lock()
	s.inputWriter = pw
	aborted := s.aborted
	s.mu.Unlock()
	defer pr.Close()
	if aborted {
		// The client disconnected before the pipe was installed; close it
		// here so the run cannot block on Input.
		pw.CloseWithError(io.ErrClosedPipe)
	}

	machine := stackvm.New(
		&inputBridge{reader: pr, session: s},
		&lineWriter{session: s},
	)

	logger.Info(logger.AreaSession, "Session %s starting run (%d top-level instructions)", s.id, len(program))
	s.sendMessage(shared.MessageTypeStatus, "running")

	if err := machine.Run(program, path); err != nil {
		logger.Info(logger.AreaSession, "Session %s run failed: %v", s.id, err)
		s.sendMessage(shared.MessageTypeError, err.Error())
		return
	}
	s.sendMessage(shared.MessageTypeStatus, "done")
}

// abort unblocks a program still running after the client went away.
// Closing the input pipe fails any blocked Input read, which is fatal to the
// run, so the interpreter goroutine exits and its cleanup runs.
func (s *session) abort() {
	s.mu.Lock()
	s.aborted = true
	w := s.inputWriter
	s.mu.Unlock()

	if w != nil {
		w.CloseWithError(io.ErrClosedPipe)
	}
}

// feedInput hands one client line to the running program. Input arriving
// with no program waiting is discarded.
func (s *session) feedInput(content string) {
	s.mu.Lock()
	w := s.inputWriter
	s.mu.Unlock()

	if w == nil {
		logger.Debug(logger.AreaSession, "Session %s: input with no running program", s.id)
		return
	}
	// The pipe write blocks until the engine reads; keep the read loop free.
	go func() {
		w.Write([]byte(content + "\n"))
	}()
}

// inputBridge adapts the session input pipe to the engine's reader. An
// input-control message is raised before each blocking read so the client
// enables its input line exactly while the program waits.
type inputBridge struct {
	reader  *io.PipeReader
	session *session
}

func (b *inputBridge) Read(p []byte) (int, error) {
	b.session.sendMessage(shared.MessageTypeInputControl, "enable")
	n, err := b.reader.Read(p)
	b.session.sendMessage(shared.MessageTypeInputControl, "disable")
	return n, err
}

// lineWriter turns engine output into one text message per completed line.
type lineWriter struct {
	session *session
	buf     []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		idx := -1
		for i, c := range w.buf {
			if c == '\n' {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}
		w.session.sendMessage(shared.MessageTypeText, string(w.buf[:idx]))
		w.buf = w.buf[idx+1:]
	}
	return len(p), nil
}
