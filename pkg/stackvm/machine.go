package stackvm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/luishsr/rustvm/pkg/configuration"
	"github.com/luishsr/rustvm/pkg/logger"
)

// defaultMaxDepth bounds recursive branch execution. Branch bodies execute
// by ordinary recursion, and the else re-scan can feed a program back into
// itself indefinitely, so the depth must be capped as a fatal error instead
// of running into a Go stack overflow.
const defaultMaxDepth = 1000

// Machine is the mutable interpreter state: one operand stack and one
// variable table. A fresh Machine is created per top-level run and shared by
// reference across every recursive branch execution; there is no isolation
// between branches. Single-threaded, exactly one mutator at a time.
type Machine struct {
	stack    []int32
	vars     map[string]int32
	in       *bufio.Reader
	out      io.Writer
	depth    int
	maxDepth int
}

// New creates a Machine reading Input lines from in and writing PRINT output
// to out.
func New(in io.Reader, out io.Writer) *Machine {
	return &Machine{
		vars:     make(map[string]int32),
		in:       bufio.NewReader(in),
		out:      out,
		maxDepth: configuration.GetInt("Interpreter", "max_recursion_depth", defaultMaxDepth),
	}
}

// SetMaxDepth overrides the recursion depth limit.
func (m *Machine) SetMaxDepth(n int) {
	m.maxDepth = n
}

// StackTop returns the current top of the operand stack.
func (m *Machine) StackTop() (int32, bool) {
	if len(m.stack) == 0 {
		return 0, false
	}
	return m.stack[len(m.stack)-1], true
}

// Var returns the current binding of a variable name.
func (m *Machine) Var(name string) (int32, bool) {
	v, ok := m.vars[name]
	return v, ok
}

func (m *Machine) push(v int32) {
	m.stack = append(m.stack, v)
}

// resolve produces the value of an operand: the literal itself, or the
// current variable binding. An unbound variable is fatal.
func (m *Machine) resolve(op Operand) (int32, error) {
	if !op.IsVar {
		return op.Value, nil
	}
	v, ok := m.vars[op.Name]
	if !ok {
		return 0, newMachineError(ErrCategoryEvaluation, ErrUnknownVariable, "undefined variable: %s", op.Name)
	}
	return v, nil
}

// Run executes an instruction sequence against the machine state. The
// source path is carried along only for the else re-scan. Dispatch is
// purely sequential; branching recurses into Run with the same machine.
//
// Any returned error is fatal to the whole run - there is no recovery and
// no partial continuation.
func (m *Machine) Run(program []Instruction, path string) error {
	m.depth++
	defer func() { m.depth-- }()
	if m.depth > m.maxDepth {
		logger.Error(logger.AreaInterpreter, "Recursion depth limit (%d) exceeded while running %s", m.maxDepth, path)
		return newMachineError(ErrCategoryResource, ErrRecursionDepth, "recursion depth exceeded (limit %d)", m.maxDepth)
	}

	for pc := 0; pc < len(program); pc++ {
		instr := program[pc]
		switch instr.Op {

		case OpPush:
			m.push(instr.Value)

		case OpAdd, OpSub, OpMul, OpDiv:
			// Operand order from the source line is preserved; SUB and DIV
			// are not commutative.
			v1, err := m.resolve(instr.Op1)
			if err != nil {
				return err
			}
			v2, err := m.resolve(instr.Op2)
			if err != nil {
				return err
			}
			switch instr.Op {
			case OpAdd:
				m.push(v1 + v2)
			case OpSub:
				m.push(v1 - v2)
			case OpMul:
				m.push(v1 * v2)
			case OpDiv:
				if v2 == 0 {
					return newMachineError(ErrCategoryEvaluation, ErrDivisionByZero, "division by zero")
				}
				m.push(v1 / v2)
			}

		case OpPrint:
			// PRINT peeks, it does not pop. The empty stack is the one
			// tolerated condition: a placeholder line instead of an abort.
			if top, ok := m.StackTop(); ok {
				fmt.Fprintln(m.out, top)
			} else {
				fmt.Fprintln(m.out, "Stack is empty")
			}

		case OpSet:
			m.vars[instr.Name] = instr.Value

		case OpGet:
			v, ok := m.vars[instr.Name]
			if !ok {
				return newMachineError(ErrCategoryEvaluation, ErrUnknownVariable, "undefined variable: %s", instr.Name)
			}
			m.push(v)

		case OpInput:
			line, err := m.in.ReadString('\n')
			if err != nil && line == "" {
				return newMachineError(ErrCategoryIO, ErrInputRead, "failed to read input for %s", instr.Name)
			}
			v, err := strconv.ParseInt(strings.TrimSpace(line), 10, 32)
			if err != nil {
				return newMachineError(ErrCategoryIO, ErrInvalidInput, "invalid input for %s: %s", instr.Name, strings.TrimSpace(line))
			}
			m.vars[instr.Name] = int32(v)

		case OpIf:
			top, ok := m.StackTop()
			if !ok {
				return newMachineError(ErrCategoryExecution, ErrStackEmpty, "stack is empty")
			}
			if top != 0 {
				if err := m.Run(instr.Then, path); err != nil {
					return err
				}
			} else if len(instr.Else) > 0 {
				if err := m.runElseRescan(instr.Else, path); err != nil {
					return err
				}
			}

		case OpElse:
			// A standalone Else comes from an ELSE..ENDIF block with no
			// preceding open IF. It carries no condition and always runs.
			if err := m.Run(instr.Else, path); err != nil {
				return err
			}
		}
	}

	return nil
}

// runElseRescan performs the else-branch re-scan: the source file is
// reopened and re-translated from scratch, and the else body is executed
// followed by every instruction of the freshly translated whole file. The
// engine does not seek past the already-consumed prefix, so top-level
// instructions run again after the else body. Combined with recursive If
// execution this re-executes source instructions multiple times; it is part
// of the observable contract and must not be replaced with a plain
// fallthrough.
func (m *Machine) runElseRescan(elseBody []Instruction, path string) error {
	logger.Debug(logger.AreaInterpreter, "Else re-scan: re-translating %s at depth %d", path, m.depth)
	fresh, err := TranslateFile(path)
	if err != nil {
		return err
	}
	combined := make([]Instruction, 0, len(elseBody)+len(fresh))
	combined = append(combined, elseBody...)
	combined = append(combined, fresh...)
	return m.Run(combined, path)
}
