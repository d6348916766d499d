package stackvm

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/luishsr/rustvm/pkg/logger"
)

// parseInt32 parses a token as a signed 32-bit integer.
func parseInt32(token string) (int32, error) {
	v, err := strconv.ParseInt(token, 10, 32)
	if err != nil {
		return 0, newMachineError(ErrCategorySyntax, ErrInvalidNumber, "invalid number: %s", token)
	}
	return int32(v), nil
}

// stripVarWrapper removes the debug-representation wrapping Var("...") from
// an operand token if present. Operands already written in that tagged
// textual form are accepted for the arithmetic opcodes.
func stripVarWrapper(token string) string {
	return strings.TrimSuffix(strings.TrimPrefix(token, `Var("`), `")`)
}

// parseOperand classifies a token: literal if it parses as an int32,
// variable reference otherwise.
func parseOperand(token string) Operand {
	if v, err := strconv.ParseInt(token, 10, 32); err == nil {
		return Operand{Value: int32(v)}
	}
	return Operand{Name: token, IsVar: true}
}

func isArithmeticOpcode(token string) bool {
	return token == "ADD" || token == "SUB" || token == "MUL" || token == "DIV"
}

func arithmeticOp(token string) Op {
	switch token {
	case "ADD":
		return OpAdd
	case "SUB":
		return OpSub
	case "MUL":
		return OpMul
	default:
		return OpDiv
	}
}

// TranslateLine converts a single program line into zero or more
// instructions. Lines that match no known opcode shape (unknown opcode,
// wrong arity) are dropped silently and yield an empty list; that is policy,
// not an error. A PUSH or SET line whose literal does not parse as an int32
// is an error.
func TranslateLine(line string) ([]Instruction, error) {
	parts := strings.Fields(line)

	switch {
	case len(parts) == 2 && parts[0] == "PUSH":
		v, err := parseInt32(parts[1])
		if err != nil {
			return nil, err
		}
		return []Instruction{{Op: OpPush, Value: v}}, nil

	case len(parts) == 3 && isArithmeticOpcode(parts[0]):
		op1 := parseOperand(stripVarWrapper(parts[1]))
		op2 := parseOperand(stripVarWrapper(parts[2]))
		return []Instruction{{Op: arithmeticOp(parts[0]), Op1: op1, Op2: op2}}, nil

	case len(parts) == 1 && parts[0] == "PRINT":
		return []Instruction{{Op: OpPrint}}, nil

	case len(parts) == 3 && parts[0] == "SET":
		v, err := parseInt32(parts[2])
		if err != nil {
			return nil, err
		}
		return []Instruction{{Op: OpSet, Name: parts[1], Value: v}}, nil

	case len(parts) == 2 && parts[0] == "GET":
		return []Instruction{{Op: OpGet, Name: parts[1]}}, nil

	// Opcode name is deliberately mixed-case, matching the program file
	// format exactly.
	case len(parts) == 2 && parts[0] == "Input":
		return []Instruction{{Op: OpInput, Name: parts[1]}}, nil
	}

	return nil, nil
}

// Translate converts program lines into an instruction sequence, folding
// IF/ELSE/ENDIF block syntax into structural If/Else instructions.
//
// Block handling is a single pass with one mode flag (none / in-if /
// in-else); nesting is not supported and produces flattened grouping rather
// than an error. An ELSE..ENDIF block with no preceding open IF produces a
// standalone Else instruction that runs unconditionally.
func Translate(lines []string) ([]Instruction, error) {
	program := make([]Instruction, 0, len(lines))

	var ifBlock, elseBlock []Instruction
	inIfBlock := false
	inElseBlock := false

	for _, line := range lines {
		parts := strings.Fields(line)
		first := ""
		if len(parts) > 0 {
			first = parts[0]
		}

		// IF and ELSE lines only flip the block mode, they emit nothing.
		if first == "IF" {
			inIfBlock = true
			inElseBlock = false
			continue
		}
		if first == "ELSE" {
			inElseBlock = true
			inIfBlock = false
			continue
		}

		if inIfBlock || inElseBlock {
			instrs, err := TranslateLine(line)
			if err != nil {
				return nil, err
			}
			if inIfBlock {
				ifBlock = append(ifBlock, instrs...)
			} else {
				elseBlock = append(elseBlock, instrs...)
			}

			// The ENDIF line itself translates to nothing, then closes the
			// open block. Which instruction gets emitted depends on the mode
			// the block was closed from.
			if first == "ENDIF" {
				if inIfBlock {
					program = append(program, Instruction{Op: OpIf, Then: ifBlock, Else: elseBlock})
				} else {
					program = append(program, Instruction{Op: OpElse, Else: elseBlock})
				}
				ifBlock = nil
				elseBlock = nil
				inIfBlock = false
				inElseBlock = false
			}
			continue
		}

		instrs, err := TranslateLine(line)
		if err != nil {
			return nil, err
		}
		program = append(program, instrs...)
	}

	return program, nil
}

// TranslateFile loads and translates the program file at path.
func TranslateFile(path string) ([]Instruction, error) {
	file, err := os.Open(path)
	if err != nil {
		logger.Error(logger.AreaInterpreter, "Failed to open program file %s: %v", path, err)
		return nil, newMachineError(ErrCategoryIO, ErrFileOpen, "failed to open file: %s", path)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, newMachineError(ErrCategoryIO, err, "failed to read file: %s", path)
	}

	program, err := Translate(lines)
	if err != nil {
		return nil, err
	}
	logger.Debug(logger.AreaInterpreter, "Translated %s: %d lines, %d top-level instructions", path, len(lines), len(program))
	return program, nil
}
