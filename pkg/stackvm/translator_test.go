package stackvm

import (
	"errors"
	"testing"
)

func TestTranslateLineShapes(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Instruction
	}{
		{
			name: "push literal",
			line: "PUSH 42",
			want: Instruction{Op: OpPush, Value: 42},
		},
		{
			name: "push negative literal",
			line: "PUSH -7",
			want: Instruction{Op: OpPush, Value: -7},
		},
		{
			name: "add literals",
			line: "ADD 2 3",
			want: Instruction{Op: OpAdd, Op1: Operand{Value: 2}, Op2: Operand{Value: 3}},
		},
		{
			name: "sub keeps operand order",
			line: "SUB 10 4",
			want: Instruction{Op: OpSub, Op1: Operand{Value: 10}, Op2: Operand{Value: 4}},
		},
		{
			name: "mul with variable operands",
			line: "MUL a b",
			want: Instruction{Op: OpMul, Op1: Operand{Name: "a", IsVar: true}, Op2: Operand{Name: "b", IsVar: true}},
		},
		{
			name: "div mixed operands",
			line: "DIV total 2",
			want: Instruction{Op: OpDiv, Op1: Operand{Name: "total", IsVar: true}, Op2: Operand{Value: 2}},
		},
		{
			name: "print",
			line: "PRINT",
			want: Instruction{Op: OpPrint},
		},
		{
			name: "set",
			line: "SET counter 5",
			want: Instruction{Op: OpSet, Name: "counter", Value: 5},
		},
		{
			name: "get",
			line: "GET counter",
			want: Instruction{Op: OpGet, Name: "counter"},
		},
		{
			name: "input is mixed case",
			line: "Input x",
			want: Instruction{Op: OpInput, Name: "x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instrs, err := TranslateLine(tt.line)
			if err != nil {
				t.Fatalf("TranslateLine(%q) returned error: %v", tt.line, err)
			}
			if len(instrs) != 1 {
				t.Fatalf("TranslateLine(%q) returned %d instructions, want 1", tt.line, len(instrs))
			}
			got := instrs[0]
			if got.Op != tt.want.Op || got.Value != tt.want.Value || got.Name != tt.want.Name ||
				got.Op1 != tt.want.Op1 || got.Op2 != tt.want.Op2 {
				t.Errorf("TranslateLine(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestTranslateLineDropsMalformedLines(t *testing.T) {
	// Lines that match no known opcode shape are dropped silently. That is
	// deliberate policy, not an error.
	lines := []string{
		"",
		"FOO 1 2",
		"PUSH",        // missing argument
		"PUSH 1 2",    // too many arguments
		"ADD 1",       // wrong arity
		"PRINT extra", // PRINT takes nothing
		"INPUT x",     // wrong case - the opcode is spelled Input
		"input x",
		"push 1", // opcodes are case-sensitive
		"SET x",  // missing value
	}

	for _, line := range lines {
		instrs, err := TranslateLine(line)
		if err != nil {
			t.Errorf("TranslateLine(%q) returned error: %v", line, err)
		}
		if len(instrs) != 0 {
			t.Errorf("TranslateLine(%q) = %+v, want no instructions", line, instrs)
		}
	}
}

func TestTranslateLineInvalidLiterals(t *testing.T) {
	// A PUSH or SET line whose literal does not parse as an int32 is an
	// error, unlike a line with an unknown shape.
	for _, line := range []string{"PUSH abc", "SET x ten", "PUSH 99999999999"} {
		_, err := TranslateLine(line)
		if !errors.Is(err, ErrInvalidNumber) {
			t.Errorf("TranslateLine(%q) error = %v, want ErrInvalidNumber", line, err)
		}
	}
}

func TestTranslateLineVarWrapper(t *testing.T) {
	// Arithmetic operands may arrive in the tagged debug form Var("name").
	instrs, err := TranslateLine(`ADD Var("a") Var("b")`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(instrs) != 1 {
		t.Fatalf("got %d instructions, want 1", len(instrs))
	}
	instr := instrs[0]
	if !instr.Op1.IsVar || instr.Op1.Name != "a" {
		t.Errorf("op1 = %+v, want variable a", instr.Op1)
	}
	if !instr.Op2.IsVar || instr.Op2.Name != "b" {
		t.Errorf("op2 = %+v, want variable b", instr.Op2)
	}
}

func TestTranslateTopLevelProgram(t *testing.T) {
	lines := []string{
		"PUSH 1",
		"FOO nonsense", // dropped
		"SET x 2",
		"GET x",
	}

	program, err := Translate(lines)
	if err != nil {
		t.Fatalf("Translate returned error: %v", err)
	}
	wantOps := []Op{OpPush, OpSet, OpGet}
	if len(program) != len(wantOps) {
		t.Fatalf("got %d instructions, want %d", len(program), len(wantOps))
	}
	for i, op := range wantOps {
		if program[i].Op != op {
			t.Errorf("instruction %d = %v, want %v", i, program[i].Op, op)
		}
	}
}

func TestTranslateIfBlock(t *testing.T) {
	lines := []string{
		"PUSH 1",
		"IF",
		"PUSH 42",
		"PRINT",
		"ENDIF",
	}

	program, err := Translate(lines)
	if err != nil {
		t.Fatalf("Translate returned error: %v", err)
	}
	if len(program) != 2 {
		t.Fatalf("got %d instructions, want 2", len(program))
	}
	ifInstr := program[1]
	if ifInstr.Op != OpIf {
		t.Fatalf("instruction 1 = %v, want IF", ifInstr.Op)
	}
	if len(ifInstr.Then) != 2 || ifInstr.Then[0].Op != OpPush || ifInstr.Then[1].Op != OpPrint {
		t.Errorf("then body = %+v, want PUSH then PRINT", ifInstr.Then)
	}
	if len(ifInstr.Else) != 0 {
		t.Errorf("else body = %+v, want empty", ifInstr.Else)
	}
}

func TestTranslateStandaloneElseBlock(t *testing.T) {
	// An ELSE..ENDIF closed from in-else mode produces a standalone Else
	// instruction, even when an IF..ENDIF preceded it: the earlier ENDIF
	// already closed the IF block with an empty else body.
	lines := []string{
		"PUSH 0",
		"IF",
		"PUSH 1",
		"ENDIF",
		"ELSE",
		"PUSH 99",
		"PRINT",
		"ENDIF",
	}

	program, err := Translate(lines)
	if err != nil {
		t.Fatalf("Translate returned error: %v", err)
	}
	if len(program) != 3 {
		t.Fatalf("got %d instructions, want 3", len(program))
	}
	if program[1].Op != OpIf {
		t.Errorf("instruction 1 = %v, want IF", program[1].Op)
	}
	if len(program[1].Else) != 0 {
		t.Errorf("IF else body = %+v, want empty", program[1].Else)
	}
	elseInstr := program[2]
	if elseInstr.Op != OpElse {
		t.Fatalf("instruction 2 = %v, want ELSE", elseInstr.Op)
	}
	if len(elseInstr.Else) != 2 || elseInstr.Else[0].Op != OpPush || elseInstr.Else[1].Op != OpPrint {
		t.Errorf("else body = %+v, want PUSH then PRINT", elseInstr.Else)
	}
}

func TestTranslateIfWithElseAccumulator(t *testing.T) {
	// A second IF line after ELSE flips the mode back to in-if, so the
	// closing ENDIF emits a single If instruction carrying both
	// accumulators. Blocks do not nest; this flattened grouping is the
	// defined behavior.
	lines := []string{
		"IF",
		"PUSH 5",
		"ELSE",
		"PRINT",
		"IF",
		"PUSH 7",
		"ENDIF",
	}

	program, err := Translate(lines)
	if err != nil {
		t.Fatalf("Translate returned error: %v", err)
	}
	if len(program) != 1 {
		t.Fatalf("got %d instructions, want 1", len(program))
	}
	ifInstr := program[0]
	if ifInstr.Op != OpIf {
		t.Fatalf("instruction = %v, want IF", ifInstr.Op)
	}
	if len(ifInstr.Then) != 2 || ifInstr.Then[0].Value != 5 || ifInstr.Then[1].Value != 7 {
		t.Errorf("then body = %+v, want PUSH 5 and PUSH 7", ifInstr.Then)
	}
	if len(ifInstr.Else) != 1 || ifInstr.Else[0].Op != OpPrint {
		t.Errorf("else body = %+v, want PRINT", ifInstr.Else)
	}
}

func TestTranslateBadLiteralInsideBlock(t *testing.T) {
	lines := []string{
		"IF",
		"PUSH oops",
		"ENDIF",
	}
	if _, err := Translate(lines); !errors.Is(err, ErrInvalidNumber) {
		t.Errorf("Translate error = %v, want ErrInvalidNumber", err)
	}
}
