package stackvm

// Op identifies an instruction of the language. The set is fixed; there are
// no jumps, branching is structural (If/Else carry their bodies).
type Op int

const (
	OpPush Op = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpPrint
	OpSet
	OpGet
	OpInput
	OpIf
	OpElse
)

var opNames = map[Op]string{
	OpPush:  "PUSH",
	OpAdd:   "ADD",
	OpSub:   "SUB",
	OpMul:   "MUL",
	OpDiv:   "DIV",
	OpPrint: "PRINT",
	OpSet:   "SET",
	OpGet:   "GET",
	OpInput: "Input",
	OpIf:    "IF",
	OpElse:  "ELSE",
}

// String returns the source-text spelling of the opcode.
func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// Operand is either a literal int32 value or a variable reference, decided
// once at translation time so repeated execution never re-parses tokens.
type Operand struct {
	Value int32
	Name  string
	IsVar bool
}

// Instruction is one executable step. Which fields are meaningful depends on
// Op: Value for PUSH/SET, Name for SET/GET/Input, Op1/Op2 for arithmetic,
// Then/Else for the block instructions. Instructions are immutable once
// translated and exclusively own their nested bodies.
type Instruction struct {
	Op    Op
	Value int32
	Name  string
	Op1   Operand
	Op2   Operand
	Then  []Instruction
	Else  []Instruction
}
