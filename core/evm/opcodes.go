package evm

import "fmt"

// TableVersion names the revision of the opcode table below. Any change to the
// table (new opcode, different arity) changes translation output and must bump it.
const TableVersion = "cancun-1"

// ByteCode is an EVM opcode byte.
type ByteCode byte

// 0x0 range - arithmetic ops.
const (
	STOP       ByteCode = 0x0
	ADD        ByteCode = 0x1
	MUL        ByteCode = 0x2
	SUB        ByteCode = 0x3
	DIV        ByteCode = 0x4
	SDIV       ByteCode = 0x5
	MOD        ByteCode = 0x6
	SMOD       ByteCode = 0x7
	ADDMOD     ByteCode = 0x8
	MULMOD     ByteCode = 0x9
	EXP        ByteCode = 0xa
	SIGNEXTEND ByteCode = 0xb
)

// 0x10 range - comparison ops.
const (
	LT     ByteCode = 0x10
	GT     ByteCode = 0x11
	SLT    ByteCode = 0x12
	SGT    ByteCode = 0x13
	EQ     ByteCode = 0x14
	ISZERO ByteCode = 0x15
	AND    ByteCode = 0x16
	OR     ByteCode = 0x17
	XOR    ByteCode = 0x18
	NOT    ByteCode = 0x19
	BYTE   ByteCode = 0x1a
	SHL    ByteCode = 0x1b
	SHR    ByteCode = 0x1c
	SAR    ByteCode = 0x1d
)

// 0x20 range - crypto.
const (
	KECCAK256 ByteCode = 0x20
)

// 0x30 range - closure state.
const (
	ADDRESS        ByteCode = 0x30
	BALANCE        ByteCode = 0x31
	ORIGIN         ByteCode = 0x32
	CALLER         ByteCode = 0x33
	CALLVALUE      ByteCode = 0x34
	CALLDATALOAD   ByteCode = 0x35
	CALLDATASIZE   ByteCode = 0x36
	CALLDATACOPY   ByteCode = 0x37
	CODESIZE       ByteCode = 0x38
	CODECOPY       ByteCode = 0x39
	GASPRICE       ByteCode = 0x3a
	EXTCODESIZE    ByteCode = 0x3b
	EXTCODECOPY    ByteCode = 0x3c
	RETURNDATASIZE ByteCode = 0x3d
	RETURNDATACOPY ByteCode = 0x3e
	EXTCODEHASH    ByteCode = 0x3f
)

// 0x40 range - block operations.
const (
	BLOCKHASH   ByteCode = 0x40
	COINBASE    ByteCode = 0x41
	TIMESTAMP   ByteCode = 0x42
	NUMBER      ByteCode = 0x43
	PREVRANDAO  ByteCode = 0x44
	GASLIMIT    ByteCode = 0x45
	CHAINID     ByteCode = 0x46
	SELFBALANCE ByteCode = 0x47
	BASEFEE     ByteCode = 0x48
	BLOBHASH    ByteCode = 0x49
	BLOBBASEFEE ByteCode = 0x4a
)

// 0x50 range - 'storage' and execution.
const (
	POP      ByteCode = 0x50
	MLOAD    ByteCode = 0x51
	MSTORE   ByteCode = 0x52
	MSTORE8  ByteCode = 0x53
	SLOAD    ByteCode = 0x54
	SSTORE   ByteCode = 0x55
	JUMP     ByteCode = 0x56
	JUMPI    ByteCode = 0x57
	PC       ByteCode = 0x58
	MSIZE    ByteCode = 0x59
	GAS      ByteCode = 0x5a
	JUMPDEST ByteCode = 0x5b
	TLOAD    ByteCode = 0x5c
	TSTORE   ByteCode = 0x5d
	MCOPY    ByteCode = 0x5e
	PUSH0    ByteCode = 0x5f
)

// 0x60 range - pushes.
const (
	PUSH1  ByteCode = 0x60
	PUSH32 ByteCode = 0x7f
)

// 0x80 range - dups.
const (
	DUP1  ByteCode = 0x80
	DUP16 ByteCode = 0x8f
)

// 0x90 range - swaps.
const (
	SWAP1  ByteCode = 0x90
	SWAP16 ByteCode = 0x9f
)

// 0xa0 range - logging ops.
const (
	LOG0 ByteCode = 0xa0
	LOG1 ByteCode = 0xa1
	LOG2 ByteCode = 0xa2
	LOG3 ByteCode = 0xa3
	LOG4 ByteCode = 0xa4
)

// 0xf0 range - closures.
const (
	CREATE       ByteCode = 0xf0
	CALL         ByteCode = 0xf1
	CALLCODE     ByteCode = 0xf2
	RETURN       ByteCode = 0xf3
	DELEGATECALL ByteCode = 0xf4
	CREATE2      ByteCode = 0xf5
	STATICCALL   ByteCode = 0xfa
	REVERT       ByteCode = 0xfd
	INVALID      ByteCode = 0xfe
	SELFDESTRUCT ByteCode = 0xff
)

// OpInfo describes how an opcode behaves on the operand stack and in the
// instruction stream. Pops and Pushes are the declared arity.
type OpInfo struct {
	Name       string
	Pops       int
	Pushes     int
	Immediate  int  // operand bytes following the opcode
	Terminates bool // ends a basic block
	Valid      bool
}

var opTable [256]OpInfo

func def(op ByteCode, name string, pops, pushes int) {
	opTable[op] = OpInfo{Name: name, Pops: pops, Pushes: pushes, Valid: true}
}

func init() {
	def(STOP, "STOP", 0, 0)
	def(ADD, "ADD", 2, 1)
	def(MUL, "MUL", 2, 1)
	def(SUB, "SUB", 2, 1)
	def(DIV, "DIV", 2, 1)
	def(SDIV, "SDIV", 2, 1)
	def(MOD, "MOD", 2, 1)
	def(SMOD, "SMOD", 2, 1)
	def(ADDMOD, "ADDMOD", 3, 1)
	def(MULMOD, "MULMOD", 3, 1)
	def(EXP, "EXP", 2, 1)
	def(SIGNEXTEND, "SIGNEXTEND", 2, 1)

	def(LT, "LT", 2, 1)
	def(GT, "GT", 2, 1)
	def(SLT, "SLT", 2, 1)
	def(SGT, "SGT", 2, 1)
	def(EQ, "EQ", 2, 1)
	def(ISZERO, "ISZERO", 1, 1)
	def(AND, "AND", 2, 1)
	def(OR, "OR", 2, 1)
	def(XOR, "XOR", 2, 1)
	def(NOT, "NOT", 1, 1)
	def(BYTE, "BYTE", 2, 1)
	def(SHL, "SHL", 2, 1)
	def(SHR, "SHR", 2, 1)
	def(SAR, "SAR", 2, 1)

	def(KECCAK256, "KECCAK256", 2, 1)

	def(ADDRESS, "ADDRESS", 0, 1)
	def(BALANCE, "BALANCE", 1, 1)
	def(ORIGIN, "ORIGIN", 0, 1)
	def(CALLER, "CALLER", 0, 1)
	def(CALLVALUE, "CALLVALUE", 0, 1)
	def(CALLDATALOAD, "CALLDATALOAD", 1, 1)
	def(CALLDATASIZE, "CALLDATASIZE", 0, 1)
	def(CALLDATACOPY, "CALLDATACOPY", 3, 0)
	def(CODESIZE, "CODESIZE", 0, 1)
	def(CODECOPY, "CODECOPY", 3, 0)
	def(GASPRICE, "GASPRICE", 0, 1)
	def(EXTCODESIZE, "EXTCODESIZE", 1, 1)
	def(EXTCODECOPY, "EXTCODECOPY", 4, 0)
	def(RETURNDATASIZE, "RETURNDATASIZE", 0, 1)
	def(RETURNDATACOPY, "RETURNDATACOPY", 3, 0)
	def(EXTCODEHASH, "EXTCODEHASH", 1, 1)

	def(BLOCKHASH, "BLOCKHASH", 1, 1)
	def(COINBASE, "COINBASE", 0, 1)
	def(TIMESTAMP, "TIMESTAMP", 0, 1)
	def(NUMBER, "NUMBER", 0, 1)
	def(PREVRANDAO, "PREVRANDAO", 0, 1)
	def(GASLIMIT, "GASLIMIT", 0, 1)
	def(CHAINID, "CHAINID", 0, 1)
	def(SELFBALANCE, "SELFBALANCE", 0, 1)
	def(BASEFEE, "BASEFEE", 0, 1)
	def(BLOBHASH, "BLOBHASH", 1, 1)
	def(BLOBBASEFEE, "BLOBBASEFEE", 0, 1)

	def(POP, "POP", 1, 0)
	def(MLOAD, "MLOAD", 1, 1)
	def(MSTORE, "MSTORE", 2, 0)
	def(MSTORE8, "MSTORE8", 2, 0)
	def(SLOAD, "SLOAD", 1, 1)
	def(SSTORE, "SSTORE", 2, 0)
	def(JUMP, "JUMP", 1, 0)
	def(JUMPI, "JUMPI", 2, 0)
	def(PC, "PC", 0, 1)
	def(MSIZE, "MSIZE", 0, 1)
	def(GAS, "GAS", 0, 1)
	def(JUMPDEST, "JUMPDEST", 0, 0)
	def(TLOAD, "TLOAD", 1, 1)
	def(TSTORE, "TSTORE", 2, 0)
	def(MCOPY, "MCOPY", 3, 0)
	def(PUSH0, "PUSH0", 0, 1)

	for i := 0; i < 32; i++ {
		op := PUSH1 + ByteCode(i)
		def(op, fmt.Sprintf("PUSH%d", i+1), 0, 1)
		opTable[op].Immediate = i + 1
	}
	for i := 0; i < 16; i++ {
		def(DUP1+ByteCode(i), fmt.Sprintf("DUP%d", i+1), i+1, i+2)
		def(SWAP1+ByteCode(i), fmt.Sprintf("SWAP%d", i+1), i+2, i+2)
	}
	for i := 0; i <= 4; i++ {
		def(LOG0+ByteCode(i), fmt.Sprintf("LOG%d", i), i+2, 0)
	}

	def(CREATE, "CREATE", 3, 1)
	def(CALL, "CALL", 7, 1)
	def(CALLCODE, "CALLCODE", 7, 1)
	def(RETURN, "RETURN", 2, 0)
	def(DELEGATECALL, "DELEGATECALL", 6, 1)
	def(CREATE2, "CREATE2", 4, 1)
	def(STATICCALL, "STATICCALL", 6, 1)
	def(REVERT, "REVERT", 2, 0)
	def(INVALID, "INVALID", 0, 0)
	def(SELFDESTRUCT, "SELFDESTRUCT", 1, 0)

	for _, op := range []ByteCode{STOP, RETURN, REVERT, INVALID, SELFDESTRUCT, JUMP, JUMPI} {
		opTable[op].Terminates = true
	}
	// Bytes outside the table are still instructions; they halt like INVALID.
	for i := range opTable {
		if !opTable[i].Valid {
			opTable[i] = OpInfo{Name: fmt.Sprintf("INVALID(0x%02x)", i), Terminates: true}
		}
	}
}

// Info returns the table entry of the opcode.
func (op ByteCode) Info() OpInfo {
	return opTable[op]
}

func (op ByteCode) String() string {
	return opTable[op].Name
}

// Valid reports whether the byte is a known opcode. INVALID (0xfe) is known.
func (op ByteCode) Valid() bool {
	return opTable[op].Valid
}

func (op ByteCode) IsPush() bool {
	return op >= PUSH1 && op <= PUSH32
}

func (op ByteCode) IsDup() bool {
	return op >= DUP1 && op <= DUP16
}

func (op ByteCode) IsSwap() bool {
	return op >= SWAP1 && op <= SWAP16
}

func (op ByteCode) IsLog() bool {
	return op >= LOG0 && op <= LOG4
}

// Terminates reports whether the opcode ends its basic block.
func (op ByteCode) Terminates() bool {
	return opTable[op].Terminates
}

// Halts reports whether execution stops at the opcode (as opposed to jumping).
func (op ByteCode) Halts() bool {
	return opTable[op].Terminates && op != JUMP && op != JUMPI
}
