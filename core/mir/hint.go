package mir

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Hint is the interface description of one public function. It only shapes
// the IR: the selector resolves the dispatcher and Outputs sets how many words
// RETURN yields. It never changes control-flow recovery.
type Hint struct {
	Name     string
	Selector [4]byte
	Inputs   int
	Outputs  int
}

// NewHint derives the selector from a signature such as "transfer(address,uint256)".
func NewHint(signature string, outputs int) *Hint {
	h := &Hint{Name: signature, Outputs: outputs}
	copy(h.Selector[:], crypto.Keccak256([]byte(signature))[:4])
	if open := strings.IndexByte(signature, '('); open >= 0 {
		h.Name = signature[:open]
		if args := strings.Trim(signature[open:], "()"); args != "" {
			h.Inputs = strings.Count(args, ",") + 1
		}
	}
	return h
}

// word is the first call input word as seen by a call with no arguments
// beyond the selector.
func (h *Hint) word() *uint256.Int {
	v := new(uint256.Int).SetBytes(h.Selector[:])
	return v.Lsh(v, 224)
}

func (h *Hint) String() string {
	return fmt.Sprintf("%s[%x]", h.Name, h.Selector)
}
