// Package translator drives the pipeline from raw bytecode to pruned IR for
// every requested entry point of a contract.
package translator

import (
	"strconv"
	"strings"
	"time"

	"github.com/e2m-lab/e2m/core/cfg"
	"github.com/e2m-lab/e2m/core/evm"
	"github.com/e2m-lab/e2m/core/flow"
	"github.com/e2m-lab/e2m/core/mir"
	"github.com/e2m-lab/e2m/core/mir/opt"
	"github.com/e2m-lab/e2m/internal/debug"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// Function is the translation of one entry point. Exactly one of IR and Err
// is set.
type Function struct {
	Hint *mir.Hint // nil for the whole program
	IR   *mir.Function
	Err  error
}

// Name returns the function name, "main" for the whole program.
func (f *Function) Name() string {
	if f.Hint == nil {
		return "main"
	}
	return f.Hint.Name
}

// Contract is the translation of one bytecode buffer.
type Contract struct {
	Hash      common.Hash
	Graph     *cfg.Graph
	Flow      *flow.Result
	Functions []*Function
}

// Failed returns the functions whose IR could not be built.
func (c *Contract) Failed() []*Function {
	var out []*Function
	for _, f := range c.Functions {
		if f.Err != nil {
			out = append(out, f)
		}
	}
	return out
}

// Function looks up a translated function by name.
func (c *Contract) Function(name string) (*Function, bool) {
	for _, f := range c.Functions {
		if f.Name() == name {
			return f, true
		}
	}
	return nil, false
}

// Translator turns bytecode into IR. It is safe for concurrent use; each
// translation runs on the calling goroutine.
type Translator struct {
	config Config
	cache  *analysisCache
}

// New creates a translator with the given settings.
func New(config Config) *Translator {
	if config.Debug {
		debug.Enable(true)
	}
	return &Translator{
		config: config,
		cache:  newAnalysisCache(config.CacheSize),
	}
}

// Config returns the translator settings.
func (t *Translator) Config() Config {
	return t.config
}

// TranslateHex is Translate over bytecode given as hex text.
func (t *Translator) TranslateHex(s string, hints ...*mir.Hint) (*Contract, error) {
	code, err := evm.ParseHex(s)
	if err != nil {
		return nil, err
	}
	return t.Translate(code, hints...)
}

// Translate recovers the blocks and the structured flow of code, then builds
// the IR of every hinted function, or of the whole program when no hints are
// given. An error is returned only when the flow cannot be recovered; a
// function that fails records its error and leaves the others untouched.
func (t *Translator) Translate(code []byte, hints ...*mir.Hint) (*Contract, error) {
	hash := crypto.Keccak256Hash(code)
	a, err := t.analyze(hash, code)
	if err != nil {
		contractFailures.Inc(1)
		return nil, errors.Wrapf(err, "contract %x", hash[:8])
	}
	contractCounter.Inc(1)

	c := &Contract{Hash: hash, Graph: a.graph, Flow: a.flow}
	if len(hints) == 0 {
		hints = []*mir.Hint{nil}
	}
	for _, h := range hints {
		f := t.function(a, h)
		if f.Err != nil {
			functionFailures.Inc(1)
			debug.Warn("Function translation failed", "contract", hash, "function", f.Name(), "err", f.Err)
		} else {
			functionCounter.Inc(1)
		}
		c.Functions = append(c.Functions, f)
	}
	return c, nil
}

func (t *Translator) analyze(hash common.Hash, code []byte) (*analysis, error) {
	if a := t.cache.get(hash); a != nil {
		return a, nil
	}
	start := time.Now()
	g, err := cfg.Segment(code)
	if err != nil {
		return nil, err
	}
	res, err := flow.Build(g, t.config.flowOptions())
	if err != nil {
		return nil, err
	}
	flowTimer.UpdateSince(start)
	debug.Info("Recovered control flow", "contract", hash, "blocks", len(g.Ids()), "steps", res.Steps, "loops", len(res.Links))

	a := &analysis{graph: g, flow: res}
	t.cache.add(hash, a)
	return a, nil
}

func (t *Translator) function(a *analysis, hint *mir.Hint) *Function {
	start := time.Now()
	defer irTimer.UpdateSince(start)

	f := &Function{Hint: hint}
	ir, err := mir.Build(a.graph, a.flow.Root, hint)
	if err != nil {
		f.Err = errors.Wrapf(err, "function %s", f.Name())
		return f
	}
	if t.config.Optimize {
		ir = opt.Eliminate(ir)
	}
	f.IR = ir
	return f
}

// ParseHint reads a hint written as a signature with an optional output
// count, as in "balanceOf(address):1". The output count defaults to zero.
func ParseHint(s string) (*mir.Hint, error) {
	sig, outputs := strings.TrimSpace(s), 0
	if i := strings.LastIndexByte(sig, ':'); i >= 0 {
		n, err := strconv.Atoi(sig[i+1:])
		if err != nil || n < 0 {
			return nil, errors.Errorf("bad output count in hint %q", s)
		}
		sig, outputs = sig[:i], n
	}
	if !strings.HasSuffix(sig, ")") || strings.IndexByte(sig, '(') <= 0 {
		return nil, errors.Errorf("hint %q is not a function signature", s)
	}
	return mir.NewHint(sig, outputs), nil
}
