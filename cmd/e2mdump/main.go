// e2mdump translates contract bytecode and prints the recovered blocks,
// control flow and IR.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/e2m-lab/e2m/core/evm"
	"github.com/e2m-lab/e2m/core/mir"
	"github.com/e2m-lab/e2m/core/translator"
	"github.com/ethereum/go-ethereum/log"
	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
)

var (
	hexFlag = &cli.StringFlag{
		Name:  "hex",
		Usage: "contract bytecode as hex (with or without 0x prefix)",
	}
	fileFlag = &cli.StringFlag{
		Name:      "file",
		Usage:     "path to file containing contract bytecode hex",
		TakesFile: true,
	}
	functionFlag = &cli.StringSliceFlag{
		Name:  "function",
		Usage: `function to translate, as a signature with optional output count ("balanceOf(address):1")`,
	}
	configFlag = &cli.StringFlag{
		Name:      "config",
		Usage:     "TOML configuration file",
		TakesFile: true,
	}
	noOptFlag = &cli.BoolFlag{
		Name:  "noopt",
		Usage: "print the IR before dead variable elimination",
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=trace",
		Value: 2,
	}
	noColorFlag = &cli.BoolFlag{
		Name:  "nocolor",
		Usage: "disable colored output",
	}
	outFlag = &cli.StringFlag{
		Name:      "out",
		Usage:     "output file path; stdout when empty",
		TakesFile: true,
	}
	titleFlag = &cli.StringFlag{
		Name:  "title",
		Usage: "graph title",
	}

	inputFlags = []cli.Flag{hexFlag, fileFlag, configFlag}

	// stdout receives the dumps. It translates color escapes on Windows.
	stdout io.Writer = os.Stdout
)

var app = &cli.App{
	Name:  "e2mdump",
	Usage: "decompile EVM bytecode into structured flow and IR",
	Flags: []cli.Flag{verbosityFlag, noColorFlag},
	Before: func(ctx *cli.Context) error {
		setupOutput(ctx)
		return nil
	},
	Commands: []*cli.Command{
		{
			Name:   "blocks",
			Usage:  "List the basic blocks",
			Flags:  inputFlags,
			Action: dumpBlocks,
		},
		{
			Name:   "flow",
			Usage:  "Print the recovered control-flow tree",
			Flags:  inputFlags,
			Action: dumpFlow,
		},
		{
			Name:   "ir",
			Usage:  "Print the IR of the whole program or of each --function",
			Flags:  append([]cli.Flag{functionFlag, noOptFlag}, inputFlags...),
			Action: dumpIR,
			Description: `
Without --function the whole program is translated as a single function.
Each --function resolves the selector dispatcher for that entry point; a
function that cannot be translated is reported without stopping the others.`,
		},
		{
			Name:      "summary",
			Usage:     "Translate several bytecode files and tabulate the results",
			ArgsUsage: "<file> [<file>...]",
			Flags:     []cli.Flag{functionFlag, configFlag},
			Action:    dumpSummary,
		},
		{
			Name:   "dot",
			Usage:  "Render the control-flow tree as a Graphviz DOT graph",
			Flags:  append([]cli.Flag{outFlag, titleFlag}, inputFlags...),
			Action: dumpDot,
		},
	},
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "e2mdump: %v\n", err)
		os.Exit(1)
	}
}

func setupOutput(ctx *cli.Context) {
	useColor := !ctx.Bool(noColorFlag.Name) &&
		(isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()))
	color.NoColor = !useColor
	if useColor {
		stdout = colorable.NewColorableStdout()
	}

	lvl := log.LevelWarn
	switch v := ctx.Int(verbosityFlag.Name); {
	case v <= 0:
		lvl = log.LevelCrit + 1
	case v == 1:
		lvl = log.LevelError
	case v == 3:
		lvl = log.LevelInfo
	case v == 4:
		lvl = log.LevelDebug
	case v >= 5:
		lvl = log.LevelTrace
	}
	output := io.Writer(os.Stderr)
	errColor := isatty.IsTerminal(os.Stderr.Fd()) && !ctx.Bool(noColorFlag.Name)
	if errColor {
		output = colorable.NewColorableStderr()
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(output, lvl, errColor)))
}

func newTranslator(ctx *cli.Context) (*translator.Translator, error) {
	config := translator.DefaultConfig
	if file := ctx.String(configFlag.Name); file != "" {
		if err := translator.LoadConfig(file, &config); err != nil {
			return nil, err
		}
	}
	if ctx.Bool(noOptFlag.Name) {
		config.Optimize = false
	}
	return translator.New(config), nil
}

// translate loads the code named by the input flags and translates it.
func translate(ctx *cli.Context, hints ...*mir.Hint) (*translator.Contract, error) {
	code, err := loadBytecode(ctx)
	if err != nil {
		return nil, err
	}
	tr, err := newTranslator(ctx)
	if err != nil {
		return nil, err
	}
	return tr.Translate(code, hints...)
}

func parseHints(ctx *cli.Context) ([]*mir.Hint, error) {
	var hints []*mir.Hint
	for _, s := range ctx.StringSlice(functionFlag.Name) {
		h, err := translator.ParseHint(s)
		if err != nil {
			return nil, err
		}
		hints = append(hints, h)
	}
	return hints, nil
}

func readHexFile(file string) ([]byte, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return evm.ParseHex(strings.Join(strings.Fields(string(data)), ""))
}

func loadBytecode(ctx *cli.Context) ([]byte, error) {
	hex, file := ctx.String(hexFlag.Name), ctx.String(fileFlag.Name)
	switch {
	case hex != "" && file != "":
		return nil, fmt.Errorf("--%s and --%s are mutually exclusive", hexFlag.Name, fileFlag.Name)
	case hex != "":
		return evm.ParseHex(hex)
	case file != "":
		return readHexFile(file)
	case ctx.Args().Present():
		return evm.ParseHex(ctx.Args().First())
	}
	return nil, fmt.Errorf("one of --%s, --%s or a hex argument is required", hexFlag.Name, fileFlag.Name)
}

func dumpBlocks(ctx *cli.Context) error {
	c, err := translate(ctx)
	if err != nil {
		return err
	}
	renderBlocks(stdout, c)
	return nil
}

func dumpFlow(ctx *cli.Context) error {
	c, err := translate(ctx)
	if err != nil {
		return err
	}
	renderFlow(stdout, c)
	return nil
}

func dumpIR(ctx *cli.Context) error {
	hints, err := parseHints(ctx)
	if err != nil {
		return err
	}
	c, err := translate(ctx, hints...)
	if err != nil {
		return err
	}
	renderIR(stdout, c)
	if failed := c.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d functions failed", len(failed), len(c.Functions))
	}
	return nil
}

func dumpSummary(ctx *cli.Context) error {
	files := ctx.Args().Slice()
	if len(files) == 0 {
		return fmt.Errorf("no bytecode files given")
	}
	hints, err := parseHints(ctx)
	if err != nil {
		return err
	}
	tr, err := newTranslator(ctx)
	if err != nil {
		return err
	}
	codes := make([][]byte, len(files))
	errs := make([]error, len(files))
	for i, file := range files {
		codes[i], errs[i] = readHexFile(file)
	}
	contracts, terrs := tr.TranslateBatch(codes, hints...)
	for i := range errs {
		if errs[i] == nil {
			errs[i] = terrs[i]
		}
	}
	renderSummary(stdout, files, contracts, errs)
	return nil
}

func dumpDot(ctx *cli.Context) error {
	c, err := translate(ctx)
	if err != nil {
		return err
	}
	graph := flowGraph(c, ctx.String(titleFlag.Name)).String()
	if out := ctx.String(outFlag.Name); out != "" {
		return os.WriteFile(out, []byte(graph), 0o644)
	}
	_, err = io.WriteString(stdout, graph)
	return err
}
