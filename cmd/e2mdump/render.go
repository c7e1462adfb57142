package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/e2m-lab/e2m/core/cfg"
	"github.com/e2m-lab/e2m/core/flow"
	"github.com/e2m-lab/e2m/core/mir"
	"github.com/e2m-lab/e2m/core/translator"
	"github.com/emicklei/dot"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	labelColor  = color.New(color.FgYellow)
	errorColor  = color.New(color.FgRed)
)

func renderBlocks(w io.Writer, c *translator.Contract) {
	heads := make(map[cfg.BlockId]bool)
	for _, l := range c.Flow.Links {
		heads[l.Head] = true
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Block", "End", "Instructions", "Last", "JumpDest", "Loop Head"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, id := range c.Graph.Ids() {
		b, _ := c.Graph.Block(id)
		table.Append([]string{
			id.String(),
			b.End().String(),
			fmt.Sprint(len(b.Instructions)),
			b.Last().Op.String(),
			yesNo(b.IsJumpDest()),
			yesNo(heads[id]),
		})
	}
	table.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}

func renderFlow(w io.Writer, c *translator.Contract) {
	headerColor.Fprintf(w, "contract %x (%d blocks, %d steps)\n", c.Hash, len(c.Graph.Ids()), c.Flow.Steps)
	io.WriteString(w, flow.Format(c.Flow.Root))
}

func renderIR(w io.Writer, c *translator.Contract) {
	for i, f := range c.Functions {
		if i > 0 {
			io.WriteString(w, "\n")
		}
		if f.Err != nil {
			errorColor.Fprintf(w, "fun %s: %v\n", f.Name(), f.Err)
			continue
		}
		for _, line := range strings.SplitAfter(mir.Format(f.IR), "\n") {
			switch {
			case strings.HasPrefix(line, "fun "):
				headerColor.Fprint(w, line)
			case strings.HasPrefix(line, "L"):
				labelColor.Fprint(w, line)
			default:
				io.WriteString(w, line)
			}
		}
	}
}

// flowGraph draws the structured flow: one box per block, edges labelled with
// the branch taken, and dashed edges for loop back edges.
func flowGraph(c *translator.Contract, title string) *dot.Graph {
	d := &drawer{
		g:      dot.NewGraph(dot.Directed),
		blocks: c.Graph,
		nodes:  make(map[cfg.BlockId]dot.Node),
	}
	if title != "" {
		d.g.Attr("label", title)
	}
	d.seq(c.Flow.Root, nil)
	return d.g
}

type drawer struct {
	g      *dot.Graph
	blocks *cfg.Graph
	nodes  map[cfg.BlockId]dot.Node
}

// tail is a pending edge out of a drawn block.
type tail struct {
	from  dot.Node
	label string
}

func (d *drawer) node(id cfg.BlockId) dot.Node {
	if n, ok := d.nodes[id]; ok {
		return n
	}
	label := id.String()
	if b, err := d.blocks.Block(id); err == nil {
		label = fmt.Sprintf("%v\n%d instrs, %v", id, len(b.Instructions), b.Last().Op)
	}
	n := d.g.Node(id.String()).Label(label).Box()
	d.nodes[id] = n
	return n
}

func (d *drawer) connect(in []tail, to dot.Node, back bool) {
	for _, t := range in {
		e := d.g.Edge(t.from, to)
		if t.label != "" {
			e.Label(t.label)
		}
		if back {
			e.Attr("style", "dashed")
		}
	}
}

func (d *drawer) seq(s flow.Sequence, in []tail) []tail {
	for _, f := range s {
		in = d.flow(f, in)
	}
	return in
}

func (d *drawer) flow(f flow.Flow, in []tail) []tail {
	switch f := f.(type) {
	case *flow.Block:
		n := d.node(f.Id)
		d.connect(in, n, false)
		return []tail{{from: n}}
	case flow.Sequence:
		return d.seq(f, in)
	case *flow.If:
		n := d.node(f.Cond)
		d.connect(in, n, false)
		t := d.seq(f.True, []tail{{from: n, label: "true"}})
		return append(t, d.seq(f.False, []tail{{from: n, label: "false"}})...)
	case *flow.Loop:
		n := d.node(f.Cond)
		d.connect(in, n, false)
		body, exit := "false", "true"
		if f.IsTrueBranchLoop {
			body, exit = exit, body
		}
		// A body that falls off its end re-enters the head.
		d.connect(d.seq(f.Body, []tail{{from: n, label: body}}), n, true)
		return []tail{{from: n, label: exit}}
	case *flow.Continue:
		d.connect(in, d.node(f.Head), true)
		return nil
	}
	panic(fmt.Sprintf("e2mdump: unknown flow node %T", f))
}

func renderSummary(w io.Writer, names []string, contracts []*translator.Contract, errs []error) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"File", "Hash", "Blocks", "Loops", "Functions", "Failed", "Error"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	for i, name := range names {
		c := contracts[i]
		if errs[i] != nil || c == nil {
			table.Append([]string{name, "", "", "", "", "", fmt.Sprint(errs[i])})
			continue
		}
		table.Append([]string{
			name,
			fmt.Sprintf("%x", c.Hash[:8]),
			fmt.Sprint(len(c.Graph.Ids())),
			fmt.Sprint(len(c.Flow.Links)),
			fmt.Sprint(len(c.Functions)),
			fmt.Sprint(len(c.Failed())),
			"",
		})
	}
	table.Render()
}
