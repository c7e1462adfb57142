package mir

import (
	"fmt"
	"strings"
)

// Format renders a function with labels flush left and statements indented.
func Format(f *Function) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "fun %s (slots %d, temps %d)\n", f.Name, f.Vars.Slots, f.Vars.Temps)
	for _, s := range f.Stmts {
		if _, ok := s.(*Label); ok {
			fmt.Fprintf(&sb, "%v\n", s)
			continue
		}
		fmt.Fprintf(&sb, "    %v\n", s)
	}
	return sb.String()
}
