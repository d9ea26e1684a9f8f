package reinforcement

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

const (
	ruleWidth = 50
	keyWidth  = 30
)

// PrintHyperparameters writes params as a dotted two-column table, keys sorted.
func PrintHyperparameters(w io.Writer, params map[string]any) {
	rule := strings.Repeat("=", ruleWidth)
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "Hyperparameters:")
	fmt.Fprintln(w, rule)
	for _, key := range keys {
		fmt.Fprintf(w, "%s %v\n", dotPad(key, keyWidth), params[key])
	}
	fmt.Fprintln(w, rule)
}

// dotPad left-aligns s in a field of width, filling with dots.
func dotPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(".", width-len(s))
}
