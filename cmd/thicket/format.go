package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/mattn/go-isatty"

	"github.com/jward/thicket"
	"github.com/jward/thicket/internal/config"
)

// CLIResult is the JSON envelope of every command but dump.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
}

// output writes result as JSON or, in text mode, through text.
func (c *cli) output(cfg *config.Config, command string, result any, text func() error) error {
	if resolveFormat(cfg.Output.Format, c.stdout) == "text" {
		return text()
	}
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(CLIResult{Command: command, Results: result})
}

// resolveFormat turns auto into text on a terminal and json elsewhere.
func resolveFormat(format string, w io.Writer) string {
	if format != "auto" {
		return format
	}
	f, ok := w.(*os.File)
	if !ok {
		return "json"
	}
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		return "text"
	}
	return "json"
}

func formatInferText(w io.Writer, res *thicket.InferResult) error {
	fmt.Fprintf(w, "%s %s at %d:%d\n\n", res.Expr.Kind, res.Expr.Name, res.Expr.Line, res.Expr.Col)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tREPR\tTYPE\tDEFINED")
	for _, v := range res.Values {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.Kind, v.Repr, v.Type, location(v.Node))
	}
	return tw.Flush()
}

func formatLookupText(w io.Writer, res *thicket.LookupResult) error {
	scope := "-"
	if res.Scope != nil {
		scope = res.Scope.Kind + " " + res.Scope.QName
	}
	fmt.Fprintf(w, "%s in %s\n\n", res.Name, scope)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tNAME\tLOCATION")
	for _, s := range res.Statements {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Kind, s.Name, location(&s))
	}
	return tw.Flush()
}

func formatMROText(w io.Writer, mro []thicket.NodeInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tCLASS\tQNAME\tLOCATION")
	for i, c := range mro {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i, c.Name, c.QName, location(&c))
	}
	return tw.Flush()
}

func location(n *thicket.NodeInfo) string {
	if n == nil {
		return "-"
	}
	if n.Line == 0 {
		return n.Module
	}
	return fmt.Sprintf("%s:%d:%d", n.Module, n.Line, n.Col)
}
