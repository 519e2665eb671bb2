package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func (c *cli) inferCmd() *cobra.Command {
	return positional(&cobra.Command{
		Use:   "infer <file> <line> <col>",
		Short: "Infer the values of the expression at a position",
		Long:  "Infer the innermost expression at a position. Lines are 1-based, columns 0-based.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, col, err := parsePosition(args[1], args[2])
			if err != nil {
				return err
			}
			e, cfg, err := c.openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := e.InferAt(c.cmdContext(cmd), args[0], line, col)
			if err != nil {
				return err
			}
			return c.output(cfg, "infer", res, func() error { return formatInferText(c.stdout, res) })
		},
	})
}

func (c *cli) lookupCmd() *cobra.Command {
	return positional(&cobra.Command{
		Use:   "lookup <file> <line> <col>",
		Short: "Find the statements that bind the name at a position",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, col, err := parsePosition(args[1], args[2])
			if err != nil {
				return err
			}
			e, cfg, err := c.openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := e.LookupAt(c.cmdContext(cmd), args[0], line, col)
			if err != nil {
				return err
			}
			return c.output(cfg, "lookup", res, func() error { return formatLookupText(c.stdout, res) })
		},
	})
}

func (c *cli) mroCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mro <file> <class>",
		Short: "Print the method resolution order of a module-level class",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cfg, err := c.openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			mro, err := e.MRO(c.cmdContext(cmd), args[0], args[1])
			if err != nil {
				return err
			}
			return c.output(cfg, "mro", mro, func() error { return formatMROText(c.stdout, mro) })
		},
	}
}

func (c *cli) dumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <file>",
		Short: "Print the refmap serialization of a module",
		Long:  "Print the refmap serialization of a module. The output is JSON in every format.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, err := c.openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			data, err := e.DumpFile(c.cmdContext(cmd), args[0])
			if err != nil {
				return err
			}
			if _, err := c.stdout.Write(data); err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.stdout)
			return err
		},
	}
}

// positional stops flag parsing at the first argument, so a negative
// column reaches parsePosition instead of being read as a shorthand flag.
// Flags must come before the file.
func positional(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func parsePosition(lineArg, colArg string) (int, int, error) {
	line, err := parseIntArg("line", lineArg)
	if err != nil {
		return 0, 0, err
	}
	if line < 1 {
		return 0, 0, fmt.Errorf("invalid line %d: lines start at 1", line)
	}
	col, err := parseIntArg("col", colArg)
	if err != nil {
		return 0, 0, err
	}
	if col < 0 {
		return 0, 0, fmt.Errorf("invalid col %d: columns start at 0", col)
	}
	return line, col, nil
}

func parseIntArg(name, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be an integer", name, value)
	}
	return n, nil
}
