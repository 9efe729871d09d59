package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect a module registry",
}

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered modules and versions",
	Args:  cobra.NoArgs,
	RunE:  runRegistryList,
}

func init() {
	registryListCmd.Flags().String("registry", "", "directory of module manifests (*.toml)")
	registryListCmd.Flags().Bool("fullpath", false, "emit absolute file paths in output")

	registryCmd.AddCommand(registryListCmd)
}

// runRegistryList prints one line per registered module@version: name,
// version, block and published-graph counts, and the manifest file it came
// from. The stock module registers from memory and shows as (builtin).
func runRegistryList(cmd *cobra.Command, _ []string) error {
	defer dumpTraceOnPanic(cmd)

	regDir, err := cmd.Flags().GetString("registry")
	if err != nil {
		return fmt.Errorf("failed to get registry flag: %w", err)
	}

	fullPath, err := cmd.Flags().GetBool("fullpath")
	if err != nil {
		return fmt.Errorf("failed to get fullpath flag: %w", err)
	}

	p, err := newPipeline(cmd)
	if err != nil {
		return err
	}
	if err := p.load(cmd, "", regDir); err != nil {
		return err
	}

	if p.bag.Len() > 0 {
		if err := p.printDiagnostics(cmd, "pretty", false, false, false, fullPath); err != nil {
			return err
		}
	}
	p.printTimings(cmd)
	if p.bag.HasErrors() {
		return failSilently(cmd)
	}

	pathMode := "auto"
	if fullPath {
		pathMode = "absolute"
	}
	for _, name := range p.reg.Modules() {
		for _, v := range p.reg.Versions(name) {
			entry, ok := p.reg.Entry(name, v.String())
			if !ok {
				continue
			}
			from := "(builtin)"
			if entry.File != 0 {
				if f := p.fset.Get(entry.File); f != nil {
					from = f.FormatPath(pathMode, p.fset.BaseDir())
				}
			}
			if err := writeStdoutf("%s\t%s\tblocks=%d\tgraphs=%d\t%s\n",
				name, v.String(), len(entry.Spec.Blocks), len(entry.Spec.Graphs), from); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeStdoutf(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeStdoutln(args ...any) error {
	_, err := fmt.Fprintln(os.Stdout, args...)
	return err
}

func writeStderrf(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stderr, format, args...)
	return err
}
