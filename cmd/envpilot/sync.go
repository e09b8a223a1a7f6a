package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jenian/envpilot/internal/lockfile"
	"github.com/jenian/envpilot/internal/manager"
	"github.com/jenian/envpilot/internal/output"
)

var (
	syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Export and import environments through lock files",
	}

	syncExportCmd = &cobra.Command{
		Use:   "export NAME_OR_PATH",
		Short: "Write an environment's packages to a signed lock file",
		Args:  cobra.ExactArgs(1),
		RunE:  runSyncExport,
	}

	syncImportCmd = &cobra.Command{
		Use:   "import LOCK_FILE NEW_NAME",
		Short: "Create a new environment from a lock file",
		Long:  "Create a new environment in the current directory with the exact package versions pinned in a lock file. A signature mismatch is reported as a warning unless --strict is set.",
		Args:  cobra.ExactArgs(2),
		RunE:  runSyncImport,
	}

	lockOutput string
	strict     bool
)

func init() {
	syncExportCmd.Flags().StringVarP(&lockOutput, "file", "f", "", "Lock file to write (default: sync.lock_file)")
	syncImportCmd.Flags().BoolVar(&strict, "strict", false, "Fail when the lock file signature does not match")

	syncCmd.AddCommand(syncExportCmd)
	syncCmd.AddCommand(syncImportCmd)
}

func runSyncExport(cmd *cobra.Command, args []string) error {
	a := current
	target := lockOutput
	if target == "" {
		target = a.cfg.Sync.LockFile
	}

	exporter := lockfile.NewExporter(a.scanner, a.pip, a.host, a.logger)
	path, err := exporter.Export(cmd.Context(), args[0], target)
	if err != nil {
		return err
	}
	output.New(cmd.OutOrStdout(), false).Success("Exported '%s' to %s", args[0], path)
	return nil
}

func runSyncImport(cmd *cobra.Command, args []string) error {
	a := current
	out := output.New(cmd.OutOrStdout(), false)

	importer := lockfile.NewImporter(a.manager, strict || a.cfg.Sync.StrictSignature, a.logger)
	path, err := importer.Import(cmd.Context(), args[0], args[1])
	if err != nil {
		var partial *manager.PartialError
		if errors.As(err, &partial) || path != "" {
			out.Warn("Environment was created at %s but is incomplete", path)
		}
		return err
	}
	out.Success("Created environment '%s' at %s", args[1], path)
	fmt.Fprintf(cmd.OutOrStdout(), "Activate it with: envpilot activate %s\n", args[1])
	return nil
}
