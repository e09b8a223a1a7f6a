package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jenian/envpilot/internal/cleaner"
	"github.com/jenian/envpilot/internal/config"
	"github.com/jenian/envpilot/internal/inventory"
	"github.com/jenian/envpilot/internal/manager"
	"github.com/jenian/envpilot/internal/matcher"
	"github.com/jenian/envpilot/internal/output"
	"github.com/jenian/envpilot/internal/scanner"
	"github.com/jenian/envpilot/internal/venv"
)

// Version is set at build time via -ldflags
var Version = "dev"

// app holds everything built once per invocation from host, config and flags
type app struct {
	host    config.Host
	cfg     *config.Config
	cfgPath string
	root    string
	logger  *log.Logger
	pip     *inventory.Pip
	scanner *scanner.Scanner
	manager *manager.Manager

	// permissionDenied counts directories the scanner could not read
	permissionDenied int
}

var (
	rootCmd = &cobra.Command{
		Use:               "envpilot",
		Short:             "Find, match and manage Python virtual environments",
		Long:              "A CLI tool that discovers Python virtual environments on disk, ranks them against a project's requirements and syncs them through lock files.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List every environment below the search root",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}

	matchCmd = &cobra.Command{
		Use:   "match MANIFEST",
		Short: "Rank environments by how well they satisfy a manifest",
		Long:  "Rank environments against requirements.txt, pyproject.toml or setup.py. Environments missing fewer requirements and carrying fewer extra packages rank first.",
		Args:  cobra.ExactArgs(1),
		RunE:  runMatch,
	}

	createCmd = &cobra.Command{
		Use:   "create [NAME]",
		Short: "Create a new environment",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runCreate,
	}

	activateCmd = &cobra.Command{
		Use:   "activate NAME",
		Short: "Start a shell with an environment activated",
		Args:  cobra.ExactArgs(1),
		RunE:  runActivate,
	}

	cleanCmd = &cobra.Command{
		Use:   "clean",
		Short: "Remove environments that are not linked to a project",
		Long:  "Remove environments that have no .project file. The rule is a heuristic: review the list before confirming.",
		Args:  cobra.NoArgs,
		RunE:  runClean,
	}

	initConfigCmd = &cobra.Command{
		Use:   "init-config",
		Short: "Create a .envpilot.yaml file in the current directory",
		Args:  cobra.NoArgs,
		RunE:  runInitConfig,
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Long:  "Print the version number of envpilot",
		// No config or host detection needed
		PersistentPreRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}

	// Flags
	configFile   string
	debug        bool
	searchRoot   string
	jsonOutput   bool
	matchEnv     string
	requirements string
	basePath     string
	dependencies []string
	dryRun       bool
	assumeYes    bool

	current *app
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: .envpilot.yaml in the working or home directory)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&searchRoot, "root", "", "Directory to search for environments (overrides scan.root)")

	listCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results in JSON format")
	matchCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results in JSON format")
	matchCmd.Flags().StringVarP(&matchEnv, "env", "e", "", "Only score the environment with this name")
	cleanCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results in JSON format")
	cleanCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only list orphaned environments")
	cleanCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Remove without asking for confirmation")

	createCmd.Flags().StringVarP(&requirements, "requirements", "r", "", "Requirements file to install")
	createCmd.Flags().StringVarP(&basePath, "path", "p", "", "Parent directory (default: current directory)")
	createCmd.Flags().StringSliceVar(&dependencies, "dep", []string{}, "Extra package to install (repeatable)")

	configCmd.AddCommand(configShowCmd)

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(activateCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(initConfigCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup detects the host, loads configuration and wires the components
func setup(cmd *cobra.Command, args []string) error {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "envpilot"})
	logger.SetLevel(log.WarnLevel)
	if debug {
		logger.SetLevel(log.DebugLevel)
	}

	host, err := config.DetectHost()
	if err != nil {
		return err
	}
	cfg, cfgPath, err := config.LoadConfig(config.LoadOptions{
		ConfigFile: configFile,
		SearchDirs: []string{host.WorkDir, host.HomeDir},
	})
	if err != nil {
		return err
	}
	if cfgPath != "" {
		logger.Debug("loaded config", "path", cfgPath)
	}

	root := cfg.SearchRoot(host)
	if searchRoot != "" {
		if root, err = filepath.Abs(searchRoot); err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}

	pip := inventory.NewPip(host.OS, venv.ExecRunner{Timeout: cfg.Runtime.CommandTimeout})
	pip.VersionRunner = venv.ExecRunner{Timeout: cfg.Runtime.CommandTimeout, CombineOutput: true}

	a := &app{host: host, cfg: cfg, cfgPath: cfgPath, root: root, logger: logger, pip: pip}
	a.scanner = scanner.NewScanner(scanner.Options{
		OS:            host.OS,
		WorkDir:       host.WorkDir,
		LegacyDir:     cfg.LegacyDir(host),
		SearchRoot:    root,
		MaxDepth:      cfg.Scan.MaxDepth,
		ExcludeDirs:   cfg.Scan.ExcludeDirs,
		NestedMarkers: cfg.Scan.NestedMarkers,
	}, pip, pip, logger)
	a.scanner.OnIssue = func(issue scanner.Issue) {
		if issue.Kind == scanner.IssuePermission {
			a.permissionDenied++
		}
	}
	a.manager = manager.NewManager(manager.Options{
		OS:      host.OS,
		WorkDir: host.WorkDir,
		Python:  cfg.Python(host),
		Shell:   host.DefaultShell(),
		Environ: host.Environ,
	}, venv.ExecRunner{Timeout: cfg.Runtime.InstallTimeout}, logger)

	current = a
	return nil
}

// reportSkipped hints at directories the scan could not read
func (a *app) reportSkipped() {
	if a.permissionDenied > 0 {
		a.logger.Warn("some directories could not be read", "count", a.permissionDenied, "hint", "run with --debug for paths")
	}
}

func runList(cmd *cobra.Command, args []string) error {
	a := current
	if !jsonOutput {
		fmt.Fprintf(os.Stderr, "Scanning %s...\n", a.root)
	}
	envs := a.scanner.Discover(cmd.Context(), a.root)
	sort.SliceStable(envs, func(i, j int) bool { return envs[i].Path < envs[j].Path })
	a.reportSkipped()

	if err := output.New(cmd.OutOrStdout(), jsonOutput).List(envs); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	return nil
}

func runMatch(cmd *cobra.Command, args []string) error {
	a := current
	manifestPath := args[0]
	if _, err := os.Stat(manifestPath); err != nil {
		return fmt.Errorf("manifest not found: %s", manifestPath)
	}

	m := matcher.NewMatcher(a.scanner, a.pip, matcher.Options{Root: a.root, Workers: a.cfg.Runtime.Workers}, a.logger)
	results, err := m.Rank(cmd.Context(), manifestPath, matchEnv)
	if err != nil {
		return err
	}
	a.reportSkipped()

	if err := output.New(cmd.OutOrStdout(), jsonOutput).Match(manifestPath, results); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	return nil
}

func runCreate(cmd *cobra.Command, args []string) error {
	a := current
	name := manager.DefaultName
	if len(args) > 0 {
		name = args[0]
	}

	out := output.New(cmd.OutOrStdout(), false)
	path, err := a.manager.Create(cmd.Context(), manager.Request{
		Name:             name,
		BasePath:         basePath,
		RequirementsPath: requirements,
		Dependencies:     dependencies,
	})
	if err != nil {
		var partial *manager.PartialError
		if errors.As(err, &partial) {
			out.Warn("Environment created at %s, but package installation failed", partial.Path)
		}
		return err
	}
	out.Success("Created environment at %s", path)
	out.Info("Activate it with: envpilot activate %s", name)
	return nil
}

func runActivate(cmd *cobra.Command, args []string) error {
	a := current
	fmt.Fprintf(os.Stderr, "Launching activated shell for '%s'. Type 'exit' to leave.\n", args[0])
	return a.manager.Activate(cmd.Context(), a.scanner, args[0])
}

func runClean(cmd *cobra.Command, args []string) error {
	a := current
	out := output.New(cmd.OutOrStdout(), jsonOutput)

	envs := a.scanner.Discover(cmd.Context(), a.root)
	orphaned := cleaner.Orphaned(envs, cleaner.ProjectLinkMissing)
	a.reportSkipped()

	report := output.CleanReport{Orphaned: orphaned, DryRun: dryRun}
	if err := out.Orphans(orphaned, cleaner.TotalSize(orphaned)); err != nil {
		return err
	}
	if len(orphaned) == 0 || dryRun {
		return out.Clean(report)
	}

	if !assumeYes {
		ok, err := confirm(fmt.Sprintf("Remove %d environment(s)?", len(orphaned)))
		if err != nil {
			return err
		}
		if !ok {
			out.Info("Aborted.")
			return nil
		}
	}

	removed, errs := cleaner.Remove(orphaned)
	report.Removed = removed
	for _, err := range errs {
		report.Errors = append(report.Errors, err.Error())
	}
	if err := out.Clean(report); err != nil {
		return err
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d environment(s) could not be removed", len(errs))
	}
	return nil
}

// confirm asks a yes/no question on the terminal
func confirm(title string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("refusing to remove environments without confirmation; pass --yes")
	}
	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(title).
			Affirmative("Remove").
			Negative("Cancel").
			Value(&ok),
	))
	if err := form.Run(); err != nil {
		return false, fmt.Errorf("confirmation failed: %w", err)
	}
	return ok, nil
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	a := current
	configPath := filepath.Join(a.host.WorkDir, config.FileName)

	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists in the current directory", config.FileName)
	}

	content, err := config.Template()
	if err != nil {
		return err
	}
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to create %s: %w", config.FileName, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %s in the current directory\n", config.FileName)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	a := current
	data, err := a.cfg.Marshal()
	if err != nil {
		return err
	}
	source := a.cfgPath
	if source == "" {
		source = "defaults"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "# source: %s\n# search root: %s\n%s", source, a.root, data)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprint(os.Stderr, output.FormatError(err))
		stop()
		os.Exit(1)
	}
}
