package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jgivc/paqmirror/internal/app"
	"github.com/jgivc/paqmirror/internal/catalog"
	"github.com/jgivc/paqmirror/internal/entity"
	"github.com/jgivc/paqmirror/internal/pack"
)

const usage = `Usage: paqmirror <command> [options]

Commands:
  init           Create a repository state file in the repository directory
  add-filter     Add a selection filter to the repository
  remove-filter  Remove matching filters from the repository
  list-filters   Show the persisted filters
  sync           Mirror every package selected by the filters
  build          Assemble a driver pack from a catalog selection
  report         Write the repository content report to stdout
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]

	if err := run(cmd, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	cfgPath := fs.String("c", "config.yml", "Path to config file")
	repoDir := fs.String("r", ".", "Repository directory")

	switch cmd {
	case "init":
		fs.Parse(args)

		return withApp(*cfgPath, *repoDir, func(a *app.App) error { return a.Init() })

	case "add-filter":
		f, err := filterFlags(fs, args)
		if err != nil {
			return err
		}

		return withApp(*cfgPath, *repoDir, func(a *app.App) error { return a.AddFilter(*f) })

	case "remove-filter":
		yes := fs.Bool("y", false, "Delete without confirmation")
		f, err := filterFlags(fs, args)
		if err != nil {
			return err
		}

		return withApp(*cfgPath, *repoDir, func(a *app.App) error {
			return removeFilters(a, *f, *yes)
		})

	case "list-filters":
		fs.Parse(args)

		return withApp(*cfgPath, *repoDir, func(a *app.App) error {
			filters, err := a.ListFilters()
			if err != nil {
				return err
			}
			for i, f := range filters {
				fmt.Printf("%d. %s\n", i+1, formatFilter(f))
			}

			return nil
		})

	case "sync":
		fs.Parse(args)

		return withApp(*cfgPath, *repoDir, func(a *app.App) error {
			return a.Sync(signalContext())
		})

	case "build":
		return buildCommand(fs, args, cfgPath, repoDir)

	case "report":
		fs.Parse(args)

		return withApp(*cfgPath, *repoDir, func(a *app.App) error {
			return a.Report(os.Stdout)
		})

	default:
		fmt.Fprint(os.Stderr, usage)

		return fmt.Errorf("unknown command %q", cmd)
	}
}

func withApp(cfgPath, repoDir string, fn func(*app.App) error) error {
	a := app.New(cfgPath, repoDir)
	a.Start()

	return fn(a)
}

// filterFlags parses the shared filter dimension flags. Empty dimensions
// stay empty here, normalization to wildcards happens in the engine.
func filterFlags(fs *flag.FlagSet, args []string) (*entity.Filter, error) {
	platform := fs.String("platform", "", "Platform id (4 hex digits)")
	osSpec := fs.String("os", "*", "Operating system, e.g. win11:23H2 or *")
	categories := fs.String("category", "", "Comma-separated categories")
	releaseTypes := fs.String("release-type", "", "Comma-separated release types")
	characteristics := fs.String("characteristic", "", "Comma-separated characteristics")
	ltsc := fs.Bool("prefer-ltsc", false, "Prefer the ltsc catalog variant")
	fs.Parse(args)

	spec, err := entity.ParseOSSpec(*osSpec)
	if err != nil {
		return nil, err
	}

	f := entity.Filter{
		Platform:   *platform,
		OS:         spec,
		PreferLTSC: *ltsc,
	}
	for _, v := range splitList(*categories) {
		f.Categories = append(f.Categories, entity.Category(v))
	}
	for _, v := range splitList(*releaseTypes) {
		f.ReleaseTypes = append(f.ReleaseTypes, entity.ReleaseType(v))
	}
	for _, v := range splitList(*characteristics) {
		f.Characteristics = append(f.Characteristics, entity.Characteristic(v))
	}

	return &f, nil
}

// removeFilters runs the match-confirm-delete protocol on the console.
func removeFilters(a *app.App, query entity.Filter, yes bool) error {
	matches, err := a.FindFilters(query)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		fmt.Println("No filters match.")

		return nil
	}

	fmt.Printf("The following %d filter(s) will be removed:\n", len(matches))
	for i, f := range matches {
		fmt.Printf("%d. %s\n", i+1, formatFilter(f))
	}

	if !yes && !confirm("Proceed? [y/N] ") {
		fmt.Println("Aborted.")

		return nil
	}

	n, err := a.RemoveFilters(query)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d filter(s).\n", n)

	return nil
}

func buildCommand(fs *flag.FlagSet, args []string, cfgPath, repoDir *string) error {
	platform := fs.String("platform", "", "Platform id (4 hex digits)")
	osSpec := fs.String("os", "", "Operating system, e.g. win11:23H2")
	bitness := fs.String("bitness", "64", "Architecture bitness")
	latest := fs.Bool("latest", false, "Use the newest supported os the platform has a catalog for")
	ltsc := fs.Bool("prefer-ltsc", false, "Prefer the ltsc catalog variant")
	categories := fs.String("category", "", "Comma-separated categories")
	name := fs.String("name", "", "Output name of the pack")
	output := fs.String("o", ".", "Output directory")
	format := fs.String("format", string(pack.FormatNone), "Output format: NoCompressedFile, ZIP or Image")
	unselect := fs.String("unselect", "", "Comma-separated package ids or name substrings to drop")
	removeOlder := fs.Bool("remove-older", false, "Keep only the newest release of each package")
	overwrite := fs.Bool("overwrite", false, "Replace an existing output instead of suffixing")
	uwp := fs.Bool("uwp", false, "Build an app pack instead of a driver pack")
	retries := fs.Int("retries", entity.DefaultLockMaxRetries, "Download lock retry budget")
	fs.Parse(args)

	req := catalog.Request{
		Platform:   *platform,
		PreferLTSC: *ltsc,
		Latest:     *latest,
	}
	if !*latest {
		spec, err := entity.ParseOSSpec(*osSpec)
		if err != nil {
			return err
		}
		req.OS = spec
		req.Bitness = *bitness
	}

	var filters []entity.Filter
	f := entity.Filter{Platform: *platform, OS: req.OS, PreferLTSC: *ltsc}
	for _, v := range splitList(*categories) {
		f.Categories = append(f.Categories, entity.Category(v))
	}
	if *uwp {
		f.Characteristics = append(f.Characteristics, entity.CharacteristicUWP)
	}
	f.Normalize()
	filters = append(filters, f)
	req.Filters = filters

	opts := pack.Options{
		Name:        *name,
		OutputDir:   *output,
		Format:      pack.Format(*format),
		Unselect:    splitList(*unselect),
		RemoveOlder: *removeOlder,
		Overwrite:   *overwrite,
		UWP:         *uwp,
		MaxRetries:  *retries,
	}

	return withApp(*cfgPath, *repoDir, func(a *app.App) error {
		return a.Build(signalContext(), req, opts)
	})
}

// signalContext cancels on the usual termination signals.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Println("Received termination signal. Shutting down...")
		cancel()
	}()

	return ctx
}

func confirm(prompt string) bool {
	fmt.Print(prompt)

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}

	answer := strings.ToLower(strings.TrimSpace(line))

	return answer == "y" || answer == "yes"
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}

	return out
}

func formatFilter(f entity.Filter) string {
	parts := []string{
		"platform=" + f.Platform,
		"os=" + f.OS.String(),
		"category=" + joinCategories(f.Categories),
		"releaseType=" + joinReleaseTypes(f.ReleaseTypes),
		"characteristic=" + joinCharacteristics(f.Characteristics),
	}
	if f.PreferLTSC {
		parts = append(parts, "preferLTSC")
	}

	return strings.Join(parts, " ")
}

func joinCategories(values []entity.Category) string {
	s := make([]string, len(values))
	for i, v := range values {
		s[i] = string(v)
	}

	return strings.Join(s, ",")
}

func joinReleaseTypes(values []entity.ReleaseType) string {
	s := make([]string, len(values))
	for i, v := range values {
		s[i] = string(v)
	}

	return strings.Join(s, ",")
}

func joinCharacteristics(values []entity.Characteristic) string {
	s := make([]string, len(values))
	for i, v := range values {
		s[i] = string(v)
	}

	return strings.Join(s, ",")
}
