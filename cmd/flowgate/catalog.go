package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	fgcatalog "github.com/artpar/flowgate/adapters/catalog"
	fghttp "github.com/artpar/flowgate/adapters/http"
	"github.com/artpar/flowgate/adapters/idgen"
	"github.com/artpar/flowgate/adapters/sqlite"
	"github.com/artpar/flowgate/app"
	"github.com/artpar/flowgate/bootstrap"
	"github.com/artpar/flowgate/config"
	"github.com/artpar/flowgate/domain/flow"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the flow catalog",
	Long: `Inspect and manage the catalog served by flowgate.

Examples:
  flowgate catalog import catalog.yaml
  flowgate catalog export --format json
  flowgate catalog list
  flowgate catalog match acme.prod.HTTP.api.example.com.GET --path /users
  flowgate catalog run acme.prod.HTTP.api.example.com.GET --path /users --input '{"method":"GET","url":"/users"}'`,
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Validate a catalog file and store it in the configured source",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogImport,
}

var catalogExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the catalog held by the configured source",
	RunE:  runCatalogExport,
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List flows in the catalog",
	RunE:  runCatalogList,
}

var catalogMatchCmd = &cobra.Command{
	Use:   "match <pattern>",
	Short: "Show which flow a dispatch pattern resolves to",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogMatch,
}

var catalogRunCmd = &cobra.Command{
	Use:   "run <pattern>",
	Short: "Resolve a dispatch pattern and execute the flow with --input",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogRun,
}

var (
	catalogFormat string
	matchPath     string
	matchMethod   string
	runInput      string
)

func init() {
	rootCmd.AddCommand(catalogCmd)

	catalogCmd.AddCommand(catalogImportCmd)
	catalogCmd.AddCommand(catalogExportCmd)
	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogMatchCmd)
	catalogCmd.AddCommand(catalogRunCmd)

	catalogExportCmd.Flags().StringVar(&catalogFormat, "format", "yaml", "output format: yaml, json")

	for _, c := range []*cobra.Command{catalogMatchCmd, catalogRunCmd} {
		c.Flags().StringVar(&matchPath, "path", "", "request path for HTTP patterns")
		c.Flags().StringVar(&matchMethod, "method", "", "request method (default: last pattern segment)")
	}
	catalogRunCmd.Flags().StringVar(&runInput, "input", "null", "flow input as JSON")
}

func runCatalogImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	def, err := fgcatalog.NewFileSource(args[0]).Load(ctx)
	if err != nil {
		return err
	}
	bodies := bootstrap.NewBodyRegistry(config.UpstreamConfig{}, zerolog.Nop())
	if _, err := bootstrap.BuildCatalog(def, bodies); err != nil {
		return fmt.Errorf("catalog error: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	src, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	if src.Store == nil {
		return fmt.Errorf("catalog source %q is read-only; edit %s instead", cfg.Catalog.Source, cfg.Catalog.Path)
	}

	if store, ok := src.Store.(*sqlite.CatalogStore); ok {
		err = store.ImportFrom(ctx, args[0], def)
	} else {
		err = src.Store.Import(ctx, def)
	}
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	types, flowTypes, flows := def.Counts()
	fmt.Fprintf(cmd.OutOrStdout(), "%s Imported %d data types, %d flow types, %d flows into %s\n",
		checkMark, types, flowTypes, flows, src.Name())
	return nil
}

func runCatalogExport(cmd *cobra.Command, args []string) error {
	format := fgcatalog.Format(catalogFormat)
	if format != fgcatalog.FormatYAML && format != fgcatalog.FormatJSON {
		return fmt.Errorf("unknown format %q: use yaml or json", catalogFormat)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	src, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	def, err := src.Load(context.Background())
	if err != nil {
		return fmt.Errorf("load %s: %w", src.Name(), err)
	}
	data, err := fgcatalog.Encode(def, format)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runCatalogList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	src, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	ctx := context.Background()
	def, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("load %s: %w", src.Name(), err)
	}

	out := cmd.OutOrStdout()
	if store, ok := src.Store.(*sqlite.CatalogStore); ok {
		rec, err := store.LastImport(ctx)
		switch {
		case err == nil:
			fmt.Fprintf(out, "Last import: %s from %s\n\n", rec.ImportedAt.Format("2006-01-02 15:04:05"), rec.Source)
		case !errors.Is(err, sqlite.ErrNoImport):
			return err
		}
	}

	if len(def.Flows) == 0 {
		fmt.Fprintln(out, "No flows found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFLOW TYPE\tPATTERN\tBODY")
	fmt.Fprintln(w, "--\t---------\t-------\t----")
	for _, f := range def.Flows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.ID, f.FlowTypeIdentifier, f.Pattern, f.Body.Kind)
	}
	return w.Flush()
}

// loadService builds a dispatch service over the configured catalog.
func loadService() (*app.DispatchService, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	src, err := openSource(cfg)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	svc := app.NewDispatchService(app.DispatchDeps{IDs: idgen.UUID{}, Logger: zerolog.Nop()})
	bodies := bootstrap.NewBodyRegistry(cfg.Upstream, zerolog.Nop())
	if err := svc.Reload(context.Background(), bootstrap.Loader(src, bodies)); err != nil {
		return nil, err
	}
	return svc, nil
}

// disambiguator returns an HTTP route when --path is set.
func disambiguator(pattern flow.Pattern) flow.Disambiguator {
	if matchPath == "" {
		return nil
	}
	method := matchMethod
	if method == "" {
		method = pattern.Segment(pattern.Len() - 1)
	}
	return fghttp.NewRoute(method, matchPath, nil)
}

func runCatalogMatch(cmd *cobra.Command, args []string) error {
	pattern, err := flow.ParsePattern(args[0])
	if err != nil {
		return err
	}
	svc, err := loadService()
	if err != nil {
		return err
	}

	f, err := svc.Resolve(pattern, disambiguator(pattern))
	if err != nil {
		var amb *flow.AmbiguousMatchError
		if errors.As(err, &amb) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s is ambiguous: %v\n", crossMark, amb.Pattern, amb.FlowIDs)
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s (%s, pattern %s)\n", checkMark, pattern, f.ID, f.FlowTypeIdentifier, f.Pattern)
	return nil
}

func runCatalogRun(cmd *cobra.Command, args []string) error {
	pattern, err := flow.ParsePattern(args[0])
	if err != nil {
		return err
	}
	var input any
	if err := json.Unmarshal([]byte(runInput), &input); err != nil {
		return fmt.Errorf("--input is not JSON: %w", err)
	}
	svc, err := loadService()
	if err != nil {
		return err
	}

	res, err := svc.ResolveAndExecute(cmd.Context(), pattern, disambiguator(pattern), input)
	if err != nil {
		resp := app.ClassifyError(err)
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %d %s: %s\n", crossMark, resp.Status, resp.Code, resp.Message)
		if resp.Report != nil {
			enc := json.NewEncoder(cmd.ErrOrStderr())
			enc.SetIndent("", "  ")
			enc.Encode(resp.Report)
		}
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res.Output)
}
