package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/deusflow/sarawaknews/internal/app"
	"github.com/deusflow/sarawaknews/internal/config"
	"github.com/deusflow/sarawaknews/internal/logger"
	"github.com/deusflow/sarawaknews/internal/refresh"
	"github.com/deusflow/sarawaknews/internal/sources"
	"github.com/deusflow/sarawaknews/internal/storage"
)

var (
	version    = "dev"
	commit     = "none"
	buildDate  = "unknown"
	jsonOutput bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sarawaknews",
		Short: "Sarawak news ingestion and refresh pipeline",
		Long: `sarawaknews polls regional news feeds, keeps the Sarawak-relevant
items, stores them once per URL and backfills Chinese and Malay titles.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	rootCmd.AddCommand(
		versionCmd(),
		serveCmd(),
		refreshCmd(),
		backfillCmd(),
		sourcesCmd(),
		dbcheckCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{"version": version, "commit": commit, "date": buildDate})
				return
			}
			fmt.Printf("sarawaknews %s (%s, %s)\n", version, commit, buildDate)
		},
	}
}

// loadConfig reads configuration and sets up logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, logger.Logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func withStore(ctx context.Context, fn func(s *storage.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := storage.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withApp(ctx, func(a *app.App) error {
				return a.Serve(ctx)
			})
		},
	}
}

func refreshCmd() *cobra.Command {
	var manual, wait bool
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run one refresh cycle",
		Long:  "Runs the automatic path, which honours the cooldown, unless --manual is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, func(a *app.App) error {
				var (
					out refresh.Outcome
					err error
				)
				if manual {
					out, err = a.Refresh.Manual(ctx)
				} else {
					out, err = a.Refresh.Automatic(ctx)
				}
				if err != nil {
					return err
				}
				if wait {
					a.Refresh.Wait()
				} else {
					a.Shutdown()
				}

				if out.Throttled {
					if jsonOutput {
						printJSON(map[string]interface{}{"error": "refresh throttled", "retryAfter": out.RetryAfter})
					} else {
						fmt.Printf("Throttled: retry in %ds\n", out.RetryAfter)
					}
					return nil
				}
				if jsonOutput {
					printJSON(out)
					return nil
				}
				fmt.Printf("Status: %s  added: %d  seen: %d  errors: %d\n", out.Status, out.Added, out.Total, len(out.Errors))
				for _, e := range refresh.TruncateErrors(out.Errors, 10) {
					fmt.Printf("  - %s\n", e)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&manual, "manual", false, "Ignore the cooldown")
	cmd.Flags().BoolVar(&wait, "wait", true, "Wait for the translation backfill to finish")
	return cmd
}

func backfillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Translate one batch of articles missing titles",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, func(a *app.App) error {
				n, err := a.Backfiller.Run(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					printJSON(map[string]interface{}{"translated": n, "translation": a.Limiter.GetStats()})
					return nil
				}
				fmt.Printf("Translated %d articles\n", n)
				return nil
			})
		},
	}
}

func sourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage the feed registry",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List sources with their health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(s *storage.Store) error {
				list, err := s.ListSources(cmd.Context())
				if err != nil {
					return err
				}
				now := time.Now()
				if jsonOutput {
					type row struct {
						sources.Source
						Health sources.Health `json:"health"`
					}
					rows := make([]row, 0, len(list))
					for _, src := range list {
						rows = append(rows, row{Source: src, Health: sources.Evaluate(src, now)})
					}
					printJSON(rows)
					return nil
				}
				tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tACTIVE\tERRORS\tHEALTH\tURL")
				for _, src := range list {
					h := sources.Evaluate(src, now)
					fmt.Fprintf(tw, "%d\t%s\t%t\t%d\t%s\t%s\n", src.ID, src.Name, src.Active, src.ErrorCount, h.Status, src.URL)
				}
				return tw.Flush()
			})
		},
	})

	var alwaysRelevant bool
	add := &cobra.Command{
		Use:   "add NAME URL",
		Short: "Register a feed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(s *storage.Store) error {
				id, err := s.AddSource(cmd.Context(), sources.Source{
					Name: args[0], URL: args[1], Active: true, AlwaysRelevant: alwaysRelevant,
				})
				if err != nil {
					return err
				}
				fmt.Printf("Added source %d\n", id)
				return nil
			})
		},
	}
	add.Flags().BoolVar(&alwaysRelevant, "always-relevant", false, "Skip keyword filtering for this feed")
	cmd.AddCommand(add)

	var file string
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Register the feeds listed in the sources YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.SourcesConfigPath
			}
			list, err := sources.LoadFile(file)
			if err != nil {
				return err
			}
			s, err := storage.Open(cmd.Context(), cfg.DatabaseDriver, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer s.Close()
			n, err := s.SeedSources(cmd.Context(), list)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d new of %d sources from %s\n", n, len(list), file)
			return nil
		},
	}
	seed.Flags().StringVarP(&file, "file", "f", "", "Sources YAML file (default SOURCES_CONFIG)")
	cmd.AddCommand(seed)

	cmd.AddCommand(setActiveCmd("enable", true), setActiveCmd("disable", false))
	return cmd
}

func setActiveCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: fmt.Sprintf("Mark a source %sd", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid source id %q", args[0])
			}
			return withStore(cmd.Context(), func(s *storage.Store) error {
				err := s.SetSourceActive(cmd.Context(), id, active)
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("source %d not found", id)
				}
				return err
			})
		},
	}
}

func dbcheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dbcheck",
		Short: "Open the database, apply the schema and print row counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(s *storage.Store) error {
				counts, err := s.Counts(cmd.Context())
				if err != nil {
					return err
				}
				st, err := refresh.ReadState(cmd.Context(), s)
				if err != nil {
					return err
				}
				if jsonOutput {
					printJSON(map[string]interface{}{"driver": s.Driver(), "counts": counts, "refresh": st})
					return nil
				}
				fmt.Printf("Driver: %s\n", s.Driver())
				fmt.Printf("Sources: %d (%d active)\n", counts.Sources, counts.ActiveSources)
				fmt.Printf("Articles: %d (%d missing translations)\n", counts.Articles, counts.Untranslated)
				fmt.Printf("Error log entries: %d\n", counts.ErrorLog)
				if st.LastRefresh != nil {
					fmt.Printf("Last refresh: %s (%s, added %d of %d, %d errors)\n",
						st.LastRefresh.Format(time.RFC3339), st.Status, st.Added, st.Total, st.ErrorCount)
				} else {
					fmt.Println("Last refresh: never")
				}
				return nil
			})
		},
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
