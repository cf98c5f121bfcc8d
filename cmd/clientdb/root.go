package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/clientdb/internal/config"
	httptransport "github.com/example/clientdb/internal/http"
	"github.com/example/clientdb/internal/persistence/sqlite/migration"
)

type buildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func newRootCommand(out io.Writer, build buildInfo) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "clientdb",
		Short:         "Manage embedded client databases",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)

	cmd.AddCommand(newVersionCommand(out, build))
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand(out))
	cmd.AddCommand(newCompileCommand(out))
	cmd.AddCommand(newDeleteCommand(out))
	return cmd
}

func newVersionCommand(out io.Writer, build buildInfo) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(build)
			}

			_, err := fmt.Fprintf(out, "version=%s commit=%s build_time=%s\n", build.Version, build.Commit, build.BuildTime)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print version as JSON")
	return cmd
}

// loadRuntime loads the environment configuration and builds a runtime
// logging to the command's error stream.
func loadRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return newRuntime(cmd.Context(), cfg, cmd.ErrOrStderr())
}

func newServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Build the declared databases and serve the dev inspector",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := rt.Close(context.Background()); cerr != nil {
					rt.logger.Error("failed to close runtime", "error", cerr)
				}
			}()

			if err := rt.register(ctx, rt.cfg.Databases, true); err != nil {
				return err
			}
			if addr == "" {
				addr = rt.cfg.HTTPAddr
			}

			router := httptransport.NewRouter(httptransport.RouterConfig{
				Databases: httptransport.NewDatabaseHandler(rt.manager, rt.logger),
				Metrics:   rt.collector.Handler(),
				Middleware: []func(http.Handler) http.Handler{
					httptransport.RequestLogger(rt.logger),
					httptransport.RequestMetrics(rt.collector),
				},
			})

			server := &http.Server{
				Addr:              addr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.ShutdownTimeout)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
					rt.logger.Error("failed to shutdown server", "error", err)
				}
			}()

			rt.logger.Info("dev inspector listening", "addr", server.Addr, "databases", rt.manager.Names())
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides CLIENTDB_HTTP_ADDR)")
	return cmd
}

func newMigrateCommand(out io.Writer) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "migrate [name...]",
		Short: "Migrate declared databases to the end of their migration logs",
		Long:  "Migrate the named databases, or every declared database with a migration log when no name is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close(cmd.Context())

			var targets []config.Database
			if len(args) == 0 {
				for _, decl := range rt.cfg.Databases {
					if decl.Migrations != "" {
						targets = append(targets, decl)
					}
				}
			} else {
				for _, name := range args {
					decl := rt.declaration(name)
					if decl.Migrations == "" {
						return fmt.Errorf("database %q declares no migration log", name)
					}
					targets = append(targets, decl)
				}
			}

			if err := rt.register(cmd.Context(), targets, false); err != nil {
				return err
			}
			for _, decl := range targets {
				if err := rt.manager.Migrate(cmd.Context(), decl.Name, migration.Options{Force: force}); err != nil {
					return err
				}
				entry, err := rt.manager.Get(decl.Name)
				if err != nil {
					return err
				}
				_, skipped := entry.MigrationState().Snapshot()
				status := "migrated"
				if skipped {
					status = "up to date"
				}
				fmt.Fprintf(out, "%s: %s\n", decl.Name, status)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Apply the log even if the stored hash matches")
	return cmd
}

func newCompileCommand(out io.Writer) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "compile <dir>",
		Short: "Compile a directory of SQL migration files into a migration log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := migration.Compile(args[0])
			if err != nil {
				return err
			}
			raw, err := json.MarshalIndent(log, "", "  ")
			if err != nil {
				return fmt.Errorf("encode migration log: %w", err)
			}
			raw = append(raw, '\n')

			if output == "" || output == "-" {
				_, err = out.Write(raw)
				return err
			}
			if err := os.WriteFile(output, raw, 0o644); err != nil {
				return fmt.Errorf("write migration log: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d steps to %s\n", len(log), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the log to a file instead of stdout")
	return cmd
}

func newDeleteCommand(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete the on-disk storage of a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close(cmd.Context())

			decl := rt.declaration(args[0])
			if err := rt.register(cmd.Context(), []config.Database{decl}, false); err != nil {
				return err
			}
			outcome, err := rt.manager.DeleteStorage(cmd.Context(), decl.Name)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "%s: %s\n", decl.Name, outcome)
			return err
		},
	}
	return cmd
}
