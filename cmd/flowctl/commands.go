package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/charlesng35/engageflow/internal/app"
	"github.com/charlesng35/engageflow/internal/cache"
	"github.com/charlesng35/engageflow/internal/database"
	"github.com/charlesng35/engageflow/internal/flow"
	"github.com/charlesng35/engageflow/internal/gateway"
	"github.com/charlesng35/engageflow/internal/services"
	"github.com/charlesng35/engageflow/internal/vault"
	"github.com/charlesng35/engageflow/pkg/logger"
)

// errInvalidGraph makes validate exit non-zero once the problems are printed.
var errInvalidGraph = errors.New("graph is invalid")

// graphFile is the on-disk flow format: the same shape the API accepts.
type graphFile struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	TriggerType string          `json:"trigger_type"`
	Keywords    []string        `json:"keywords"`
	Nodes       json.RawMessage `json:"nodes"`
	Edges       json.RawMessage `json:"edges"`

	InactivityTimeout        int    `json:"inactivity_timeout"`
	InactivityMaxWarnings    int    `json:"inactivity_max_warnings"`
	InactivityWarningMessage string `json:"inactivity_warning_message"`
	InactivityEndMessage     string `json:"inactivity_end_message"`
}

func readGraphFile(path string) (*graphFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph: %w", err)
	}
	var file graphFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode graph %s: %w", path, err)
	}
	if len(file.Nodes) == 0 {
		return nil, fmt.Errorf("graph %s has no nodes", path)
	}
	if strings.TrimSpace(file.Name) == "" {
		file.Name = "simulation"
	}
	return &file, nil
}

func (f *graphFile) input() services.FlowInput {
	return services.FlowInput{
		Name:                     f.Name,
		Description:              f.Description,
		TriggerType:              f.TriggerType,
		Keywords:                 f.Keywords,
		Nodes:                    f.Nodes,
		Edges:                    f.Edges,
		InactivityTimeout:        f.InactivityTimeout,
		InactivityMaxWarnings:    f.InactivityMaxWarnings,
		InactivityWarningMessage: f.InactivityWarningMessage,
		InactivityEndMessage:     f.InactivityEndMessage,
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "flowctl",
		Short:         "Operate EngageFlow chatbot flows from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.ConfigureLogging(logLevel, app.LogFormatConsole)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(newMigrateCmd(), newValidateCmd(), newSimulateCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations for the configured database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var paths []string
			if strings.TrimSpace(configPath) != "" {
				paths = append(paths, configPath)
			}
			cfg, err := app.LoadConfig(paths...)
			if err != nil {
				return err
			}

			dbCfg := cfg.Database.ConnectionConfig()
			db, err := database.Open(dbCfg)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer database.Close(db)

			if err := database.AutoMigrate(db); err != nil {
				return err
			}
			logger.WithModule("flowctl").Info("migrations applied", zap.String("driver", dbCfg.Driver))
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d tables on %s\n", len(database.Models()), dbCfg.Driver)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to configuration directory")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <graph.json>",
		Short: "Parse and validate a flow graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := readGraphFile(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			problems := validateGraph(file)
			if len(problems) == 0 {
				fmt.Fprintf(out, "%s: valid\n", args[0])
				return nil
			}
			fmt.Fprintf(out, "%s: %d problem(s)\n", args[0], len(problems))
			for _, problem := range problems {
				fmt.Fprintf(out, "  - %s\n", problem)
			}
			return errInvalidGraph
		},
	}
}

func validateGraph(file *graphFile) []string {
	graph, err := flow.ParseGraph(file.Nodes, file.Edges)
	if err != nil {
		return flow.Problems(err)
	}
	return flow.Problems(graph.ValidateWith(flow.DefaultRegistry()))
}

func newSimulateCmd() *cobra.Command {
	var (
		number string
		name   string
	)

	cmd := &cobra.Command{
		Use:   "simulate <graph.json>",
		Short: "Chat with a flow on an in-memory database; each stdin line is an inbound message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := readGraphFile(args[0])
			if err != nil {
				return err
			}
			return simulate(cmd.Context(), file, number, name, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&number, "number", "5500000000000", "Phone number of the simulated contact")
	cmd.Flags().StringVar(&name, "name", "Simulator", "Name of the simulated contact")
	return cmd
}

// simulate runs the engine against an in-memory database, feeding it one
// inbound message per input line and printing the bot's replies.
func simulate(ctx context.Context, file *graphFile, number, name string, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := database.Open(database.Config{
		Driver:       "sqlite",
		DSN:          "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1",
		MaxOpenConns: 1,
	})
	if err != nil {
		return fmt.Errorf("open simulation database: %w", err)
	}
	defer database.Close(db)

	if err := database.AutoMigrate(db); err != nil {
		return err
	}

	crypto, err := vault.NewCrypto([]byte(uuid.NewString()))
	if err != nil {
		return err
	}

	set, err := services.NewSet(db, services.SetConfig{GraphCache: cache.NewMemoryStore(), Vault: crypto})
	if err != nil {
		return err
	}
	company, err := set.Companies.Create(ctx, services.CreateCompanyInput{Name: "Simulation"})
	if err != nil {
		return err
	}
	flowModel, err := set.Flows.Create(ctx, company.ID, file.input())
	if err != nil {
		return err
	}
	if _, err := set.Flows.SetDefault(ctx, company.ID, flowModel.ID); err != nil {
		return err
	}

	engine, err := flow.NewEngine(db, set.EngineDependencies(gateway.NewWriterSender(out)))
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Simulating %q. Type a message per line; Ctrl-D to quit.\n", file.Name)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		result, err := engine.HandleInbound(ctx, flow.InboundMessage{
			CompanyID: company.ID,
			Number:    number,
			Name:      name,
			Text:      text,
		})
		if err != nil {
			return err
		}
		switch {
		case result.EndReason != "":
			fmt.Fprintf(out, "-- execution %s (%s)\n", result.Status, result.EndReason)
		case !result.Handled:
			fmt.Fprintf(out, "-- not handled (%s)\n", result.Reason)
		}
	}
	return scanner.Err()
}
