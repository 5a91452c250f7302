// Package cli implements the ragkb command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragkb/internal/core/ports/driving"
	"github.com/custodia-labs/ragkb/internal/logger"
)

// Scope is how much of the application a command needs.
type Scope int

const (
	// ScopeNone needs no services.
	ScopeNone Scope = iota

	// ScopeSettings needs the settings service only.
	ScopeSettings

	// ScopeFull needs every service, including storage and backends.
	ScopeFull
)

// scopeAnnotation marks a command with the scope it needs. Commands
// without it inherit from their parent, and the root defaults to full.
const scopeAnnotation = "ragkb/scope"

// Services holds the driving ports the commands call.
type Services struct {
	Answer    driving.AnswerService
	Ingestion driving.IngestionService
	Search    driving.SearchService
	Stats     driving.StatsService
	Sync      driving.SyncService
	Settings  driving.SettingsService
}

// Bootstrap builds the services a command needs. The returned function
// releases them.
type Bootstrap func(ctx context.Context, scope Scope) (*Services, func() error, error)

var (
	version = "dev"
	verbose bool

	bootstrap     Bootstrap
	closeServices func() error
)

var (
	answerService    driving.AnswerService
	ingestionService driving.IngestionService
	searchService    driving.SearchService
	statsService     driving.StatsService
	syncService      driving.SyncService
	settingsService  driving.SettingsService
)

var rootCmd = &cobra.Command{
	Use:   "ragkb",
	Short: "Question answering over your own documents",
	Long: `ragkb ingests documents, indexes them as embedded chunks, and answers
questions with a language model grounded in the most relevant passages.

Run 'ragkb serve' for the HTTP API or 'ragkb mcp serve' for AI assistants.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// SetServices installs the driving ports used by the commands.
func SetServices(s *Services) {
	if s == nil {
		s = &Services{}
	}
	answerService = s.Answer
	ingestionService = s.Ingestion
	searchService = s.Search
	statsService = s.Stats
	syncService = s.Sync
	settingsService = s.Settings
}

// Execute runs the command line. boot is called once, before the selected
// command runs, with the scope that command needs.
func Execute(ctx context.Context, v string, boot Bootstrap) error {
	if v != "" {
		version = v
	}
	bootstrap = boot
	rootCmd.SetOut(os.Stdout)
	defer func() {
		if err := shutdown(); err != nil {
			logger.Warn("Closing services: %v", err)
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)

	if bootstrap == nil {
		return nil
	}
	scope := scopeOf(cmd)
	if scope == ScopeNone {
		return nil
	}

	svcs, closer, err := bootstrap(cmd.Context(), scope)
	if err != nil {
		return fmt.Errorf("starting ragkb: %w", err)
	}
	SetServices(svcs)
	closeServices = closer
	return nil
}

func shutdown() error {
	if closeServices == nil {
		return nil
	}
	err := closeServices()
	closeServices = nil
	return err
}

func scopeOf(cmd *cobra.Command) Scope {
	// Help and shell completion are generated by cobra.
	if cmd.Name() == "help" || (cmd.HasParent() && cmd.Parent().Name() == "completion") {
		return ScopeNone
	}
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Annotations[scopeAnnotation] {
		case "none":
			return ScopeNone
		case "settings":
			return ScopeSettings
		case "full":
			return ScopeFull
		}
	}
	return ScopeFull
}

func scoped(s string) map[string]string {
	return map[string]string{scopeAnnotation: s}
}
