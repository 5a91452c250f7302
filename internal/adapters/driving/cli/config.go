package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/ragkb/internal/core/domain"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Aliases: []string{"settings"},
	Short:   "Manage configuration",
	Long: `View and change the persisted configuration.

Values are stored in ~/.ragkb/config.toml. Environment variables and a .env
file in the working directory take precedence over the stored values.`,
	Annotations: scoped("settings"),
	RunE:        runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long: `Stores a configuration value under a dotted key, for example:

  ragkb config set llm.provider openai
  ragkb config set chunking.size 800
  ragkb config set llm.api_key          # prompts without echo

Durations accept Go syntax such as 30s or 1m.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runConfigSet,
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate settings and ping the AI providers",
	Args:  cobra.NoArgs,
	RunE:  runConfigCheck,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings := settingsService.Get()
	st := newStyles(cmd.OutOrStdout())

	cmd.Println(st.Title("Current Settings"))
	cmd.Println()

	cmd.Println(st.Heading("[Embedding]"))
	cmd.Printf("  Provider: %s\n", settings.Embedding.Provider.Description())
	cmd.Printf("  Model: %s\n", settings.Embedding.Model)
	cmd.Printf("  Base URL: %s\n", baseURL(settings.Embedding.BaseURL, settings.Embedding.Provider))
	printAPIKey(cmd, settings.Embedding.Provider, settings.Embedding.APIKey)
	cmd.Printf("  Dimensions: %d\n", settings.Embedding.Dimensions)
	cmd.Printf("  Batch size: %d\n", settings.Embedding.BatchSize)
	if settings.Embedding.RequestsPerSecond > 0 {
		cmd.Printf("  Requests per second: %g\n", settings.Embedding.RequestsPerSecond)
	}
	cmd.Printf("  Status: %s\n", configuredStatus(st, settings.Embedding.IsConfigured()))
	cmd.Println()

	cmd.Println(st.Heading("[LLM]"))
	cmd.Printf("  Provider: %s\n", settings.LLM.Provider.Description())
	cmd.Printf("  Model: %s\n", settings.LLM.Model)
	cmd.Printf("  Base URL: %s\n", baseURL(settings.LLM.BaseURL, settings.LLM.Provider))
	printAPIKey(cmd, settings.LLM.Provider, settings.LLM.APIKey)
	cmd.Printf("  Temperature: %g\n", settings.LLM.Temperature)
	cmd.Printf("  Max tokens: %d\n", settings.LLM.MaxTokens)
	cmd.Printf("  Retries: %d (base delay %s)\n", settings.LLM.MaxRetries, settings.LLM.RetryBaseDelay)
	cmd.Printf("  Status: %s\n", configuredStatus(st, settings.LLM.IsConfigured()))
	cmd.Println()

	cmd.Println(st.Heading("[Chunking]"))
	cmd.Printf("  Size: %d\n", settings.Chunking.Size)
	cmd.Printf("  Overlap: %d\n", settings.Chunking.Overlap)
	cmd.Println()

	cmd.Println(st.Heading("[Vector Index]"))
	cmd.Printf("  Backend: %s\n", settings.VectorIndex.Backend)
	if settings.VectorIndex.Backend == domain.VectorBackendQdrant {
		cmd.Printf("  URL: %s\n", settings.VectorIndex.URL)
		if settings.VectorIndex.APIKey != "" {
			cmd.Printf("  API Key: %s\n", maskAPIKey(settings.VectorIndex.APIKey))
		}
	}
	cmd.Printf("  Collection: %s\n", settings.VectorIndex.Collection)
	cmd.Println()

	cmd.Println(st.Heading("[Storage]"))
	cmd.Printf("  Backend: %s\n", settings.Storage.Backend)
	if settings.Storage.DataDir != "" {
		cmd.Printf("  Data dir: %s\n", settings.Storage.DataDir)
	}
	if settings.Storage.DatabaseURL != "" {
		cmd.Printf("  Database URL: %s\n", maskDSN(settings.Storage.DatabaseURL))
	}
	cmd.Println()

	cmd.Println(st.Heading("[Server]"))
	cmd.Printf("  Address: %s\n", settings.Server.Addr)
	if settings.PromptDir != "" {
		cmd.Printf("  Prompt dir: %s\n", settings.PromptDir)
	}
	cmd.Println()

	if err := settingsService.Validate(); err != nil {
		cmd.Println(st.Warning(fmt.Sprintf("Warning: %v", err)))
		cmd.Println("Run 'ragkb config set' to fix configuration issues.")
	} else {
		cmd.Println(st.Success("Configuration is valid."))
	}

	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	key := args[0]
	var value string
	switch {
	case len(args) == 2:
		value = args[1]
	case isSecretKey(key):
		cmd.Printf("Enter value for %s: ", key)
		value = readPassword(cmd.InOrStdin())
		cmd.Println()
	default:
		return fmt.Errorf("missing value for %s", key)
	}

	if value == "" {
		return fmt.Errorf("empty value for %s", key)
	}

	if err := settingsService.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	shown := value
	if isSecretKey(key) {
		shown = maskAPIKey(value)
	}
	cmd.Printf("%s = %s\n", key, shown)
	return nil
}

func runConfigCheck(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	st := newStyles(cmd.OutOrStdout())
	if err := settingsService.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cmd.Println(st.Success("Configuration is valid."))

	cmd.Print("Validating embedding provider... ")
	if err := settingsService.ValidateEmbeddingConfig(cmd.Context()); err != nil {
		cmd.Println(st.Failure("FAILED"))
		return fmt.Errorf("embedding configuration validation failed: %w", err)
	}
	cmd.Println(st.Success("OK"))

	cmd.Print("Validating LLM provider... ")
	if err := settingsService.ValidateLLMConfig(cmd.Context()); err != nil {
		cmd.Println(st.Failure("FAILED"))
		return fmt.Errorf("LLM configuration validation failed: %w", err)
	}
	cmd.Println(st.Success("OK"))
	return nil
}

// Helper functions.

func printAPIKey(cmd *cobra.Command, p domain.AIProvider, key string) {
	if !p.RequiresAPIKey() {
		return
	}
	if key != "" {
		cmd.Printf("  API Key: %s\n", maskAPIKey(key))
	} else {
		cmd.Printf("  API Key: (not set)\n")
	}
}

func baseURL(configured string, p domain.AIProvider) string {
	if configured != "" {
		return configured
	}
	return p.DefaultBaseURL() + " (default)"
}

func configuredStatus(st *styles, ok bool) string {
	if ok {
		return st.Success("configured")
	}
	return st.Warning("not configured")
}

func isSecretKey(key string) bool {
	return strings.HasSuffix(key, "api_key")
}

//nolint:errcheck // CLI helper, error ignored for UX
func readPassword(in io.Reader) string {
	// Read without echo when stdin is a terminal.
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		if err == nil {
			return strings.TrimSpace(string(password))
		}
	}
	reader := bufio.NewReader(in)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// maskDSN hides the password of a connection URL.
func maskDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	user, _, hasPassword := strings.Cut(creds, ":")
	if !hasPassword {
		return dsn
	}
	return dsn[:scheme+3] + user + ":****" + dsn[at:]
}
