// Command recall is a chat assistant with intent-gated long-term memory.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/becomeliminal/recall/config"
)

var (
	cfgFile string
	cfg     *config.Config

	rootCmd = &cobra.Command{
		Use:           "recall",
		Short:         "A chat assistant that decides per message what to remember and what to recall.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional.
			_ = godotenv.Load()

			loaded, err := config.Load(viper.GetViper(), cfgFile)
			if err != nil {
				return err
			}
			cfg = loaded
			setupLogger(cfg.Logging)
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().String("model", "", "chat model name")
	rootCmd.PersistentFlags().String("provider", "", "model provider (zai, openai, deepseek, anthropic, ...)")
	rootCmd.PersistentFlags().String("store-path", "", "vector store directory")

	bindFlag(rootCmd, "logging.level", "log-level")
	bindFlag(rootCmd, "logging.format", "log-format")
	bindFlag(rootCmd, "llm.model", "model")
	bindFlag(rootCmd, "llm.provider", "provider")
	bindFlag(rootCmd, "store.path", "store-path")

	rootCmd.AddCommand(serveCmd, chatCmd, analyzeCmd, memoryCmd)
}

// bindFlag binds a persistent flag to a config key. Unset flags keep the
// lower-precedence value.
func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func setupLogger(c config.Logging) {
	var level slog.Level
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(c.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
