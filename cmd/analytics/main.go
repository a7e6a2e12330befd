package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"channel-analytics/internal/config"
	"channel-analytics/internal/domain"
	"channel-analytics/internal/log"
)

var (
	settings     domain.Settings
	settingsPath string

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
	flagEphemeral      bool   // value of --ephemeral flag
)

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "settings file to load - default is "+config.DefaultSettingsPath())
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")
	rootCmd.PersistentFlags().BoolVar(&flagEphemeral, "ephemeral", false, "keep the sign-in token in memory only")

	// errors are logged once below
	rootCmd.SilenceErrors = true

	// load settings, setup logging
	rootCmd.PersistentPreRunE = initAnalytics

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(jobCmd)
	rootCmd.AddCommand(diagnoseCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("analytics failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "analytics",
	Short:        "Submit channels for analysis and follow the results",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("analytics: version info not available")
			return
		}

		if settingsPath != "" {
			fmt.Printf("config:    %s\n", settingsPath)
		}
		fmt.Printf("analytics: %s\n", info.Main.Version)
		fmt.Printf("go:        %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:    %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:      %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:     %s\n", s.Value)
			}
		}
	},
}

func initAnalytics(cmd *cobra.Command, _ []string) error {
	slog.SetDefault(log.New(flagVerbose))

	if err := config.LoadDotEnv(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}

	settingsPath = config.DefaultSettingsPath()
	if flagConfigFilePath != "" {
		settingsPath = flagConfigFilePath
	}

	loaded, err := config.NewJSONStore(settingsPath).Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	settings = config.ApplyEnv(loaded, os.LookupEnv)

	slog.Debug("analytics run", "configPath", settingsPath)
	slog.Debug("analytics run", "settings", settings)
	return nil
}
