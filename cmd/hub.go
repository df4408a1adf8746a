package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"aquos/internal"
	"aquos/internal/hub"
	"aquos/internal/logger"

	"github.com/spf13/cobra"
)

var (
	hubConfigPath string
	hubDebugFlag  bool
	hubTestFlag   bool
	hubAddress    string
	hubToken      string
	tokenSubject  string
	tokenTTL      time.Duration
)

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Start the AQUOS hub daemon",
	Long: `The AQUOS hub is a daemon that keeps a session open to every television in
its configuration file. It serves a REST API for control, persists the last
known state of each set and, when a broker is configured, mirrors state to MQTT.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.SetSilentMode(false)
		if hubDebugFlag {
			logger.SetLevel("debug")
		} else {
			logger.SetLevel("info")
		}

		log := logger.New()
		log.Info().
			Str("config_path", hubConfigPath).
			Bool("debug", hubDebugFlag).
			Bool("test", hubTestFlag).
			Msg("Starting AQUOS hub daemon")

		if _, err := os.Stat(hubConfigPath); os.IsNotExist(err) {
			config, err := hub.NewConfigWithSecret()
			if err != nil {
				return err
			}
			if err := hub.SaveConfig(config, hubConfigPath); err != nil {
				log.Error().Err(err).Msg("Failed to create default config file")
				return fmt.Errorf("failed to create default config file: %w", err)
			}
			log.Info().
				Str("config_path", hubConfigPath).
				Msg("Created default configuration file. Please edit it with your settings.")
			return nil
		}

		opts := internal.NewModeOptions(internal.WithDebug(hubDebugFlag), internal.WithTest(hubTestFlag))
		daemon, err := hub.NewDaemon(hubConfigPath, opts)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create hub daemon")
			return fmt.Errorf("failed to create hub daemon: %w", err)
		}

		// Blocks until shutdown.
		if err := daemon.Start(cmd.Context()); err != nil {
			log.Error().Err(err).Msg("Hub daemon stopped with error")
			return fmt.Errorf("hub daemon error: %w", err)
		}
		return nil
	},
}

var hubStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check hub daemon status",
	Long:  `Query the health endpoint of a running hub daemon.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, hubAddress+"/api/v1/health", nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("hub is not reachable at %s: %w", hubAddress, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("hub answered %s", resp.Status)
		}

		var health map[string]interface{}
		if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
			return fmt.Errorf("failed to decode health response: %w", err)
		}
		return printJSON(cmd, health)
	},
}

var hubDevicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the televisions managed by a running hub",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, hubAddress+"/api/v1/devices", nil)
		if err != nil {
			return err
		}
		if hubToken != "" {
			req.Header.Set("Authorization", "Bearer "+hubToken)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("hub is not reachable at %s: %w", hubAddress, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("hub answered %s", resp.Status)
		}

		var devices interface{}
		if err := json.NewDecoder(resp.Body).Decode(&devices); err != nil {
			return fmt.Errorf("failed to decode device list: %w", err)
		}
		return printJSON(cmd, devices)
	},
}

var hubTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API token signed with the hub secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := hub.LoadConfig(hubConfigPath)
		if err != nil {
			return err
		}
		if config.Hub.JWTSecret == "" {
			return fmt.Errorf("hub %s has no jwt_secret; authentication is disabled", config.Hub.ID)
		}

		tokens := hub.NewTokenService(config.Hub.JWTSecret, config.Hub.ID)
		token, err := tokens.GenerateToken(tokenSubject, tokenTTL)
		if err != nil {
			return err
		}
		cmd.Println(token)
		return nil
	},
}

var hubConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage hub configuration",
	Long:  `Generate or validate hub configuration files.`,
}

var hubConfigGenerateCmd = &cobra.Command{
	Use:   "generate [config-file]",
	Short: "Generate default configuration file",
	Long:  `Generate a configuration file with a fresh hub ID, API secret and one example television.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := hubConfigPath
		if len(args) > 0 {
			configPath = args[0]
		}

		config, err := hub.NewConfigWithSecret()
		if err != nil {
			return err
		}
		if err := hub.SaveConfig(config, configPath); err != nil {
			return fmt.Errorf("failed to save default config: %w", err)
		}

		cmd.Printf("Default configuration saved to: %s\n", configPath)
		cmd.Println("Please edit the file with your actual television settings.")
		return nil
	},
}

var hubConfigValidateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate configuration file",
	Long:  `Validate a hub configuration file for syntax, required fields and macro definitions.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := hubConfigPath
		if len(args) > 0 {
			configPath = args[0]
		}

		config, err := hub.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		cmd.Printf("Configuration file is valid: %s\n", configPath)
		cmd.Printf("Hub ID: %s\n", config.Hub.ID)
		cmd.Printf("Listen address: %s\n", config.Hub.Listen)
		if config.Hub.MQTT.Broker != "" {
			cmd.Printf("MQTT broker: %s\n", config.Hub.MQTT.Broker)
		}
		cmd.Printf("Configured devices: %d\n", len(config.Devices))
		for _, device := range config.Devices {
			cmd.Printf("  - %s at %s\n", device.ID, device.Endpoint())
		}
		return nil
	},
}

func init() {
	hubCmd.PersistentFlags().StringVarP(&hubConfigPath, "config", "c", "hub.yml", "Path to hub configuration file")
	hubCmd.Flags().BoolVarP(&hubDebugFlag, "debug", "d", false, "Enable debug logging")
	hubCmd.Flags().BoolVar(&hubTestFlag, "test", false, "Enable test mode (simulate device responses)")

	hubStatusCmd.Flags().StringVar(&hubAddress, "address", "http://localhost"+hub.DefaultListen, "Base URL of the hub API")
	hubDevicesCmd.Flags().StringVar(&hubAddress, "address", "http://localhost"+hub.DefaultListen, "Base URL of the hub API")
	hubDevicesCmd.Flags().StringVar(&hubToken, "token", os.Getenv("AQUOS_HUB_TOKEN"), "API token")
	hubTokenCmd.Flags().StringVar(&tokenSubject, "subject", "cli", "Token subject")
	hubTokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")

	hubCmd.AddCommand(hubStatusCmd)
	hubCmd.AddCommand(hubDevicesCmd)
	hubCmd.AddCommand(hubTokenCmd)
	hubCmd.AddCommand(hubConfigCmd)
	hubConfigCmd.AddCommand(hubConfigGenerateCmd)
	hubConfigCmd.AddCommand(hubConfigValidateCmd)
}
