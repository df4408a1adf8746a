package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"aquos/internal"
	"aquos/internal/aquos"
	"aquos/internal/logger"

	"github.com/spf13/cobra"
)

var (
	tvHost            string
	tvPort            int
	tvDescriptionPort int
	tvUser            string
	tvPassword        string
	tvDebug           bool
	tvTest            bool
	tvCommandDelay    time.Duration
	tvSettleDelay     time.Duration
	tvHDMIInputs      int
	tvTimeout         time.Duration
)

var tvCmd = &cobra.Command{
	Use:   "tv",
	Short: "Control a Sharp AQUOS television",
	Long: `Control a Sharp AQUOS television over its SOAP control service.
Sends remote keys, switches inputs, runs macros and reads the device description.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if tvDebug || tvTest {
			logger.SetSilentMode(false)
			if tvDebug {
				logger.SetLevel("debug")
			}
		}
		if tvHost == "" && !tvTest && cmd.Name() != "list" {
			return fmt.Errorf("--host is required")
		}
		return nil
	},
}

func tvEndpoint() aquos.Endpoint {
	host := tvHost
	if host == "" {
		host = "simulator"
	}
	return aquos.Endpoint{Host: host, ControlPort: tvPort, DescriptionPort: tvDescriptionPort}
}

func tvOptions() aquos.Options {
	options := aquos.DefaultOptions()
	options.Credentials = aquos.Credentials{ID: tvUser, Pass: tvPassword}
	options.CommandDelay = tvCommandDelay
	options.SettleDelay = tvSettleDelay
	options.HDMIInputs = tvHDMIInputs
	return options
}

// newTVSession builds a session from the command flags; ready also runs
// discovery so that commands are accepted.
func newTVSession(ctx context.Context, ready bool) (*aquos.Session, error) {
	opts := internal.NewModeOptions(internal.WithDebug(tvDebug), internal.WithTest(tvTest))
	session, err := aquos.NewSession(tvEndpoint(), aquos.NewTransport(opts, tvTimeout), tvOptions())
	if err != nil {
		return nil, err
	}
	if ready {
		if err := session.Setup(ctx); err != nil {
			return nil, err
		}
	}
	return session, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(data))
	return nil
}

var tvRemoteCmd = &cobra.Command{
	Use:   "remote [key]",
	Short: "Send a remote control key",
	Long: `Send one remote control key, e.g. home, volume-up, num-5 or hdmi-2.
Use "tv list keys" for the full list.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := aquos.ParseKey(args[0])
		if err != nil {
			return err
		}

		session, err := newTVSession(cmd.Context(), true)
		if err != nil {
			return err
		}

		log.Info().
			Str("host", tvHost).
			Str("key", args[0]).
			Msg("Sending remote control key")

		if err := session.SendKey(cmd.Context(), code); err != nil {
			log.Error().Err(err).Msg("Failed to send remote key")
			return err
		}
		cmd.Printf("Sent %s\n", args[0])
		return nil
	},
}

var tvDescribeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Show the device description",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := newTVSession(cmd.Context(), false)
		if err != nil {
			return err
		}
		identity, err := session.Discover(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]interface{}{
			"friendly_name": identity.FriendlyName,
			"manufacturer":  identity.Manufacturer,
			"model_name":    identity.ModelName,
			"udn":           identity.UDN,
			"accessory_id":  identity.AccessoryID().String(),
		})
	},
}

var tvChannelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List the broadcast channels known to the set",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := newTVSession(cmd.Context(), false)
		if err != nil {
			return err
		}
		channels, err := session.EnumerateChannels(cmd.Context())
		if err != nil {
			return err
		}
		for _, channel := range channels {
			line := fmt.Sprintf("%-4s %s", channel.RemoteControlNumber, channel.DisplayName())
			if channel.Skipped() {
				line += " (skipped)"
			}
			cmd.Println(line)
		}
		return nil
	},
}

var tvInputsCmd = &cobra.Command{
	Use:   "inputs",
	Short: "List selectable inputs with their identifiers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := newTVSession(cmd.Context(), true)
		if err != nil {
			return err
		}
		for _, input := range aquos.Inputs(session.Registry()) {
			line := fmt.Sprintf("%3d  %-12s %s", input.Identifier, input.Kind, input.Label)
			if input.Hidden {
				line += " (hidden)"
			}
			cmd.Println(line)
		}
		return nil
	},
}

var tvSelectCmd = &cobra.Command{
	Use:   "select [identifier]",
	Short: "Switch to the input with the given identifier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid identifier: %s", args[0])
		}
		session, err := newTVSession(cmd.Context(), true)
		if err != nil {
			return err
		}
		if err := session.SelectIdentifier(cmd.Context(), id); err != nil {
			return err
		}
		return printJSON(cmd, session.State())
	},
}

var tvPowerCmd = &cobra.Command{
	Use:       "power [on|off]",
	Short:     "Turn the television on or off",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseSwitch(args[0])
		if err != nil {
			return err
		}
		session, err := newTVSession(cmd.Context(), true)
		if err != nil {
			return err
		}
		if err := session.SetPower(cmd.Context(), on); err != nil {
			return err
		}
		return printJSON(cmd, session.State())
	},
}

var tvMuteCmd = &cobra.Command{
	Use:       "mute [on|off|toggle]",
	Short:     "Change the mute state",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off", "toggle"},
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := newTVSession(cmd.Context(), true)
		if err != nil {
			return err
		}
		if args[0] == "toggle" {
			err = session.ToggleMute(cmd.Context())
		} else {
			var on bool
			if on, err = parseSwitch(args[0]); err != nil {
				return err
			}
			err = session.SetMute(cmd.Context(), on)
		}
		if err != nil {
			return err
		}
		return printJSON(cmd, session.State())
	},
}

var tvMacroCmd = &cobra.Command{
	Use:   "macro [name]",
	Short: "Run a named key macro",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := newTVSession(cmd.Context(), true)
		if err != nil {
			return err
		}
		log.Info().Str("macro", args[0]).Msg("Running macro")
		if err := session.RunMacro(cmd.Context(), args[0]); err != nil {
			return err
		}
		cmd.Printf("Macro %s completed\n", args[0])
		return nil
	},
}

var tvListCmd = &cobra.Command{
	Use:   "list [type]",
	Short: "List key names or macros",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "keys", "codes":
			cmd.Println("Available remote keys:")
			for _, name := range aquos.KeyNames() {
				cmd.Printf("  %s\n", name)
			}
			cmd.Println("  num-1 .. num-12")
			cmd.Printf("  hdmi-1 .. hdmi-%d\n", aquos.MaxHDMIInputs)
		case "macros":
			session, err := aquos.NewSession(tvEndpoint(), aquos.NewSimulator(), tvOptions())
			if err != nil {
				return err
			}
			cmd.Println("Available macros:")
			for _, name := range session.MacroNames() {
				cmd.Printf("  %s\n", name)
			}
		default:
			return fmt.Errorf("unknown list type: %s (use 'keys' or 'macros')", args[0])
		}
		return nil
	},
}

func parseSwitch(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", value)
}

func init() {
	flags := tvCmd.PersistentFlags()
	flags.StringVarP(&tvHost, "host", "H", os.Getenv("AQUOS_HOST"), "Television host address")
	flags.IntVarP(&tvPort, "port", "p", aquos.DefaultControlPort, "SOAP control port")
	flags.IntVar(&tvDescriptionPort, "description-port", aquos.DefaultDescriptionPort, "Device description port")
	flags.StringVar(&tvUser, "user", "", "Login ID configured on the set")
	flags.StringVar(&tvPassword, "password", os.Getenv("AQUOS_PASSWORD"), "Password configured on the set")
	flags.BoolVarP(&tvDebug, "debug", "d", false, "Enable debug logging")
	flags.BoolVar(&tvTest, "test", false, "Use a simulated television instead of the network")
	flags.DurationVar(&tvCommandDelay, "command-delay", aquos.DefaultCommandDelay, "Pause after each command")
	flags.DurationVar(&tvSettleDelay, "settle-delay", aquos.DefaultSettleDelay, "Pause before navigating a freshly opened menu")
	flags.IntVar(&tvHDMIInputs, "hdmi-inputs", aquos.MaxHDMIInputs, "Number of HDMI inputs on the set")
	flags.DurationVar(&tvTimeout, "timeout", 10*time.Second, "HTTP request timeout")

	tvCmd.AddCommand(tvRemoteCmd)
	tvCmd.AddCommand(tvDescribeCmd)
	tvCmd.AddCommand(tvChannelsCmd)
	tvCmd.AddCommand(tvInputsCmd)
	tvCmd.AddCommand(tvSelectCmd)
	tvCmd.AddCommand(tvPowerCmd)
	tvCmd.AddCommand(tvMuteCmd)
	tvCmd.AddCommand(tvMacroCmd)
	tvCmd.AddCommand(tvListCmd)

	rootCmd.AddCommand(tvCmd)
}
