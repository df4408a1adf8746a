package cmd

import (
	"fmt"

	"aquos/internal/cli"

	"github.com/spf13/cobra"
)

var (
	deviceHost            string
	devicePort            int
	deviceDescriptionPort int
	deviceUser            string
	devicePassword        string
	deviceHDMIInputs      int
)

var hubDeviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Edit the televisions in the hub configuration",
	Long: `Add, update, remove or list the televisions in a hub configuration file.
The file is backed up before each change; a running daemon picks up the new
list on SIGHUP.`,
}

var hubDeviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured televisions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := cli.NewConfigManager(hubConfigPath).ListDevices()
		if err != nil {
			return err
		}
		for _, device := range devices {
			cmd.Printf("%-20s %s\n", device.ID, device.Endpoint())
		}
		return nil
	},
}

var hubDeviceAddCmd = &cobra.Command{
	Use:   "add [id]",
	Short: "Add a television",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if deviceHost == "" {
			return fmt.Errorf("--host is required")
		}
		cm := cli.NewConfigManager(hubConfigPath)
		device := cli.CreateDeviceTemplate(args[0], deviceHost)
		applyDeviceFlags(cmd, &device.ControlPort, &device.DescriptionPort, &device.Username, &device.Password)
		if cmd.Flags().Changed("hdmi-inputs") {
			device.HDMIInputs = &deviceHDMIInputs
		}

		if cm.DeviceExists(args[0]) {
			return fmt.Errorf("device with ID '%s' already exists", args[0])
		}
		if err := backupIfPresent(cm); err != nil {
			return err
		}
		if err := cm.AddDevice(device); err != nil {
			return err
		}
		cmd.Printf("Added %s at %s\n", device.ID, device.Endpoint())
		return nil
	},
}

var hubDeviceUpdateCmd = &cobra.Command{
	Use:   "update [id]",
	Short: "Change the address or login of a television",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cm := cli.NewConfigManager(hubConfigPath)
		current, err := cm.GetDevice(args[0])
		if err != nil {
			return err
		}

		device := *current
		if cmd.Flags().Changed("host") {
			device.Host = deviceHost
		}
		applyDeviceFlags(cmd, &device.ControlPort, &device.DescriptionPort, &device.Username, &device.Password)
		if cmd.Flags().Changed("hdmi-inputs") {
			device.HDMIInputs = &deviceHDMIInputs
		}

		if err := backupIfPresent(cm); err != nil {
			return err
		}
		if err := cm.UpdateDevice(args[0], device); err != nil {
			return err
		}
		cmd.Printf("Updated %s\n", args[0])
		return nil
	},
}

var hubDeviceRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Remove a television",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cm := cli.NewConfigManager(hubConfigPath)
		if err := backupIfPresent(cm); err != nil {
			return err
		}
		if err := cm.RemoveDevice(args[0]); err != nil {
			return err
		}
		cmd.Printf("Removed %s\n", args[0])
		return nil
	},
}

var hubDeviceRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Undo the last device change",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cli.NewConfigManager(hubConfigPath).RestoreFromBackup(); err != nil {
			return err
		}
		cmd.Println("Configuration restored from backup")
		return nil
	},
}

func applyDeviceFlags(cmd *cobra.Command, port, descriptionPort *int, user, password *string) {
	if cmd.Flags().Changed("port") {
		*port = devicePort
	}
	if cmd.Flags().Changed("description-port") {
		*descriptionPort = deviceDescriptionPort
	}
	if cmd.Flags().Changed("user") {
		*user = deviceUser
	}
	if cmd.Flags().Changed("password") {
		*password = devicePassword
	}
}

func backupIfPresent(cm *cli.ConfigManager) error {
	if _, err := cm.LoadConfig(); err != nil {
		return err
	}
	return cm.BackupConfig()
}

func init() {
	for _, c := range []*cobra.Command{hubDeviceAddCmd, hubDeviceUpdateCmd} {
		c.Flags().StringVarP(&deviceHost, "host", "H", "", "Television host address")
		c.Flags().IntVarP(&devicePort, "port", "p", 10002, "SOAP control port")
		c.Flags().IntVar(&deviceDescriptionPort, "description-port", 8008, "Device description port")
		c.Flags().StringVar(&deviceUser, "user", "", "Login ID configured on the set")
		c.Flags().StringVar(&devicePassword, "password", "", "Password configured on the set")
		c.Flags().IntVar(&deviceHDMIInputs, "hdmi-inputs", 6, "Number of HDMI inputs on the set")
	}

	hubDeviceCmd.AddCommand(hubDeviceListCmd)
	hubDeviceCmd.AddCommand(hubDeviceAddCmd)
	hubDeviceCmd.AddCommand(hubDeviceUpdateCmd)
	hubDeviceCmd.AddCommand(hubDeviceRemoveCmd)
	hubDeviceCmd.AddCommand(hubDeviceRestoreCmd)
	hubCmd.AddCommand(hubDeviceCmd)
}
