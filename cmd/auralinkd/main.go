// Auralinkd is the connectivity daemon for AuraLink audio devices.
//
// On a factory-fresh unit it opens a setup access point with a captive
// portal and waits for network credentials. Once configured, it joins the
// stored network, announces itself over mDNS, and holds a WebSocket session
// with the AuraLink backend.
//
// Usage:
//
//	auralinkd run [flags]
//
// See 'auralinkd run --help' for available options.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/auralink/auralink/internal/creds"
	"github.com/auralink/auralink/internal/device"
	"github.com/auralink/auralink/internal/events"
	"github.com/auralink/auralink/internal/logging"
	"github.com/auralink/auralink/internal/orchestrator"
	"github.com/auralink/auralink/internal/radio"
	"github.com/auralink/auralink/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "auralinkd",
	Short: "AuraLink device connectivity daemon",
	Long: `The connectivity daemon for AuraLink audio devices.

Unconfigured devices enter provisioning mode: an open access point with a
captive portal collects network credentials. Configured devices join the
stored network and maintain a session with the AuraLink backend.

Persistent state lives under /var/lib/auralink (override with
AURALINK_STATE_DIR). Logging is silent unless AURALINK_LOG_LEVEL is set.`,
	Version: version.Version,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(eraseCmd)
	rootCmd.AddCommand(versionCmd)
}

// Run command and flags
var (
	sessionURL string
	clientID   string
	logLevel   string
	dnsPort    int
	portalPort int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the connectivity lifecycle",
	Long: `Run the device's connectivity lifecycle until terminated.

The daemon decides its own path at startup: provisioning mode when no valid
credentials are stored, otherwise station mode with a backend session.`,
	Example: `  # Run against the default backend
  auralinkd run --session-url wss://api.auralink.io/device

  # Development run with verbose logging and unprivileged ports
  auralinkd run --session-url ws://localhost:8080/device \
      --log-level debug --dns-port 5353 --portal-port 8081`,
	RunE: runDaemon,
}

func init() {
	runCmd.Flags().StringVar(&sessionURL, "session-url", "wss://api.auralink.io/device", "Backend WebSocket base URL")
	runCmd.Flags().StringVar(&clientID, "client-id", "", "Override the client id derived from the hardware address")
	runCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); empty reads AURALINK_LOG_LEVEL")
	runCmd.Flags().IntVar(&dnsPort, "dns-port", 53, "Captive DNS port for provisioning mode")
	runCmd.Flags().IntVar(&portalPort, "portal-port", 80, "Portal HTTP port for provisioning mode")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if err := logging.Initialize(logLevel); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	// The simulated radio stands in until a platform driver is wired up
	// for the target hardware.
	driver := radio.NewSimulated(nil)

	o, err := orchestrator.New(orchestrator.Config{
		SessionURL: sessionURL,
		ClientID:   clientID,
		DNSPort:    dnsPort,
		PortalPort: portalPort,
	}, driver, device.Nop{})
	if err != nil {
		return fmt.Errorf("failed to assemble orchestrator: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SIGUSR1 maps the hardware reset button for development runs.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	go func() {
		for sig := range sigs {
			if sig == syscall.SIGUSR1 {
				o.Bus().Set(events.FactoryResetRequested)
				continue
			}
			cancel()
			return
		}
	}()

	return o.Run(ctx)
}

var eraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Erase stored network credentials",
	Long: `Erase the persisted network credentials.

The next run enters provisioning mode. Equivalent to the on-device factory
reset, minus the restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Initialize(logLevel); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		defer logging.Sync()

		store := creds.NewStore(nil)
		if err := store.Erase(); err != nil {
			return err
		}
		fmt.Println("Stored credentials erased.")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("auralinkd %s (commit: %s)\n", version.Version, version.Commit)
	},
}
