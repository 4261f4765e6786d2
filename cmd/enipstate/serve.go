package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tturner/enipstate/internal/config"
	"github.com/tturner/enipstate/internal/logging"
	"github.com/tturner/enipstate/internal/server"
)

type serveFlags struct {
	configPath string
	listenIP   string
	listenPort int
	logLevel   string
	logFile    string
}

func newServeCmd() *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the EtherNet/IP server",
		Long: `Run enipstate as an EtherNet/IP endpoint that other ENIP clients can
connect to.

The server listens on TCP port 44818 for encapsulated messaging. It answers
RegisterSession, ListServices, SendRRData and SendUnitData, and replies to
malformed payloads with an incorrect-data status without dropping the
connection.

Configuration is loaded from enipstate.yaml (or --config). Flags override
the file.

Press Ctrl+C to stop the server gracefully.`,
		Example: `  # Start with defaults
  enipstate serve

  # Start on a specific IP and port
  enipstate serve --listen-ip 192.168.1.100 --listen-port 44818

  # Use a custom config file
  enipstate serve --config ./my_server.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(flags)
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "", "Server config file path")
	cmd.Flags().StringVar(&flags.listenIP, "listen-ip", "", "Listen IP address override")
	cmd.Flags().IntVar(&flags.listenPort, "listen-port", 0, "Listen port override")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "Log level override: silent|error|info|verbose|debug")
	cmd.Flags().StringVar(&flags.logFile, "log-file", "", "Log file path")

	cmd.AddCommand(newServeValidateCmd())
	cmd.AddCommand(newServePrintDefaultCmd())

	return cmd
}

func newServeValidateCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Validate a server config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath == "" {
				cfgPath = "enipstate.yaml"
			}
			if _, err := config.LoadServerConfig(cfgPath); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Config OK: %s\n", cfgPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "Server config file path")
	return cmd
}

func newServePrintDefaultCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "print-default-config",
		Short: "Write or print a default server config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outPath != "" {
				if err := config.WriteDefaultServerConfig(outPath); err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "Wrote %s\n", outPath)
				return nil
			}
			tmp, err := os.CreateTemp("", "enipstate-*.yaml")
			if err != nil {
				return err
			}
			tmp.Close()
			defer os.Remove(tmp.Name())
			if err := config.WriteDefaultServerConfig(tmp.Name()); err != nil {
				return err
			}
			data, err := os.ReadFile(tmp.Name())
			if err != nil {
				return err
			}
			os.Stdout.Write(data)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "output", "", "Write config to this path instead of stdout")
	return cmd
}

func runServe(flags *serveFlags) error {
	var cfg *config.ServerConfig
	var err error
	if flags.configPath != "" {
		cfg, err = config.LoadServerConfig(flags.configPath)
		if err != nil {
			return err
		}
	} else {
		cfg = config.CreateDefaultServerConfig()
	}

	if flags.listenIP != "" {
		cfg.Server.ListenIP = flags.listenIP
	}
	if flags.listenPort != 0 {
		cfg.Server.TCPPort = flags.listenPort
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.logFile != "" {
		cfg.Logging.File = flags.logFile
	}
	if err := config.ValidateServerConfig(cfg); err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(level, cfg.Logging.File)
	if err != nil {
		return err
	}
	defer logger.Close()

	srv, err := server.NewServer(cfg, logger)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Received %s, shutting down", sig)

	return srv.Stop()
}
