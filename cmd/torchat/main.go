// Package main provides the CLI entry point for torchat.
package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"

	"torchat/internal/config"
	"torchat/internal/identity"
	"torchat/internal/logging"
	"torchat/internal/peer"
	"torchat/internal/peerevent"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time via ldflags.
	Version = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "torchat",
		Short: "torchat - anonymous two-party Tor chat",
		Long: `torchat is an anonymous two-party encrypted chat endpoint.

It reaches a peer over Tor via a local SOCKS5 proxy, or accepts a single
inbound connection as a hidden service, and speaks a framed,
end-to-end-encrypted binary protocol with forward secrecy per session.`,
		Version: Version,
	}

	rootCmd.AddCommand(listenCmd())
	rootCmd.AddCommand(connectCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the torchat version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(Version)
			return nil
		},
	}
}

func listenCmd() *cobra.Command {
	var configPath string
	var peerIDFlag string

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Accept an inbound chat connection",
		Long: `Bind a loopback port and wait for a single connector to complete the
handshake, then drop into a console chat loop. A fresh inbound connection
replaces any existing live session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
			peer.HandshakeTimeout = cfg.Timeouts.Handshake

			localID, err := resolvePeerID(peerIDFlag)
			if err != nil {
				return err
			}
			logger.Info("starting listener",
				logging.KeyPeerID, localID.ShortString(),
				logging.KeyComponent, "cmd.listen")
			logger.Debug("local identity", logging.KeyPeerID, localID.String(), logging.KeyComponent, "cmd.listen")

			ln, err := peer.Listen(cfg.Listen.Port, logger, consoleOnMessage)
			if err != nil {
				return fmt.Errorf("bind listener: %w", err)
			}
			defer ln.Stop()
			ln.Start()

			fmt.Printf("Listening on %s. Waiting for a peer...\n", ln.Addr())
			return consoleLoop(ln.Endpoint, logger)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (optional, defaults applied otherwise)")
	cmd.Flags().StringVar(&peerIDFlag, "peer-id", "", "Fixed local peer id as 32 hex chars (generated randomly if omitted)")
	return cmd
}

func connectCmd() *cobra.Command {
	var configPath string
	var onionAddr string
	var onionPort int
	var peerIDFlag string

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Dial a peer's hidden service through SOCKS5",
		Long: `Dial a .onion address through a local Tor SOCKS5 proxy, complete the
connector-role handshake, then drop into a console chat loop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
			peer.HandshakeTimeout = cfg.Timeouts.Handshake

			if onionAddr != "" {
				cfg.Remote.Address = onionAddr
			}
			if cmd.Flags().Changed("port") {
				cfg.Remote.Port = onionPort
			}
			if cfg.Remote.Address == "" {
				return fmt.Errorf("remote address is required: pass --onion or set remote.address in config")
			}

			localID, err := resolvePeerID(peerIDFlag)
			if err != nil {
				return err
			}
			logger.Info("dialing peer",
				logging.KeyPeerID, localID.ShortString(),
				logging.KeyAddress, cfg.Remote.Address,
				logging.KeyComponent, "cmd.connect")
			logger.Debug("local identity", logging.KeyPeerID, localID.String(), logging.KeyComponent, "cmd.connect")

			connector := peer.NewConnectorWithTimeout(cfg.SOCKS.ProxyHost, cfg.SOCKS.ProxyPort, cfg.Timeouts.SocksIO, logger, consoleOnMessage)
			defer connector.Stop()

			ctx := cmd.Context()
			if err := connector.Connect(ctx, cfg.Remote.Address, cfg.Remote.Port); err != nil {
				return fmt.Errorf("connect: %w", err)
			}

			fmt.Println("Connected. Start chatting.")
			return consoleLoop(connector.Endpoint, logger)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (optional, defaults applied otherwise)")
	cmd.Flags().StringVar(&onionAddr, "onion", "", "Peer's .onion address (overrides config)")
	cmd.Flags().IntVar(&onionPort, "port", 9999, "Peer's listening port (overrides config)")
	cmd.Flags().StringVar(&peerIDFlag, "peer-id", "", "Fixed local peer id as 32 hex chars (generated randomly if omitted)")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// resolvePeerID parses a user-supplied --peer-id so the same identity can
// be reused (and correlated in logs) across separate runs, or generates a
// fresh random one when the flag is omitted.
func resolvePeerID(flag string) (identity.PeerID, error) {
	if flag == "" {
		return identity.NewPeerID()
	}
	id, err := identity.ParsePeerID(flag)
	if err != nil {
		return identity.ZeroID, fmt.Errorf("parse --peer-id: %w", err)
	}
	return id, nil
}

// consoleOnMessage is the OnMessage callback handed to both roles: it
// prints delivered text to stdout, prefixed so it's distinguishable from
// local echo.
func consoleOnMessage(text string) {
	fmt.Printf("\rpeer> %s\n> ", text)
}

// consoleLoop reads lines from stdin and sends them as chat messages while
// draining the endpoint's event bus for connection status in the
// background, until stdin closes. A peer disconnect is printed but does
// not end the loop.
func consoleLoop(ep *peer.Endpoint, logger *slog.Logger) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ep.Events() {
			switch ev.Kind {
			case peerevent.KindPeerConnecting:
				fmt.Println("peer connecting...")
			case peerevent.KindPeerConnected:
				fmt.Println("peer connected.")
			case peerevent.KindPeerDisconnected:
				if ev.Err != nil {
					fmt.Printf("peer disconnected: %v\n", ev.Err)
				} else {
					fmt.Println("peer disconnected.")
				}
			case peerevent.KindTypingReceived:
				fmt.Println("peer is typing...")
			case peerevent.KindReadReceiptReceived:
				logger.Debug("read receipt received", logging.KeyComponent, "cmd.console")
			case peerevent.KindMessageReceived:
				// already delivered via consoleOnMessage
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			fmt.Print("> ")
			continue
		}
		if err := ep.SendMessage(line); err != nil {
			fmt.Printf("send failed: %v\n", err)
		}
		fmt.Print("> ")
	}

	ep.Stop()
	<-done
	return scanner.Err()
}
