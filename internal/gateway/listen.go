// ABOUTME: Listener setup for plain TCP or a tsnet node on the tailnet
// ABOUTME: Transport services ask the gateway for listeners through listenFunc

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"
)

// listenFunc opens a listener for a transport service.
type listenFunc func(addr string) (net.Listener, error)

func (g *Gateway) listenTCP(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	return ln, nil
}

// listenTailnet listens on the tsnet node using only the port of addr.
func (g *Gateway) listenTailnet(addr string) (net.Listener, error) {
	port := tailnetPort(addr)
	ln, err := g.tsnetServer.Listen("tcp", ":"+port)
	if err != nil {
		return nil, fmt.Errorf("listening on tailscale port %s: %w", port, err)
	}
	return ln, nil
}

// tailnetPort extracts the port from addr, defaulting to 4000.
func tailnetPort(addr string) string {
	if addr == "" {
		return "4000"
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return "4000"
	}
	return port
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "keep", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscale brings up the tsnet node and routes every transport
// listener through it.
func (g *Gateway) setupTailscale(ctx context.Context) error {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return err
	}

	if g.config.Server.TelnetAddr != "" || g.config.Server.WebSocketAddr != "" {
		g.logger.Warn("server addresses keep only their port when tailscale is enabled",
			"telnet_addr", g.config.Server.TelnetAddr,
			"websocket_addr", g.config.Server.WebSocketAddr,
		)
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		g.tsnetServer = nil
		return fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	g.listen = g.listenTailnet
	return nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}
