// Package config handles configuration loading for keep.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from KEEP_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/keep/keep.yaml (or ~/.config/keep/keep.yaml)
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	tailscale:
//	  auth_key: "${TS_AUTHKEY}"
//
// # Configuration Sections
//
//	server:
//	  telnet_addr: "0.0.0.0:4000"     # line protocol, protected core service
//	  websocket_addr: "127.0.0.1:4001"
//	  health_addr: "127.0.0.1:4002"   # gRPC health
//
//	sessions:
//	  idle_timeout: "1h"
//	  reap_interval: "1m"
//
//	services:
//	  protected_prefixes: ["core-"]
//	  disabled: ["websocket"]
//
//	behaviors:
//	  path: "behaviors.toml"
//	  watch: true
//
// # Validation
//
// Load() applies defaults and then validates addresses, the database
// path, duration values and logging options.
package config
