// Package config provides configuration management for onionctl.
//
// Configuration is layered the same way for every command:
//
//  1. Default Configuration (embedded in binary)
//     - Control port on 127.0.0.1:9051, the four built-in transports, the tor and
//       circuits log sources plus the debug-only auxiliary logs
//
//  2. User Configuration (~/.config/onionctl/config.yaml)
//
//  3. Project Configuration (./.onionctl/config.yaml)
//
// A single file passed with --config replaces layers 2 and 3.
//
// # Configuration Structure
//
//	control:
//	  address: "127.0.0.1:9051"
//	  cookiePath: "/run/tor/control.authcookie"
//	  timeout: 10s
//	  bootstrapTimeout: 3m
//
//	storage:
//	  bridgeConfigPath: "~/.config/onionctl/bridges.yaml"
//
//	transports:
//	  - kind: "obfs4"
//	    displayName: "Built-in obfs4"
//	    sortKey: 1
//	    pluginLine: "obfs4 exec /usr/bin/obfs4proxy"
//	    builtinBridges:
//	      - "obfs4 192.0.2.10:443 <fingerprint> cert=<cert> iat-mode=0"
//
//	logs:
//	  - name: "tor"
//	    kind: "file"
//	    path: "/var/log/tor/notices.log"
//	  - name: "circuits"
//	    kind: "circuits"
//
//	extendedLogging: true   # also list sources marked debug: true
//
//	api:
//	  enabled: true
//	  port: 8095
//
// Transports and log sources merge by kind/name: an overlay entry replaces the base entry
// with the same key and new keys are appended. The persisted bridge selection is not part
// of this file; it lives in its own blob managed by the bridges package.
package config
