// Package config handles configuration loading for driftline.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	remote:
//	  jwt_secret: "${DRIFTLINE_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	remote:
//	  timeout: "30s"
//	sync:
//	  refresh_interval: "5m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Identity:
//
//	identity:
//	  owner_id: "user-42"   # Backend account this device syncs as
//
// Remote backend:
//
//	remote:
//	  base_url: "https://api.example.com"
//	  jwt_secret: "${DRIFTLINE_JWT_SECRET}"
//	  timeout: "15s"
//
// Local cache database:
//
//	database:
//	  path: "~/.local/share/driftline/cache.db"
//
// Credential vault:
//
//	vault:
//	  device_secret_path: ""   # defaults next to the database
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
