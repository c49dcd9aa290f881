// Package config handles configuration loading for para-sync.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. Anything the file leaves out keeps the value from Defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${PARA_JWT_SECRET}"
//
// # Configuration Sections
//
// Remote store:
//
//	database:
//	  path: "/var/lib/para/para.db"
//
// Sync layer:
//
//	sync:
//	  load_timeout: "30s"
//	  mutation_timeout: "15s"
//	  resubscribe_initial: "250ms"
//	  resubscribe_max: "30s"
//	  reload_on_reconnect: true
//	  echo_suppressed: false   # must match the remote store
//	  queue_size: 256          # per collection
//	  dedupe_ttl: "5m"
//	  dedupe_size: 10000
//
// Logging and metrics:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//	metrics:
//	  enabled: true
//	  addr: "127.0.0.1:9464"
//	  path: "/metrics"
//
// The same keys work in TOML when the file name ends in .toml.
package config
