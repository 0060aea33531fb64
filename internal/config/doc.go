// Package config loads the relay's YAML configuration.
//
// Values may reference the environment with ${VAR}; a .env file next to the
// process is loaded first when present. Durations use Go syntax ("3s").
package config
