// Package config loads, normalizes, and validates Backhaul configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// BACKHAUL_REMOTE_TOKEN. The Config type centralizes every knob the daemon and
// CLI need, from store/data directories to retry backoff tuning.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
