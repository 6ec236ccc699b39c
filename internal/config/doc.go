// Package config loads, normalizes, and validates audiopipe configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// AUDIOPIPE_S3_ACCESS_KEY. The Config type centralizes the knobs the stage
// cache and CLI need: manifest naming, fingerprint chunk size, the secret
// fields redacted from stage configurations, and object-store credentials.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
