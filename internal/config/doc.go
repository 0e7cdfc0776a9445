// Package config loads, normalizes, and validates bookloom configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads .env files, and honours environment
// fallbacks such as BOOKLOOM_API_KEY and DATABASE_URL. The Config type
// centralizes every knob the worker daemon and CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
