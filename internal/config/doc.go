// Package config loads and merges flsverify configuration from multiple sources.
//
// Precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (FLSVERIFY_ROOT, FLSVERIFY_STANDARD, FLSVERIFY_FORMAT, etc.)
//  3. Config file ($XDG_CONFIG_HOME/flsverify/config.json)
//  4. Built-in defaults
//
// Use [Load] to obtain a merged [Config], [Save] to write the config file,
// and [SetField] to update a single key.
package config
