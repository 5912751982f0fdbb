// Package file provides file-based configuration for the storage layer.
//
// Adapters:
//   - Load/Save: TOML configuration overlaid on the built-in defaults
//   - SettingsStore: index settings documents with embedded fallbacks
package file
