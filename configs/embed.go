// Package configs embeds the starter configuration template so it ships
// inside the binary regardless of how ric was installed.
//
// `ric init` writes ConfigTemplate to ~/.config/ric/config.yaml (or a
// caller-chosen path). The template documents every key with its default;
// internal/config owns the actual defaulting and validation.
package configs

import _ "embed"

// ConfigTemplate is the annotated starter configuration.
//
//go:embed ric.yaml.example
var ConfigTemplate string
