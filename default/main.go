// Package defaults provides embedded default assets (system prompt and config).
package defaults

import _ "embed"

//go:embed system_prompt.md
var SystemPrompt string

//go:embed default_config.toml
var DefaultConfigTOML string
