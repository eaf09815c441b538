// Package config provides configuration loading, merging, and path management
// for a lace instance.
//
// # Configuration Loading
//
// Load merges configuration from three sources in priority order:
//
//  1. Global config (~/.config/lace/lace.json or lace.jsonc)
//  2. Project config (<directory>/.lace/lace.json or lace.jsonc)
//  3. Environment variables
//
// Later sources override earlier ones field by field; maps (providers,
// agents) are merged key by key rather than replaced wholesale.
//
// # Supported Formats
//
// Both JSON and JSONC (JSON with comments) are accepted; JSONC files are
// normalized with tidwall/jsonc before unmarshaling.
//
// # Path Management
//
// Paths follows the XDG Base Directory Specification:
//   - Data: ~/.local/share/lace (XDG_DATA_HOME)
//   - Config: ~/.config/lace (XDG_CONFIG_HOME)
//   - Cache: ~/.cache/lace (XDG_CACHE_HOME)
//   - State: ~/.local/state/lace (XDG_STATE_HOME)
//
// On Windows these fall back to APPDATA.
//
// # Environment Variable Overrides
//
//   - LACE_MODEL - overrides the default model
//   - LACE_SMALL_MODEL - overrides the small model
//   - ANTHROPIC_API_KEY / OPENAI_API_KEY / GOOGLE_API_KEY / AWS_ACCESS_KEY_ID -
//     fill in a provider's API key when the config file doesn't already set one
//
// # Usage Example
//
//	cfg, err := config.Load(workDir)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	paths := config.GetPaths()
//	if err := paths.EnsurePaths(); err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := config.Save(cfg, config.GlobalConfigPath()); err != nil {
//	    log.Fatal(err)
//	}
package config
