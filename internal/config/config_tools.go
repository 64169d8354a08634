package config

type ToolsConfig struct {
	Browser   BrowserConfig   `yaml:"browser"`
	WebSearch WebSearchConfig `yaml:"websearch"`
	WebFetch  WebFetchConfig  `yaml:"web_fetch"`
	Exec      ExecConfig      `yaml:"exec"`
}

type BrowserConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Headless bool   `yaml:"headless"`
	URL      string `yaml:"url"`
}

type WebSearchConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"`
	URL      string `yaml:"url"`
}

type WebFetchConfig struct {
	Enabled  bool `yaml:"enabled"`
	MaxChars int  `yaml:"max_chars"`
}

// ExecConfig controls the shell execution tool.
type ExecConfig struct {
	// RestrictToWorkspace refuses commands whose working directory resolves
	// outside the workspace.
	RestrictToWorkspace bool `yaml:"restrict_to_workspace"`
}
