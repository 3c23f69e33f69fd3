package config

// ToolchainConfig selects and parameterizes the external build toolchain.
//
// This is a discriminated union keyed by Kind; only fields relevant to the
// kind should be set. Kind-specific checks run when the toolchain is
// constructed.
type ToolchainConfig struct {
	// Kind is the toolchain type.
	// Supported: "dotnet", "command".
	Kind string `toml:"kind" yaml:"kind"`

	// ── kind: dotnet ──────────────────────────────────────────────────────

	// Binary overrides the executable. Default: "dotnet".
	Binary string `toml:"binary,omitempty" yaml:"binary,omitempty"`

	// Project is the project file, relative to the clone root.
	Project string `toml:"project,omitempty" yaml:"project,omitempty"`

	// Configuration is passed as -c. Default: "Release".
	Configuration string `toml:"configuration,omitempty" yaml:"configuration,omitempty"`

	// ── kind: command ─────────────────────────────────────────────────────

	// Command is the full argv. Supports {project}, {configuration},
	// {output}, {version} and {ref} placeholders.
	Command []string `toml:"command,omitempty" yaml:"command,omitempty"`

	// ── shared ────────────────────────────────────────────────────────────

	// Env adds variables to the toolchain's environment.
	Env map[string]string `toml:"env,omitempty" yaml:"env,omitempty"`
}

// DefaultToolchainConfig returns the dotnet publish toolchain.
func DefaultToolchainConfig() ToolchainConfig {
	return ToolchainConfig{
		Kind:          "dotnet",
		Binary:        "dotnet",
		Project:       "Lib9c/Lib9c.csproj",
		Configuration: "Release",
	}
}
