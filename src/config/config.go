package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read from the current directory when no path is given.
const DefaultConfigFile = ".versions.toml"

// Format is the encoding of a configuration file.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FailurePolicy decides what a failed build does to the rest of the run.
type FailurePolicy string

const (
	// PolicyContinue records the failure and builds the next version.
	PolicyContinue FailurePolicy = "continue"
	// PolicyAbort stops the run at the first failed build.
	PolicyAbort FailurePolicy = "abort"
	// PolicyFail builds every version, then fails the run if any build failed.
	PolicyFail FailurePolicy = "fail"
)

// Config is the top-level verbuild configuration.
type Config struct {
	// Versions in the order they appear in the file.
	Versions []Version
	Settings Settings
}

// Version is a named revision to build.
type Version struct {
	Name string
	Ref  string
}

// VersionSpec is the body of a [versions.<name>] table.
type VersionSpec struct {
	// Ref is a branch, tag, or commit in the source repository.
	Ref string `toml:"ref" yaml:"ref"`
}

// Settings holds the [config] table.
type Settings struct {
	// OutputPath is removed and recreated on every run; each version
	// publishes into OutputPath/<name>.
	OutputPath string `toml:"output_path" yaml:"output_path"`

	// RepositoryURL is cloned (with submodules) into a temporary directory.
	RepositoryURL string `toml:"repository_url" yaml:"repository_url"`

	// OnBuildFailure is one of continue, abort, fail. Default: continue.
	OnBuildFailure FailurePolicy `toml:"on_build_failure" yaml:"on_build_failure"`

	// Jobs is the number of versions built at once. 1 builds sequentially
	// in a single shared working copy; more gives each version its own copy.
	Jobs int `toml:"jobs" yaml:"jobs"`

	// Clean removes untracked files after each reset. Default: true.
	Clean bool `toml:"clean" yaml:"clean"`

	// BuildTimeout bounds each toolchain invocation ("30m"). Empty means none.
	BuildTimeout string `toml:"build_timeout" yaml:"build_timeout"`

	Toolchain ToolchainConfig `toml:"toolchain" yaml:"toolchain"`
}

// Timeout parses BuildTimeout. Zero means no timeout.
func (s Settings) Timeout() (time.Duration, error) {
	if strings.TrimSpace(s.BuildTimeout) == "" {
		return 0, nil
	}
	return time.ParseDuration(s.BuildTimeout)
}

// document mirrors the on-disk layout. Table order is lost here and
// recovered separately by versionOrder.
type document struct {
	Versions map[string]VersionSpec `toml:"versions" yaml:"versions"`
	Config   Settings               `toml:"config" yaml:"config"`
}

// Load reads configuration from a file.
// If path is empty, it reads DefaultConfigFile. A missing file is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// FormatFor picks the decoder from the file extension. Anything that is not
// .yml or .yaml is TOML.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

// Parse decodes a configuration document. It does not validate it.
func Parse(data []byte, format Format) (*Config, error) {
	doc := document{Config: DefaultSettings()}

	var (
		order []string
		err   error
	)
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		order, err = yamlVersionOrder(data)
	default:
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		order, err = tomlVersionOrder(data)
	}
	if err != nil {
		return nil, fmt.Errorf("reading version order: %w", err)
	}

	return &Config{
		Versions: orderedVersions(doc.Versions, order),
		Settings: doc.Config,
	}, nil
}

// DefaultSettings returns the settings used for keys the file leaves out.
func DefaultSettings() Settings {
	return Settings{
		OnBuildFailure: PolicyContinue,
		Jobs:           1,
		Clean:          true,
		Toolchain:      DefaultToolchainConfig(),
	}
}

// Names returns the configured version names in order.
func (c *Config) Names() []string {
	names := make([]string, len(c.Versions))
	for i, v := range c.Versions {
		names[i] = v.Name
	}
	return names
}

// Lookup returns the version with the given name.
func (c *Config) Lookup(name string) (Version, bool) {
	for _, v := range c.Versions {
		if v.Name == name {
			return v, true
		}
	}
	return Version{}, false
}
