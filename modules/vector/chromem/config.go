package chromem

import "fmt"

const defaultIndexDir = "index"

// Config holds the chromem index module configuration.
type Config struct {
	// Persist keeps the index on disk so it survives restarts. Defaults
	// to false; the index is rebuilt from scratch otherwise.
	Persist bool `yaml:"persist"`

	// Path is the on-disk index directory, used only when Persist is set.
	// Defaults to {DataDir}/index.
	Path string `yaml:"path"`

	// Compress gzips persisted documents.
	Compress bool `yaml:"compress"`
}

func (c *Config) persistent() bool {
	return c.Persist || c.Path != ""
}

func (c *Config) validate() error {
	if !c.persistent() && c.Compress {
		return fmt.Errorf("chromem: compress requires a persistent index")
	}
	return nil
}
