package dataconf

// Config represents a data configuration file (database.conf): a registry of
// named specs plus the shared [globalvars] section.
type Config struct {
	Path       string
	GlobalVars map[string]string
	Specs      []Spec
}

// Spec describes one data source and how it is obtained and stored.
type Spec struct {
	Name      string `yaml:"name" json:"name"`
	DataFiles string `yaml:"datafiles" json:"datafiles"`

	// Preprocessing. WriterStyle, StoreDir and ProcessorConfig only matter
	// when Preprocess is set.
	Preprocess      bool   `yaml:"preprocess" json:"preprocess"`
	WriterStyle     string `yaml:"writer_style,omitempty" json:"writer_style,omitempty"`
	StoreDir        string `yaml:"store_dir,omitempty" json:"store_dir,omitempty"`
	ProcessorConfig string `yaml:"processor_config,omitempty" json:"processor_config,omitempty"`

	// SegmentLengths lists segment lengths in frames; "full" keeps
	// utterances whole.
	SegmentLengths []string `yaml:"segment_lengths,omitempty" json:"segment_lengths,omitempty"`

	MetaInfo bool `yaml:"meta_info" json:"meta_info"`
	Optional bool `yaml:"optional" json:"optional"`

	// Dependency names another spec, or is empty for "None".
	Dependency string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`

	// MeanVarDir is the optional mean/variance normalisation directory.
	MeanVarDir string `yaml:"meanandvar_dir,omitempty" json:"meanandvar_dir,omitempty"`

	// Extra holds keys this loader does not interpret.
	Extra map[string]string `yaml:"extra,omitempty" json:"extra,omitempty"`
}

// Recognised keys of a spec section.
const (
	keyDataFiles       = "datafiles"
	keyPreprocess      = "preprocess"
	keyWriterStyle     = "writer_style"
	keyStoreDir        = "store_dir"
	keyProcessorConfig = "processor_config"
	keySegmentLengths  = "segment_lengths"
	keyMetaInfo        = "meta_info"
	keyOptional        = "optional"
	keyDependencies    = "dependencies"
	keyMeanVarDir      = "meanandvar_dir"
)

// GlobalVarsSection is the section holding values other sections refer to.
const GlobalVarsSection = "globalvars"

// FullSegment marks a segment length that keeps utterances whole.
const FullSegment = "full"

// Lookup returns the spec with the given name.
func (c *Config) Lookup(name string) (Spec, bool) {
	for _, s := range c.Specs {
		if s.Name == name {
			return s, true
		}
	}
	return Spec{}, false
}

// Names returns the spec names in file order.
func (c *Config) Names() []string {
	names := make([]string, len(c.Specs))
	for i, s := range c.Specs {
		names[i] = s.Name
	}
	return names
}

// Dependents returns the names of specs that depend on name, in file order.
func (c *Config) Dependents(name string) []string {
	var out []string
	for _, s := range c.Specs {
		if s.Dependency == name {
			out = append(out, s.Name)
		}
	}
	return out
}
