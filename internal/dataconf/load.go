package dataconf

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/nabu-speech/nabu-ctl/internal/tfrecord"
)

// Keys are case-insensitive and inline '#' is part of the value, matching
// the Python configparser files this format comes from.
var loadOptions = ini.LoadOptions{
	InsensitiveKeys:            true,
	IgnoreInlineComment:        true,
	AllowPythonMultilineValues: true,
}

// strictOptions loads a single file with repeats kept apart, so a section or
// key given twice can be reported instead of silently combined.
var strictOptions = func() ini.LoadOptions {
	o := loadOptions
	o.AllowNonUniqueSections = true
	o.AllowShadows = true
	return o
}()

// Load reads, resolves and validates a data configuration file. Overlay files
// are applied in order on top of path; a key set in an overlay replaces the
// same key of the same section. Within one file a section or key may appear
// only once.
func Load(path string, overlays ...string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading data config %s: %w", path, err)
	}

	others := make([]interface{}, 0, len(overlays))
	for _, o := range overlays {
		od, err := os.ReadFile(o)
		if err != nil {
			return nil, fmt.Errorf("reading data config overlay %s: %w", o, err)
		}
		if err := checkRepeats(od); err != nil {
			return nil, fmt.Errorf("parsing data config overlay %s: %w", o, err)
		}
		others = append(others, od)
	}

	cfg, err := parse(data, others)
	if err != nil {
		return nil, fmt.Errorf("parsing data config %s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// Parse parses and validates data configuration content.
func Parse(data []byte) (*Config, error) {
	return parse(data, nil)
}

func parse(data []byte, overlays []interface{}) (*Config, error) {
	if err := checkRepeats(data); err != nil {
		return nil, err
	}

	f, err := ini.LoadSources(loadOptions, data, overlays...)
	if err != nil {
		return nil, err
	}

	cfg := &Config{GlobalVars: map[string]string{}}
	if gv, err := f.GetSection(GlobalVarsSection); err == nil {
		cfg.GlobalVars = sectionValues(gv)
	}

	var defaults map[string]string
	if def, err := f.GetSection(ini.DefaultSection); err == nil {
		defaults = sectionValues(def)
	}

	var errs []string
	for _, sec := range f.Sections() {
		name := sec.Name()
		if name == ini.DefaultSection || name == GlobalVarsSection {
			continue
		}

		values := make(map[string]string, len(defaults))
		for k, v := range defaults {
			values[k] = v
		}
		for k, v := range sectionValues(sec) {
			values[k] = v
		}

		spec, specErrs := decodeSpec(name, values, cfg.GlobalVars)
		errs = append(errs, specErrs...)
		cfg.Specs = append(cfg.Specs, spec)
	}

	errs = append(errs, Validate(cfg)...)
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return cfg, nil
}

// checkRepeats rejects a section header or a key within a section that
// appears more than once in data. A key repeated with the same value is
// harmless and passes.
func checkRepeats(data []byte) error {
	f, err := ini.LoadSources(strictOptions, data)
	if err != nil {
		return err
	}

	var errs []string
	seen := make(map[string]bool)
	reported := make(map[string]bool)
	for _, sec := range f.Sections() {
		name := sec.Name()
		// The parser opens an implicit DEFAULT section of its own.
		if name != ini.DefaultSection {
			if seen[name] && !reported[name] {
				errs = append(errs, fmt.Sprintf("section [%s] appears more than once", name))
				reported[name] = true
			}
			seen[name] = true
		}
		for _, k := range sec.Keys() {
			if len(k.ValueWithShadows()) > 1 {
				errs = append(errs, fmt.Sprintf("section [%s]: key '%s' appears more than once", name, k.Name()))
			}
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func sectionValues(sec *ini.Section) map[string]string {
	out := make(map[string]string)
	for _, k := range sec.Keys() {
		out[k.Name()] = strings.TrimSpace(k.String())
	}
	return out
}

// decodeSpec converts the raw key/value pairs of one section into a Spec,
// resolving globalvars references along the way.
func decodeSpec(name string, values, globals map[string]string) (Spec, []string) {
	prefix := fmt.Sprintf("spec '%s'", name)
	spec := Spec{Name: name}
	var errs []string

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value, err := ResolveValue(key, values[key], globals)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %s", prefix, err))
			continue
		}

		switch key {
		case keyDataFiles:
			spec.DataFiles = value
		case keyWriterStyle:
			spec.WriterStyle = value
		case keyStoreDir:
			spec.StoreDir = value
		case keyProcessorConfig:
			spec.ProcessorConfig = value
		case keyMeanVarDir:
			spec.MeanVarDir = value
		case keySegmentLengths:
			spec.SegmentLengths = strings.Fields(value)
		case keyPreprocess, keyMetaInfo, keyOptional:
			b, err := ParseBool(value)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: '%s' %s", prefix, key, err))
				continue
			}
			switch key {
			case keyPreprocess:
				spec.Preprocess = b
			case keyMetaInfo:
				spec.MetaInfo = b
			case keyOptional:
				spec.Optional = b
			}
		case keyDependencies:
			dep, err := parseDependency(value)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %s", prefix, err))
				continue
			}
			spec.Dependency = dep
		default:
			if spec.Extra == nil {
				spec.Extra = make(map[string]string)
			}
			spec.Extra[key] = value
		}
	}

	return spec, errs
}

// ResolveValue resolves a globalvars reference. The bare value "globalvars"
// refers to the key of the same name in [globalvars]; "globalvars.<key>"
// refers to <key>. Any other value is returned unchanged.
func ResolveValue(key, value string, globals map[string]string) (string, error) {
	ref := ""
	switch {
	case value == GlobalVarsSection:
		ref = key
	case strings.HasPrefix(value, GlobalVarsSection+"."):
		ref = strings.TrimPrefix(value, GlobalVarsSection+".")
	default:
		return value, nil
	}

	v, ok := globals[strings.ToLower(ref)]
	if !ok {
		return "", fmt.Errorf("'%s' refers to globalvars but [%s] has no key '%s'", key, GlobalVarsSection, ref)
	}
	return v, nil
}

// ParseBool accepts the boolean spellings of Python's configparser.
func ParseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "1", "yes", "true", "on":
		return true, nil
	case "0", "no", "false", "off":
		return false, nil
	}
	return false, fmt.Errorf("is not a boolean: %s", strconv.Quote(value))
}

func parseDependency(value string) (string, error) {
	fields := strings.Fields(strings.ReplaceAll(value, ",", " "))
	switch len(fields) {
	case 0:
		return "", nil
	case 1:
		if fields[0] == "None" || fields[0] == "none" {
			return "", nil
		}
		return fields[0], nil
	}
	return "", fmt.Errorf("'%s' names %d specs (%s) — at most one dependency is supported", keyDependencies, len(fields), strings.Join(fields, ", "))
}

// ValidationError holds multiple validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("data config validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Validate checks a Config for semantic correctness.
// Returns a list of validation error messages (empty if valid).
func Validate(cfg *Config) []string {
	var errs []string

	if len(cfg.Specs) == 0 {
		errs = append(errs, "at least one spec is required")
	}

	names := make(map[string]bool, len(cfg.Specs))
	for _, s := range cfg.Specs {
		if s.Name != "" {
			names[s.Name] = true
		}
	}

	seen := make(map[string]bool, len(cfg.Specs))
	for i, s := range cfg.Specs {
		prefix := fmt.Sprintf("spec[%d]", i)
		if s.Name != "" {
			prefix = fmt.Sprintf("spec '%s'", s.Name)
		}

		switch {
		case s.Name == "":
			errs = append(errs, fmt.Sprintf("%s: 'name' is required", prefix))
		case strings.EqualFold(s.Name, GlobalVarsSection):
			errs = append(errs, fmt.Sprintf("%s: '%s' is reserved for shared values", prefix, GlobalVarsSection))
		case seen[s.Name]:
			errs = append(errs, fmt.Sprintf("%s: duplicate spec name '%s'", prefix, s.Name))
		default:
			seen[s.Name] = true
		}

		if s.DataFiles == "" {
			errs = append(errs, fmt.Sprintf("%s: '%s' is required — point it at the .scp manifest listing the raw files", prefix, keyDataFiles))
		}

		if s.Preprocess {
			if s.WriterStyle == "" {
				errs = append(errs, fmt.Sprintf("%s: preprocess requires '%s' — must be one of: %s", prefix, keyWriterStyle, strings.Join(tfrecord.Styles(), ", ")))
			} else if _, err := tfrecord.Lookup(s.WriterStyle); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %s", prefix, err))
			}
			if s.StoreDir == "" {
				errs = append(errs, fmt.Sprintf("%s: preprocess requires '%s'", prefix, keyStoreDir))
			}
			if s.ProcessorConfig == "" {
				errs = append(errs, fmt.Sprintf("%s: preprocess requires '%s'", prefix, keyProcessorConfig))
			}
		}

		for _, seg := range s.SegmentLengths {
			if seg == FullSegment {
				continue
			}
			if n, err := strconv.Atoi(seg); err != nil || n <= 0 {
				errs = append(errs, fmt.Sprintf("%s: invalid segment length '%s' — must be a positive integer or '%s'", prefix, seg, FullSegment))
			}
		}

		switch {
		case s.Dependency == "":
		case s.Dependency == s.Name:
			errs = append(errs, fmt.Sprintf("%s: depends on itself", prefix))
		case !names[s.Dependency]:
			errs = append(errs, fmt.Sprintf("%s: depends on undefined spec '%s'", prefix, s.Dependency))
		}
	}

	if _, err := walk(cfg.Specs, false); err != nil {
		var cycle *CycleError
		if errors.As(err, &cycle) && len(cycle.Path) > 2 {
			errs = append(errs, err.Error())
		}
	}

	return errs
}
