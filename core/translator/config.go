package translator

import (
	"bufio"
	"fmt"
	"os"
	"reflect"
	"unicode"

	"github.com/e2m-lab/e2m/core/flow"
	"github.com/naoina/toml"
	"github.com/pkg/errors"
)

// Config holds the translator settings.
type Config struct {
	MaxDepth  int  // open branch frames during flow recovery
	MaxSteps  int  // simulated blocks per flow recovery attempt
	CacheSize int  // analysed contracts kept, keyed by code hash
	Optimize  bool // run dead variable elimination on every function
	Workers   int  // batch translation workers, the CPU count when zero
	Debug     bool `toml:",omitempty"`
}

// DefaultConfig contains the default settings.
var DefaultConfig = Config{
	MaxDepth:  flow.DefaultMaxDepth,
	MaxSteps:  flow.DefaultMaxSteps,
	CacheSize: 64,
	Optimize:  true,
}

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// LoadConfig decodes a TOML file over cfg. Fields the file does not
// mention keep their current values.
func LoadConfig(file string, cfg *Config) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// Marshal renders the config as TOML.
func (c Config) Marshal() ([]byte, error) {
	return tomlSettings.Marshal(&c)
}

func (c Config) flowOptions() flow.Options {
	return flow.Options{MaxDepth: c.MaxDepth, MaxSteps: c.MaxSteps}
}
