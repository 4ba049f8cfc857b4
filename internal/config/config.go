// Package config loads the stream demo's series definitions.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/delaneyj/rekoil/aggregate"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("mode", func(fl validator.FieldLevel) bool {
		_, err := aggregate.ParseMode(fl.Field().String())
		return err == nil
	})
}

type Series struct {
	Name     string  `yaml:"name" validate:"required"`
	Capacity int     `yaml:"capacity" validate:"gte=0"`
	Mode     string  `yaml:"mode" validate:"mode"`
	Points   int     `yaml:"points" validate:"gte=0"`
	Rate     float64 `yaml:"rate" validate:"gte=0"`
	Seed     int64   `yaml:"seed"`
	Step     float64 `yaml:"step" validate:"gt=0"`
	Candles  bool    `yaml:"candles"`
}

// ParsedMode returns the validated mode.
func (s Series) ParsedMode() aggregate.Mode {
	m, _ := aggregate.ParseMode(s.Mode)
	return m
}

type Config struct {
	Series []Series `yaml:"series" validate:"required,min=1,dive"`
	// ShowHeaps prints the globals' heaps after the run.
	ShowHeaps bool `yaml:"show_heaps"`
}

var ErrDuplicateSeries = errors.New("config: duplicate series name")

func defaults() Series {
	return Series{Capacity: 100, Mode: aggregate.Global.String(), Points: 1000, Step: 1}
}

// seriesKeys holds the yaml keys a series accepts. Node.Decode does not
// inherit the decoder's KnownFields, so UnmarshalYAML checks them itself.
var seriesKeys = func() map[string]bool {
	keys := map[string]bool{}
	typ := reflect.TypeFor[Series]()
	for i := range typ.NumField() {
		if k, _, _ := strings.Cut(typ.Field(i).Tag.Get("yaml"), ","); k != "" {
			keys[k] = true
		}
	}
	return keys
}()

// UnmarshalYAML fills unset fields with defaults and rejects unknown keys.
func (s *Series) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.MappingNode {
		for i := 0; i < len(value.Content); i += 2 {
			if k := value.Content[i]; !seriesKeys[k.Value] {
				return fmt.Errorf("line %d: field %s not found in series", k.Line, k.Value)
			}
		}
	}
	type plain Series
	p := plain(defaults())
	if err := value.Decode(&p); err != nil {
		return err
	}
	*s = Series(p)
	return nil
}

func Parse(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("config: empty document")
		}
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(bytes.NewReader(b))
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	seen := make(map[string]struct{}, len(c.Series))
	for _, s := range c.Series {
		if _, ok := seen[s.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateSeries, s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}

// Default is used when no file is given.
func Default() *Config {
	a, b := defaults(), defaults()
	a.Name, a.Seed = "left", 1
	b.Name, b.Seed, b.Mode = "right", 2, aggregate.AlignEnd.String()
	b.Candles = true
	return &Config{Series: []Series{a, b}}
}
