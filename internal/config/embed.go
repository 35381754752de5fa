package config

import (
	_ "embed"
)

// defaultYAML is the annotated starter file written by "fedflow config init".
// Its values mirror Default so initializing and then loading changes nothing.
//
//go:embed default_config.yaml
var defaultYAML []byte

// DefaultYAML returns a copy of the annotated starter configuration.
func DefaultYAML() []byte {
	return append([]byte(nil), defaultYAML...)
}
