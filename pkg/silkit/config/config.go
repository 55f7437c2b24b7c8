// Package config parses and serializes the participant configuration
// document described in spec.md §6: a YAML-authored, JSON-interchanged
// document validated against a schema version, round-tripping exactly.
package config

import (
	"encoding/json"

	"gopkg.in/yaml.v2"

	"github.com/silkit-go/silkit/pkg/silkit/types"
)

// CurrentSchemaVersion is the schema version this build writes and the
// newest version it accepts.
const CurrentSchemaVersion = 1

// Middleware groups the peer-fabric-facing configuration keys.
type Middleware struct {
	RegistryURI         string   `yaml:"RegistryUri" json:"RegistryUri"`
	AcceptorURIs        []string `yaml:"AcceptorUris" json:"AcceptorUris"`
	ConnectAttempts     int      `yaml:"ConnectAttempts" json:"ConnectAttempts"`
	TcpNoDelay          bool     `yaml:"TcpNoDelay" json:"TcpNoDelay"`
	EnableDomainSockets bool     `yaml:"EnableDomainSockets" json:"EnableDomainSockets"`
}

// Logging is carried through for schema fidelity; sinks and formatting
// are an explicit Non-goal of the core and are not interpreted here.
type Logging struct {
	Sinks []string `yaml:"Sinks,omitempty" json:"Sinks,omitempty"`
}

// TimeSynchronization groups the §4.7 animation-factor knob.
type TimeSynchronization struct {
	AnimationFactor float64 `yaml:"AnimationFactor" json:"AnimationFactor"`
}

// Experimental groups configuration keys not yet stabilized.
type Experimental struct {
	TimeSynchronization TimeSynchronization `yaml:"TimeSynchronization" json:"TimeSynchronization"`
}

// Config is the internal form of the configuration document.
type Config struct {
	SchemaVersion   int          `yaml:"SchemaVersion" json:"SchemaVersion"`
	ParticipantName string       `yaml:"ParticipantName" json:"ParticipantName"`
	Middleware      Middleware   `yaml:"Middleware" json:"Middleware"`
	Logging         Logging      `yaml:"Logging,omitempty" json:"Logging,omitempty"`
	Experimental    Experimental `yaml:"Experimental,omitempty" json:"Experimental,omitempty"`
}

// Default returns a Config with the defaults the rest of the core assumes
// when a document omits a key: five connect attempts (§5 Timeouts), no
// domain sockets, Nagle left enabled, zero animation factor (no
// real-time pacing).
func Default(participantName string) Config {
	return Config{
		SchemaVersion:   CurrentSchemaVersion,
		ParticipantName: participantName,
		Middleware: Middleware{
			ConnectAttempts: 5,
		},
	}
}

// ParseYAML decodes a YAML configuration document. A document that omits
// SchemaVersion is treated as CurrentSchemaVersion rather than rejected.
func ParseYAML(data []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, types.NewFault(types.Configuration, "config.ParseYAML", err)
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// ParseJSON decodes a JSON configuration document. A document that omits
// SchemaVersion is treated as CurrentSchemaVersion rather than rejected.
func ParseJSON(data []byte) (Config, error) {
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, types.NewFault(types.Configuration, "config.ParseJSON", err)
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.SchemaVersion == 0 {
		c.SchemaVersion = CurrentSchemaVersion
	}
}

// MarshalYAML serializes c as YAML.
func (c Config) MarshalYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// MarshalJSONDocument serializes c as JSON. It is not named MarshalJSON to
// avoid colliding with the json.Marshaler interface, which would otherwise be
// invoked recursively by encoding/json.
func (c Config) MarshalJSONDocument() ([]byte, error) {
	return json.Marshal(c)
}

func (c Config) validate() error {
	if c.ParticipantName == "" {
		return types.NewFault(types.Configuration, "config.validate", errMissingParticipantName)
	}
	if c.SchemaVersion > CurrentSchemaVersion {
		return types.NewFault(types.Configuration, "config.validate", errUnsupportedSchemaVersion)
	}
	if c.Middleware.ConnectAttempts < 0 {
		return types.NewFault(types.Configuration, "config.validate", errNegativeConnectAttempts)
	}
	return nil
}
