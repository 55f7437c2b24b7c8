package types

import "encoding/json"

// Recognized capability names. Unknown names are accepted and ignored,
// matching the permissive parsing the original announcement format uses.
const (
	CapabilityProxyMessage               = "proxy-message"
	CapabilityAutonomousSynchronous      = "autonomous-synchronous"
	CapabilityRequestParticipantConnV2   = "request-participant-connection-v2"
)

type capabilityEntry struct {
	Name string `json:"name"`
}

// Capabilities is the set of capability strings carried in an
// announcement, wire-encoded as a JSON array of {"name": "..."} objects.
type Capabilities struct {
	set map[string]struct{}
}

// NewCapabilities builds a Capabilities set from the given names.
func NewCapabilities(names ...string) *Capabilities {
	c := &Capabilities{set: make(map[string]struct{}, len(names))}
	for _, n := range names {
		c.Add(n)
	}
	return c
}

// ParseCapabilities decodes the JSON-array-of-{"name":...} wire form. An
// empty string decodes to an empty set.
func ParseCapabilities(raw string) (*Capabilities, error) {
	c := &Capabilities{set: make(map[string]struct{})}
	if raw == "" {
		return c, nil
	}
	var entries []capabilityEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, NewFault(Protocol, "Capabilities.Parse", err)
	}
	for _, e := range entries {
		c.Add(e.Name)
	}
	return c, nil
}

func (c *Capabilities) Add(name string) {
	if name == "" {
		return
	}
	c.set[name] = struct{}{}
}

func (c *Capabilities) Has(name string) bool {
	if c == nil {
		return false
	}
	_, ok := c.set[name]
	return ok
}

func (c *Capabilities) HasProxyMessage() bool {
	return c.Has(CapabilityProxyMessage)
}

func (c *Capabilities) HasAutonomousSynchronous() bool {
	return c.Has(CapabilityAutonomousSynchronous)
}

// String renders the wire form: a JSON array of {"name": "..."} objects,
// or the empty string for an empty set.
func (c *Capabilities) String() string {
	if c == nil || len(c.set) == 0 {
		return ""
	}
	entries := make([]capabilityEntry, 0, len(c.set))
	for name := range c.set {
		entries = append(entries, capabilityEntry{Name: name})
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return ""
	}
	return string(data)
}
