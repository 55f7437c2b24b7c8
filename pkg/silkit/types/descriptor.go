package types

import "fmt"

// ServiceType distinguishes the kinds of services a participant can host.
type ServiceType uint8

const (
	ServiceController ServiceType = iota
	ServiceLink
	ServiceSimulatedNetwork
	ServiceInternal
)

func (s ServiceType) String() string {
	switch s {
	case ServiceController:
		return "controller"
	case ServiceLink:
		return "link"
	case ServiceSimulatedNetwork:
		return "simulated-network"
	case ServiceInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// ServiceDescriptor uniquely identifies a controller or endpoint. Two
// descriptors are equal when every field matches, including the
// supplemental-data map.
type ServiceDescriptor struct {
	ParticipantName string
	ServiceType     ServiceType
	NetworkName     string
	ServiceName     string
	ServiceID       uint16
	Supplements     map[string]string
}

// Equal reports whether two descriptors identify the same service.
func (d ServiceDescriptor) Equal(other ServiceDescriptor) bool {
	if d.ParticipantName != other.ParticipantName ||
		d.ServiceType != other.ServiceType ||
		d.NetworkName != other.NetworkName ||
		d.ServiceName != other.ServiceName ||
		d.ServiceID != other.ServiceID {
		return false
	}
	if len(d.Supplements) != len(other.Supplements) {
		return false
	}
	for k, v := range d.Supplements {
		if ov, ok := other.Supplements[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func (d ServiceDescriptor) String() string {
	return fmt.Sprintf("%s/%s/%s[%d]@%s", d.ParticipantName, d.NetworkName, d.ServiceName, d.ServiceID, d.ServiceType)
}

// Subscription expresses a subscriber's interest in services on a network:
// an exact network-name match, an exact media-type match when MediaType is
// non-empty (an empty MediaType matches any), plus a set of mandatory
// labels that must be present with an equal value in the publisher's
// supplemental data, and a set of optional labels that must match only
// when the publisher supplies a value for them.
type Subscription struct {
	NetworkName string
	MediaType   string
	Mandatory   map[string]string
	Optional    map[string]string
}

const mediaTypeKey = "media-type"

// Matches reports whether descriptor d satisfies subscription s.
func (s Subscription) Matches(d ServiceDescriptor) bool {
	if s.NetworkName != d.NetworkName {
		return false
	}
	if s.MediaType != "" && d.Supplements[mediaTypeKey] != s.MediaType {
		return false
	}
	for k, v := range s.Mandatory {
		if d.Supplements[k] != v {
			return false
		}
	}
	for k, v := range s.Optional {
		if pv, ok := d.Supplements[k]; ok && pv != v {
			return false
		}
	}
	return true
}
