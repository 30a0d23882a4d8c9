// Package rcl is the registry of the rcl_interfaces parameter services: the
// request kinds, their service names and ROS type identifiers, and the CDR
// request/reply messages exchanged for each.
package rcl

import (
	"fmt"
	"strings"
)

// Kind selects one of the parameter services.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindGetParameters
	KindGetParameterTypes
	KindSetParameters
	KindDescribeParameters
	KindListParameters
)

// TypeHashNotSupported is the rmw type hash placeholder used by peers that
// do not compute RIHS01 hashes.
const TypeHashNotSupported = "TypeHashNotSupported"

// ServiceType is the registry entry for one parameter service.
type ServiceType struct {
	Kind Kind
	// Service is the suffix appended to the node name, e.g. "get_parameters".
	Service string
	// TypeName is the DDS-mangled ROS type, e.g.
	// "rcl_interfaces::srv::dds_::GetParameters_".
	TypeName string
	Hash     string
}

var registry = [...]ServiceType{
	KindGetParameters: {
		Kind:     KindGetParameters,
		Service:  "get_parameters",
		TypeName: "rcl_interfaces::srv::dds_::GetParameters_",
		Hash:     TypeHashNotSupported,
	},
	KindGetParameterTypes: {
		Kind:     KindGetParameterTypes,
		Service:  "get_parameter_types",
		TypeName: "rcl_interfaces::srv::dds_::GetParameterTypes_",
		Hash:     TypeHashNotSupported,
	},
	KindSetParameters: {
		Kind:     KindSetParameters,
		Service:  "set_parameters",
		TypeName: "rcl_interfaces::srv::dds_::SetParameters_",
		Hash:     TypeHashNotSupported,
	},
	KindDescribeParameters: {
		Kind:     KindDescribeParameters,
		Service:  "describe_parameters",
		TypeName: "rcl_interfaces::srv::dds_::DescribeParameters_",
		Hash:     TypeHashNotSupported,
	},
	KindListParameters: {
		Kind:     KindListParameters,
		Service:  "list_parameters",
		TypeName: "rcl_interfaces::srv::dds_::ListParameters_",
		Hash:     TypeHashNotSupported,
	},
}

// Kinds lists every defined kind in registry order.
func Kinds() []Kind {
	return []Kind{
		KindGetParameters,
		KindGetParameterTypes,
		KindSetParameters,
		KindDescribeParameters,
		KindListParameters,
	}
}

func (k Kind) Valid() bool {
	return k > KindUnknown && int(k) < len(registry)
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return registry[k].Service
}

// Lookup returns the registry entry for k.
func Lookup(k Kind) (ServiceType, bool) {
	if !k.Valid() {
		return ServiceType{}, false
	}
	return registry[k], true
}

// ParseKind maps a service suffix ("set_parameters" or "~/set_parameters")
// back to its kind.
func ParseKind(service string) (Kind, error) {
	name := strings.TrimSpace(service)
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	for _, k := range Kinds() {
		if registry[k].Service == name {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("rcl: unknown parameter service %q", service)
}

// Registry is a copy of the service table with per-kind hash overrides.
type Registry struct {
	entries [len(registry)]ServiceType
}

// NewRegistry returns the default table. hashes maps a service suffix to
// the type hash advertised for it; unknown suffixes are an error and empty
// hashes keep the default.
func NewRegistry(hashes map[string]string) (*Registry, error) {
	r := &Registry{entries: registry}
	for service, hash := range hashes {
		k, err := ParseKind(service)
		if err != nil {
			return nil, err
		}
		if hash = strings.TrimSpace(hash); hash != "" {
			r.entries[k].Hash = hash
		}
	}
	return r, nil
}

// Lookup returns the entry for k with any hash override applied.
func (r *Registry) Lookup(k Kind) (ServiceType, bool) {
	if r == nil {
		return Lookup(k)
	}
	if !k.Valid() {
		return ServiceType{}, false
	}
	return r.entries[k], true
}
