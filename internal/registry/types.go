// Package registry holds the declarative service registry: which action maps
// to which handler kind, and which parameters it expects.
package registry

import "sort"

// Kind selects the execution strategy of a service.
type Kind string

const (
	KindFunction Kind = "function"
	KindHTTP     Kind = "http"
	KindShell    Kind = "shell"
	KindDatabase Kind = "database"
	KindMQTT     Kind = "mqtt"
	KindNATS     Kind = "nats"
	KindKafka    Kind = "kafka"
)

// AllKinds returns every supported kind.
func AllKinds() []Kind {
	return []Kind{KindFunction, KindHTTP, KindShell, KindDatabase, KindMQTT, KindNATS, KindKafka}
}

// Parameter is one entry of a service's parameter schema.
type Parameter struct {
	Name     string `yaml:"name" validate:"required"`
	Required bool   `yaml:"required"`
}

// Spec is the kind-specific part of a service. Exactly one implementation
// exists per Kind.
type Spec interface {
	Kind() Kind
}

// FunctionSpec calls a device action compiled into the binary.
type FunctionSpec struct {
	Name string
}

// HTTPSpec calls a URL with GET (query string) or POST (JSON body).
type HTTPSpec struct {
	URL    string
	Method string
}

// ShellSpec runs an allow-listed command with parameter values appended.
type ShellSpec struct {
	Command string
}

// DatabaseSpec executes a parameterized statement.
type DatabaseSpec struct {
	Query string
}

// MQTTSpec publishes the parameters as JSON to a broker topic.
type MQTTSpec struct {
	Topic    string
	QoS      byte
	Retained bool
}

// NATSSpec publishes a signed command envelope on a NATS subject.
type NATSSpec struct {
	Subject string
}

// KafkaSpec writes the parameters as JSON to a Kafka topic.
type KafkaSpec struct {
	Topic string
}

func (FunctionSpec) Kind() Kind { return KindFunction }
func (HTTPSpec) Kind() Kind     { return KindHTTP }
func (ShellSpec) Kind() Kind    { return KindShell }
func (DatabaseSpec) Kind() Kind { return KindDatabase }
func (MQTTSpec) Kind() Kind     { return KindMQTT }
func (NATSSpec) Kind() Kind     { return KindNATS }
func (KafkaSpec) Kind() Kind    { return KindKafka }

// Service is one registry entry.
type Service struct {
	Action     string
	Parameters []Parameter
	Spec       Spec
}

// Kind returns the kind of the service's spec.
func (s Service) Kind() Kind {
	if s.Spec == nil {
		return ""
	}
	return s.Spec.Kind()
}

// Required returns the names of the required parameters in schema order.
func (s Service) Required() []string {
	var names []string
	for _, p := range s.Parameters {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}

// MissingParams returns the required parameters absent from params, sorted.
func (s Service) MissingParams(params map[string]any) []string {
	var missing []string
	for _, name := range s.Required() {
		if _, ok := params[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// OrderedValues returns parameter values in schema order followed by any
// extra keys in sorted order.
func (s Service) OrderedValues(params map[string]any) []any {
	values := make([]any, 0, len(params))
	seen := make(map[string]bool, len(s.Parameters))
	for _, p := range s.Parameters {
		seen[p.Name] = true
		if v, ok := params[p.Name]; ok {
			values = append(values, v)
		}
	}
	extra := make([]string, 0, len(params))
	for k := range params {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		values = append(values, params[k])
	}
	return values
}
