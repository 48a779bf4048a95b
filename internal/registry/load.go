package registry

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/sekia-ai/mailcmd/pkg/protocol"
)

// serviceFile is the on-disk layout of the services file.
type serviceFile struct {
	Services map[string]serviceRecord `yaml:"services"`
}

// serviceRecord is one flat YAML entry. Which fields apply depends on Type.
type serviceRecord struct {
	Type       string      `yaml:"type" validate:"required,oneof=function http shell database mqtt nats kafka"`
	Function   string      `yaml:"function"`
	URL        string      `yaml:"url" validate:"omitempty,url"`
	Method     string      `yaml:"method" validate:"omitempty,oneof=GET POST"`
	Command    string      `yaml:"command"`
	Query      string      `yaml:"query"`
	Topic      string      `yaml:"topic"`
	QoS        int         `yaml:"qos" validate:"gte=0,lte=2"`
	Retained   bool        `yaml:"retained"`
	Subject    string      `yaml:"subject"`
	Agent      string      `yaml:"agent" validate:"omitempty,excludesall=.*> "`
	Parameters []Parameter `yaml:"parameters" validate:"unique=Name,dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the services file at path. A missing file yields an error
// matching both ErrRegistryNotFound and fs.ErrNotExist.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s: %w", ErrRegistryNotFound, path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("read services file: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Parse decodes a services document. Unknown fields, duplicate action names
// and incomplete definitions are rejected.
func Parse(data []byte) (*Registry, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f serviceFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return Empty(), nil
		}
		// yaml.v3 reports repeated mapping keys as a decode error.
		if strings.Contains(err.Error(), "already defined") {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateAction, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidService, err)
	}

	services := make([]Service, 0, len(f.Services))
	for action, rec := range f.Services {
		svc, err := rec.toService(action)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return New(services...)
}

func (rec serviceRecord) toService(action string) (Service, error) {
	rec.Type = strings.ToLower(strings.TrimSpace(rec.Type))
	rec.Method = strings.ToUpper(strings.TrimSpace(rec.Method))

	if err := validate.Struct(rec); err != nil {
		return Service{}, fmt.Errorf("%w: %s: %v", ErrInvalidService, action, err)
	}

	svc := Service{Action: action, Parameters: rec.Parameters}
	missing := func(field string) (Service, error) {
		return Service{}, fmt.Errorf("%w: %s: %s service needs %q", ErrInvalidService, action, rec.Type, field)
	}

	switch Kind(rec.Type) {
	case KindFunction:
		if rec.Function == "" {
			return missing("function")
		}
		svc.Spec = FunctionSpec{Name: rec.Function}
	case KindHTTP:
		if rec.URL == "" {
			return missing("url")
		}
		method := rec.Method
		if method == "" {
			method = "GET"
		}
		svc.Spec = HTTPSpec{URL: rec.URL, Method: method}
	case KindShell:
		if strings.TrimSpace(rec.Command) == "" {
			return missing("command")
		}
		svc.Spec = ShellSpec{Command: rec.Command}
	case KindDatabase:
		if strings.TrimSpace(rec.Query) == "" {
			return missing("query")
		}
		svc.Spec = DatabaseSpec{Query: rec.Query}
	case KindMQTT:
		if rec.Topic == "" {
			return missing("topic")
		}
		svc.Spec = MQTTSpec{Topic: rec.Topic, QoS: byte(rec.QoS), Retained: rec.Retained}
	case KindNATS:
		switch {
		case rec.Subject != "":
			svc.Spec = NATSSpec{Subject: rec.Subject}
		case rec.Agent != "":
			svc.Spec = NATSSpec{Subject: protocol.SubjectCommands(rec.Agent)}
		default:
			return missing("subject")
		}
	case KindKafka:
		if rec.Topic == "" {
			return missing("topic")
		}
		svc.Spec = KafkaSpec{Topic: rec.Topic}
	}
	return svc, nil
}
