package debounce

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

import (
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Payload formats accepted by ParseRules.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

var (
	ErrEmptyPayload  = errors.New("empty debounce configuration")
	ErrInvalidFormat = errors.New("unsupported debounce configuration format")
)

// ParseRules decodes a configuration payload into an ordered rule list.
// format is "json", "yaml" or empty to try JSON and then YAML.
//
// A payload that cannot be decoded at all is an error and yields no rules.
// A single bad element never fails the load: it is logged and kept as an
// inert rule so that rule positions match the payload.
func ParseRules(payload []byte, format string, log *zap.Logger) ([]*Rule, error) {
	if log == nil {
		log = zap.NewNop()
	}
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, ErrEmptyPayload
	}

	format = strings.ToLower(strings.TrimSpace(format))
	var (
		specs []RuleSpec
		errs  []error
		err   error
	)
	switch format {
	case FormatJSON:
		specs, errs, err = decodeJSON(trimmed)
	case FormatYAML:
		specs, errs, err = decodeYAML(trimmed)
	case "":
		if specs, errs, err = decodeJSON(trimmed); err != nil {
			specs, errs, err = decodeYAML(trimmed)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse debounce configuration: %w", err)
	}

	rules := make([]*Rule, 0, len(specs))
	for i, spec := range specs {
		if errs[i] != nil {
			log.Error("invalid debounce rule", zap.Int("index", i), zap.Error(errs[i]))
			rules = append(rules, &Rule{})
			continue
		}
		rule, err := NewRule(spec)
		if err != nil {
			log.Error("invalid debounce rule patterns", zap.Int("index", i), zap.Error(err))
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func decodeJSON(raw []byte) ([]RuleSpec, []error, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, nil, err
	}
	specs := make([]RuleSpec, len(elems))
	errs := make([]error, len(elems))
	for i, elem := range elems {
		errs[i] = json.Unmarshal(elem, &specs[i])
	}
	return specs, errs, nil
}

func decodeYAML(raw []byte) ([]RuleSpec, []error, error) {
	var nodes []yaml.Node
	if err := yaml.Unmarshal(raw, &nodes); err != nil {
		return nil, nil, err
	}
	specs := make([]RuleSpec, len(nodes))
	errs := make([]error, len(nodes))
	for i := range nodes {
		if nodes[i].Kind != yaml.MappingNode {
			errs[i] = fmt.Errorf("rule %d is not a mapping", i)
			continue
		}
		errs[i] = nodes[i].Decode(&specs[i])
	}
	return specs, errs, nil
}
