package domain

import (
	"fmt"
	"sort"
)

// Catalog is the validated set of dialogs and steps loaded at startup.
// It is never mutated after NewCatalog returns and is safe for concurrent reads.
type Catalog struct {
	dialogs map[string]*DialogDefinition
	steps   map[string]*StepDefinition
	order   []string
}

// NewCatalog validates the definitions and builds an immutable catalog.
// Every violation is reported as a *ConfigurationError.
func NewCatalog(dialogs []DialogDefinition, steps []StepDefinition) (*Catalog, error) {
	c := &Catalog{
		dialogs: make(map[string]*DialogDefinition, len(dialogs)),
		steps:   make(map[string]*StepDefinition, len(steps)),
	}

	for i := range steps {
		s := steps[i]
		if s.Name == "" {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("step #%d has no name", i)}
		}
		if _, dup := c.steps[s.Name]; dup {
			return nil, &ConfigurationError{Source: s.Name, Reason: "duplicate step name"}
		}
		var err error
		if s.Type, err = ParseValueType(string(s.Type)); err != nil {
			return nil, &ConfigurationError{Source: s.Name, Err: err}
		}
		if s.RunMode, err = ParseRunMode(string(s.RunMode)); err != nil {
			return nil, &ConfigurationError{Source: s.Name, Err: err}
		}
		c.steps[s.Name] = &s
	}

	for i := range dialogs {
		d := dialogs[i]
		if d.Name == "" {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("dialog #%d has no name", i)}
		}
		if _, dup := c.dialogs[d.Name]; dup {
			return nil, &ConfigurationError{Source: d.Name, Reason: "duplicate dialog name"}
		}
		if len(d.Steps) == 0 {
			return nil, &ConfigurationError{Source: d.Name, Reason: "dialog has no steps"}
		}
		mode, err := ParseRunMode(string(d.RunMode))
		if err != nil {
			return nil, &ConfigurationError{Source: d.Name, Err: err}
		}
		d.RunMode = mode
		for _, stepName := range d.Steps {
			if _, ok := c.steps[stepName]; !ok {
				return nil, &ConfigurationError{
					Source: d.Name,
					Reason: fmt.Sprintf("references unknown step %q", stepName),
				}
			}
		}
		d.Steps = append([]string(nil), d.Steps...)
		c.dialogs[d.Name] = &d
		c.order = append(c.order, d.Name)
	}
	sort.Strings(c.order)

	return c, nil
}

// Dialog returns the named dialog definition.
func (c *Catalog) Dialog(name string) (*DialogDefinition, bool) {
	d, ok := c.dialogs[name]
	return d, ok
}

// Step returns the named step definition.
func (c *Catalog) Step(name string) (*StepDefinition, bool) {
	s, ok := c.steps[name]
	return s, ok
}

// StepAt returns the step at index within the dialog, or false when out of range.
func (c *Catalog) StepAt(dialog *DialogDefinition, index int) (*StepDefinition, bool) {
	if index < 0 || index >= len(dialog.Steps) {
		return nil, false
	}
	return c.Step(dialog.Steps[index])
}

// DialogNames lists dialog names in lexical order.
func (c *Catalog) DialogNames() []string {
	return append([]string(nil), c.order...)
}

// Dialogs returns the dialogs in lexical name order.
func (c *Catalog) Dialogs() []*DialogDefinition {
	out := make([]*DialogDefinition, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.dialogs[name])
	}
	return out
}

// Steps returns every step in lexical name order.
func (c *Catalog) Steps() []*StepDefinition {
	names := make([]string, 0, len(c.steps))
	for name := range c.steps {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*StepDefinition, 0, len(names))
	for _, name := range names {
		out = append(out, c.steps[name])
	}
	return out
}

// TelemetryDefinitions returns every telemetry definition attached to any
// dialog or step, for upfront address validation.
func (c *Catalog) TelemetryDefinitions() map[string][]TelemetryDefinition {
	out := make(map[string][]TelemetryDefinition)
	for _, d := range c.Dialogs() {
		if len(d.Telemetry) > 0 {
			out["dialog:"+d.Name] = d.Telemetry
		}
	}
	for _, s := range c.Steps() {
		if len(s.Telemetry) > 0 {
			out["step:"+s.Name] = s.Telemetry
		}
	}
	return out
}
