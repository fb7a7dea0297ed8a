package plugin

import (
	"fmt"
)

// methodEntry represents a registered method with its descriptor and implementation.
type methodEntry struct {
	descriptor MethodDescriptor
	method     Method
}

// Config holds the configuration for building a plugin.
// Use NewConfig to create a new configuration, then use the setter methods
// to configure the plugin before calling New to build it.
type Config struct {
	name        string
	version     string
	description string
	methods     []methodEntry
}

// NewConfig creates a new plugin configuration with default values.
func NewConfig() *Config {
	return &Config{
		methods: make([]methodEntry, 0),
	}
}

// SetName sets the plugin name.
func (c *Config) SetName(name string) {
	c.name = name
}

// SetVersion sets the plugin version.
func (c *Config) SetVersion(version string) {
	c.version = version
}

// SetDescription sets the plugin description.
func (c *Config) SetDescription(desc string) {
	c.description = desc
}

// AddMethod adds a method to the plugin.
func (c *Config) AddMethod(name string, method Method) {
	c.AddMethodWithDesc(name, "", method)
}

// AddMethodWithDesc adds a method to the plugin together with a description.
func (c *Config) AddMethodWithDesc(name, description string, method Method) {
	c.methods = append(c.methods, methodEntry{
		descriptor: MethodDescriptor{
			Name:        name,
			Description: description,
		},
		method: method,
	})
}

// New creates a Plugin from the configuration.
// Returns an error if the configuration is invalid.
func New(cfg *Config) (*Plugin, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config cannot be nil", ErrInvalidPlugin)
	}

	if cfg.name == "" {
		return nil, fmt.Errorf("%w: plugin name is required", ErrInvalidPlugin)
	}

	if cfg.version == "" {
		return nil, fmt.Errorf("%w: plugin version is required", ErrInvalidPlugin)
	}

	methodMap := make(map[string]methodEntry, len(cfg.methods))
	for _, entry := range cfg.methods {
		if entry.descriptor.Name == "" {
			return nil, fmt.Errorf("%w: method name cannot be empty", ErrInvalidPlugin)
		}
		if entry.method == nil {
			return nil, fmt.Errorf("%w: method %s has no implementation", ErrInvalidPlugin, entry.descriptor.Name)
		}
		if _, exists := methodMap[entry.descriptor.Name]; exists {
			return nil, fmt.Errorf("%w: duplicate method name: %s", ErrInvalidPlugin, entry.descriptor.Name)
		}
		methodMap[entry.descriptor.Name] = entry
	}

	methods := make([]methodEntry, len(cfg.methods))
	copy(methods, cfg.methods)

	return &Plugin{
		name:        cfg.name,
		version:     cfg.version,
		description: cfg.description,
		methods:     methods,
		methodMap:   methodMap,
	}, nil
}

// Plugin is a Handler built from a Config. It carries descriptive metadata in
// addition to its methods.
type Plugin struct {
	name        string
	version     string
	description string
	methods     []methodEntry
	methodMap   map[string]methodEntry
}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return p.name
}

// Version returns the plugin version.
func (p *Plugin) Version() string {
	return p.version
}

// Description returns the plugin description.
func (p *Plugin) Description() string {
	return p.description
}

// Methods returns the method names in declaration order.
func (p *Plugin) Methods() []string {
	names := make([]string, 0, len(p.methods))
	for _, entry := range p.methods {
		names = append(names, entry.descriptor.Name)
	}
	return names
}

// Lookup returns the method registered under name.
func (p *Plugin) Lookup(name string) (Method, bool) {
	entry, ok := p.methodMap[name]
	if !ok {
		return nil, false
	}
	return entry.method, true
}

// Descriptor returns the plugin metadata.
func (p *Plugin) Descriptor() Descriptor {
	descriptors := make([]MethodDescriptor, 0, len(p.methods))
	for _, entry := range p.methods {
		descriptors = append(descriptors, entry.descriptor)
	}
	return Descriptor{
		Name:        p.name,
		Version:     p.version,
		Description: p.description,
		Methods:     descriptors,
	}
}
