// Package discovery keeps an address book of Thunder devices in etcd.
//
// Devices announce themselves, or are announced by provisioning tooling,
// under /<namespace>/devices/<name>. Entries registered with Register are
// bound to a lease and disappear when the registering process stops
// renewing it. Clients look a device up by name and turn the entry into a
// thunder.Config:
//
//	res, _ := discovery.NewEtcdResolver(discovery.Config{Endpoints: []string{"localhost:2379"}})
//	defer res.Close()
//
//	dev, err := res.Resolve(ctx, "living-room")
//	client, err := thunder.New(dev.Apply(thunder.Config{}))
package discovery

import (
	"errors"
	"time"

	"github.com/zero-day-ai/thunder"
)

// ErrNotFound is returned by Resolve when no entry exists for a device.
var ErrNotFound = errors.New("device not found")

// Device is the entry stored for one device.
type Device struct {
	// Name identifies the device within the namespace (e.g., "living-room")
	Name string `json:"name"`

	Host     string `json:"host"`
	Port     int    `json:"port,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Protocol string `json:"protocol,omitempty"`

	// Versions overrides plugin API versions for this device. The key
	// "default" applies to every plugin without its own entry.
	Versions map[string]int `json:"versions,omitempty"`

	// Metadata holds free-form attributes such as model or firmware
	Metadata map[string]string `json:"metadata,omitempty"`

	RegisteredAt time.Time `json:"registered_at"`
}

// Apply copies the device's connection settings onto base. Zero fields in
// the entry leave base untouched; version overrides are merged.
func (d Device) Apply(base thunder.Config) thunder.Config {
	if d.Host != "" {
		base.Host = d.Host
	}
	if d.Port != 0 {
		base.Port = d.Port
	}
	if d.Endpoint != "" {
		base.Endpoint = d.Endpoint
	}
	if d.Protocol != "" {
		base.Protocol = d.Protocol
	}
	if len(d.Versions) > 0 {
		merged := make(map[string]int, len(base.Versions)+len(d.Versions))
		for k, v := range base.Versions {
			merged[k] = v
		}
		for k, v := range d.Versions {
			merged[k] = v
		}
		base.Versions = merged
	}
	return base
}

// Config holds etcd connection configuration.
type Config struct {
	// Endpoints is the list of etcd endpoints
	Endpoints []string `json:"endpoints" yaml:"endpoints"`

	// Namespace is the key prefix for all entries. Default: "thunder"
	Namespace string `json:"namespace" yaml:"namespace"`

	// TTL is the lease time-to-live in seconds for registered devices.
	// Default: 30
	TTL int `json:"ttl" yaml:"ttl"`

	DialTimeout time.Duration `json:"dial_timeout" yaml:"dial_timeout"`

	TLS *TLSConfig `json:"tls" yaml:"tls"`
}

// TLSConfig holds TLS certificate configuration for the etcd connection.
type TLSConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	CertFile string `json:"cert_file" yaml:"cert_file"`
	KeyFile  string `json:"key_file" yaml:"key_file"`
	CAFile   string `json:"ca_file" yaml:"ca_file"`
}
