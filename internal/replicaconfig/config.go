// Package replicaconfig holds the immutable replica-id-to-address map
// every replica in a deployment is started with, and the two lookups
// derived from it: which replica is primary for a view, and how many
// replicas make a quorum.
package replicaconfig

import "fmt"

// Config is the immutable N-element address table for a deployment.
// Replica ids are 0..N-1.
type Config struct {
	addresses []string
}

// New builds a Config from addresses, indexed by replica id.
func New(addresses []string) (*Config, error) {
	if len(addresses) == 0 {
		return nil, fmt.Errorf("replicaconfig: at least one replica address is required")
	}
	cfg := &Config{addresses: append([]string(nil), addresses...)}
	return cfg, nil
}

// N is the size of the deployment.
func (c *Config) N() int {
	return len(c.addresses)
}

// Address returns the address of replica id.
func (c *Config) Address(id uint64) (string, error) {
	if id >= uint64(len(c.addresses)) {
		return "", fmt.Errorf("replicaconfig: replica id %d out of range [0, %d)", id, len(c.addresses))
	}
	return c.addresses[id], nil
}

// PrimaryOf returns the replica id that is primary for view v: v mod N
// (§4.5, I4).
func (c *Config) PrimaryOf(view uint64) uint64 {
	return view % uint64(len(c.addresses))
}

// Quorum is the smallest majority of the deployment: floor(N/2) + 1.
func (c *Config) Quorum() int {
	return len(c.addresses)/2 + 1
}

// Others returns every replica id other than self.
func (c *Config) Others(self uint64) []uint64 {
	out := make([]uint64, 0, len(c.addresses)-1)
	for id := uint64(0); id < uint64(len(c.addresses)); id++ {
		if id != self {
			out = append(out, id)
		}
	}
	return out
}
