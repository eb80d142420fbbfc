package grpcclient

import "time"

// Defaults for Config fields left at zero.
const (
	DefaultPoolSize      = 10
	DefaultLockTimeout   = 60 * time.Second
	DefaultShutdownGrace = 5 * time.Second
)

// Config holds the per-client execution parameters.
type Config struct {
	// PoolSize bounds the number of operations running for one device.
	PoolSize int

	// LockTimeout bounds the wait for the request lock. Expiry is treated as
	// a likely deadlock and fails only the waiting operation.
	LockTimeout time.Duration

	// ShutdownGrace bounds how long Shutdown waits for running work.
	ShutdownGrace time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		PoolSize:      DefaultPoolSize,
		LockTimeout:   DefaultLockTimeout,
		ShutdownGrace: DefaultShutdownGrace,
	}
}

func (c Config) withDefaults() Config {
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = DefaultLockTimeout
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = DefaultShutdownGrace
	}
	return c
}
