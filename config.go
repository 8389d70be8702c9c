package vigil

import "time"

// Config holds configuration for the failure-detection runtime.
type Config struct {
	// HeartbeatInterval is the fixed wall-clock interval at which the
	// heartbeat monitor evaluates node liveness.
	HeartbeatInterval time.Duration

	// HeartbeatMissThreshold is the number of consecutive missed
	// heartbeat intervals after which a node is declared dead.
	HeartbeatMissThreshold int

	// CapacityCheckInterval is how often the feasibility checker
	// re-evaluates pending resource demands against the cluster.
	CapacityCheckInterval time.Duration

	// WarnPayloadSize is the serialized payload size in bytes above which
	// an oversized-payload warning is recorded. Zero disables the check.
	WarnPayloadSize int

	// WorkerPoolFactor is the multiple of cluster execution slots beyond
	// which worker-pool-pressure warnings begin.
	WorkerPoolFactor int

	// WaitPollInterval is the re-query interval used by the blocking
	// error-count wait primitive.
	WaitPollInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:      100 * time.Millisecond,
		HeartbeatMissThreshold: 40,
		CapacityCheckInterval:  250 * time.Millisecond,
		WarnPayloadSize:        1 << 20, // 1 MiB
		WorkerPoolFactor:       3,
		WaitPollInterval:       50 * time.Millisecond,
		ShutdownTimeout:        30 * time.Second,
	}
}
