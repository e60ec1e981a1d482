package providers

import "time"

// shutdownTimeout bounds graceful shutdown of each service handle.
const shutdownTimeout = 30 * time.Second
