package watcher

import "time"

// Options configures watcher behavior.
type Options struct {
	// Extensions is the allow-list of file extensions (lowercase, no dot).
	// Empty accepts every non-ignored file.
	Extensions []string

	// IgnorePatterns are glob patterns matched against the base name.
	IgnorePatterns []string

	// SettleDelay is how long a file must go without writes before it is
	// considered fully arrived. Copies over a slow network write in
	// bursts, so this should be generous.
	SettleDelay time.Duration
}

// setDefaults applies default values to unset options.
func (o *Options) setDefaults() {
	if o.SettleDelay <= 0 {
		o.SettleDelay = 2 * time.Second
	}
	if o.IgnorePatterns == nil {
		o.IgnorePatterns = []string{
			"*.tmp",
			"*.temp",
			"*.part",
			"*.crdownload",
			".DS_Store",
			"Thumbs.db",
		}
	}
}
