//go:build !linux

package socket

// applyPlatformOptions is a no-op on platforms without specific optimizations.
func applyPlatformOptions(fd int, cfg *Config) {}

// QuickAck always reports false on platforms without TCP_QUICKACK.
func QuickAck(fd int) (bool, error) {
	return false, nil
}
