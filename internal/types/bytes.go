// Package types holds small value types shared across preheat's
// components (byte counts, and the wire-format version pair).
package types

import "fmt"

// Bytes is a uint64 wrapper representing a size in bytes. The stats
// dump converts the preloaded-byte total and each Exe's size to it to
// render human-readable sizes; the model itself keeps sizes as int64.
type Bytes uint64

// ToBytes converts a raw uint64 byte count.
func ToBytes(n uint64) Bytes { return Bytes(n) }

// Humanized returns a human-readable string with automatic unit.
func (b Bytes) Humanized() string {
	const unit = 1024
	v := float64(b)
	switch {
	case b >= 1<<40:
		return fmt.Sprintf("%.2f TB", v/(1<<40))
	case b >= 1<<30:
		return fmt.Sprintf("%.2f GB", v/(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.2f MB", v/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.2f KB", v/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// KB returns the value in kilobytes (1024 base).
func (b Bytes) KB() float64 { return float64(b) / 1024 }

// MB returns the value in megabytes (1024 base).
func (b Bytes) MB() float64 { return float64(b) / (1024 * 1024) }

// ToUint64 returns the raw byte count.
func (b Bytes) ToUint64() uint64 { return uint64(b) }
