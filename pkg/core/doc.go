// Package core defines the shared language of grumpy.
//
// This package contains:
//   - Severity levels and their parsing
//   - Finding, the single value every analysis stage produces
//   - Tone, the render-time phrasing profile
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
