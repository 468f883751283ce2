// Package types contains the shared interfaces used across microdot's
// engine packages. Keeping them here avoids import cycles between the
// filesystem, store, and reconciliation layers.
package types
