// Package mirror implements one-way convergence of a replica directory tree onto a source tree.
//
// A Walker visits every directory level of the source. At each level a Reconciler removes
// replica entries with no source counterpart and then creates or replaces replica files whose
// content fingerprint differs from the source. Every mutation is handed to a Recorder, and every
// failure is scoped to the entry it happened on and collected in the PassReport.
package mirror
