// Package atomicfile replaces small state files so that readers only ever see
// a complete old or complete new document.
package atomicfile
