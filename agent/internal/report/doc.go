// Package report renders a pipeline run into the Markdown text delivered to
// operators.
package report
