// Package model abstracts language model providers behind a minimal
// streaming Model interface. Workers and the supervisor depend only on this
// package; concrete adapters live in subpackages (openai, anthropic). A
// MockModel with scripted turns supports tests and examples.
package model
