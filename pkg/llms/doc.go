// Package llms defines the provider-neutral chat model: messages composed of
// text, tool-call and tool-response parts, call options, and the Model
// interface implemented by concrete backends.
package llms
