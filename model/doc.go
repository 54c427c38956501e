// Package model defines the provider-neutral generation contract plus shared
// request/response types. Concrete providers live in subpackages (openai,
// anthropic); a MockModel supports tests and offline runs.
package model
