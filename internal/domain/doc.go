// Package domain defines the core domain types and interfaces.
//
// Files are concept-oriented (conversation.go, account.go, sentiment.go, errors.go)
// and hold shared types and cross-cutting interfaces. No implementation code, just contracts.
package domain
