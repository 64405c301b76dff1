// Package app provides the application service layer.
//
// It orchestrates the use cases (account registration and validation,
// conversation change and read) between the HTTP handlers and the domain
// repositories, and converts domain failures into typed platform errors.
// It depends on domain interfaces, not concrete adapters.
package app
