// Package logger wraps zap with a global sugared logger and context helpers.
//
// The poll loop and every collaborator take a context and log through it, so
// component names and key-values set with WithName/WithKV follow the call.
package logger
