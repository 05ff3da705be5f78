// Package logger provides structured logging for restkit using zerolog.
//
// It supports JSON and console output formats, log level configuration,
// component-scoped loggers and log fields carried in a context.Context.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.Get("restclient")
//	log.Info("request sent", logger.Fields("method", "GET", "uri", uri))
package logger
