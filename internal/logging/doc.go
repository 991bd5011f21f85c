// Package logging configures the global logrus logger for the CLI.
package logging
