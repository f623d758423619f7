// Package config defines the configuration surface of a hearsay node and
// methods to work with it.
package config
