package config

import "errors"

// Sentinel errors returned by the loader.
var (
	ErrConfigNotFound = errors.New("configuration file not found")
	ErrInvalidYAML    = errors.New("invalid YAML syntax")
	ErrInvalidOption  = errors.New("invalid option")
)
