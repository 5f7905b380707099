// Package config loads bankfinder settings from a YAML file and the
// environment.
//
// Settings are resolved in this order, later sources winning:
//
//  1. built-in defaults
//  2. the YAML file given with --config
//  3. BANKFINDER_* environment variables, optionally loaded from a .env file
//  4. command line flags that are explicitly set
package config
