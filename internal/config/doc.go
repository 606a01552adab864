// Package config holds CyberBuddy's runtime configuration: the backend
// endpoint, the page observer's discovery rules, the state store location
// and report preferences. Values come from defaults, then the .cyberbuddy
// YAML file, then command-line flags.
package config
