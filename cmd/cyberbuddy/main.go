// Package main provides the entry point for the CyberBuddy CLI.
//
// CyberBuddy classifies URLs as legitimate, suspicious or phishing through a
// classification backend. The CLI hosts the same three contexts the browser
// extension runs: the background scan broker, page observers and the
// control panel, all sharing one state store.
//
// Usage:
//
//	cyberbuddy scan <url>...
//	cyberbuddy observe <file|url>
//	cyberbuddy login --email <address>
//
// See --help for all available options.
package main

func main() {
	Execute()
}
