// Package main is the command line entry point for gojukebox.
//
// gojukebox keeps per-song replacement audio ("variants"): it mirrors
// community catalogs, merges them with locally stored variants and
// downloads the chosen one.
//
// Build:
//
//	go build -o build/gojukebox ./cmd
//
// Run:
//
//	./build/gojukebox refresh
//	./build/gojukebox list 42
//	./build/gojukebox download 42 <unique-id>
package main

func main() {
	Execute()
}
