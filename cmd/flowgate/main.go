// Package main is the entry point for flowgate.
package main

func main() {
	Execute()
}
