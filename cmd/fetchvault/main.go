// Package main is the entry point for FetchVault.
package main

func main() {
	Execute()
}
