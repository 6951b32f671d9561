// Package main is the entry point for the classdeploy CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/nafnafnaf59/Arduino-Gestion-Classe/cmd/classdeploy/cmd"
)

func main() {
	// A missing .env is fine, the environment still applies.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
