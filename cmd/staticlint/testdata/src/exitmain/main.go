package main

import (
	"fmt"
	"os"
)

func run() error {
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Println(err)
		os.Exit(1) // want `direct call to os.Exit in main function of main package is forbidden`
	}
	defer fmt.Println("done")
}

func fail() {
	os.Exit(2)
}
