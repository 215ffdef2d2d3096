package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/user/hotspot-blue/logger"
	"github.com/user/hotspot-blue/tests"
)

func main() {
	verbose := flag.Bool("v", false, "Log flow internals")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: replay [-v] scenario.json...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if *verbose {
		logger.SetLevel(logger.DEBUG)
	} else {
		logger.SetLevel(logger.WARN)
	}

	failed := 0
	for _, path := range flag.Args() {
		fmt.Printf("Replaying scenario: %s\n", path)
		r, err := tests.RunScenario(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ %s: %v\n", path, err)
			failed++
			continue
		}
		r.PrintReport()
		if !r.Passed() {
			failed++
		}
	}

	if failed > 0 {
		fmt.Printf("\n%d scenario(s) failed\n", failed)
		os.Exit(1)
	}
}
