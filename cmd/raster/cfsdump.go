package main

import (
	"flag"
	"fmt"
)

// runCFS implements `raster cfs`: render the project's
// Control Flow Schema as pretty JSON to --output, or stdout.
func runCFS(args []string) error {
	fs := flag.NewFlagSet("cfs", flag.ContinueOnError)
	output := fs.String("output", "", "output path (default: stdout)")
	project := fs.String("project", ".", "project root")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, schema, err := discoverAndBuildCFS(*project)
	if err != nil {
		return err
	}

	data, err := schema.ToJSON()
	if err != nil {
		return err
	}

	f, cleanup, err := openOutput(*output)
	if err != nil {
		return err
	}
	defer cleanup()

	_, err = fmt.Fprintln(f, string(data))
	return err
}
