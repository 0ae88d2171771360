// Command specado is a thin CLI over the api package's JSON-in/JSON-out
// translate and validate entry points, the way tools/main.go is a thin
// consumer of the teacher's llm package rather than a second
// implementation of its logic.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cast"

	"github.com/specado/specado/api"
	"github.com/specado/specado/internal/log"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	switch command {
	case "translate":
		runTranslate(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: specado <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  translate  Run the translation pipeline over a request JSON file")
	fmt.Println("  validate   Validate a PromptSpec or ProviderSpec JSON file")
	fmt.Println("\nUse 'specado <command> -h' for more information about a command.")
}

func runTranslate(args []string) {
	fs := flag.NewFlagSet("translate", flag.ExitOnError)
	input := fs.String("input", "", "Input JSON file containing a translate request (see §6.1)")
	output := fs.String("output", "", "Output JSON file; stdout when empty")
	verbose := fs.Bool("v", false, "Enable debug logging (SPECADO_VERBOSE, coerced via spf13/cast, also enables it)")
	fs.Parse(args)

	if *input == "" && fs.NArg() > 0 {
		*input = fs.Arg(0)
	}

	if *input == "" {
		fmt.Println("Error: -input is required")
		fs.Usage()
		os.Exit(1)
	}

	if *verbose || cast.ToBool(os.Getenv("SPECADO_VERBOSE")) {
		if err := log.NewDevelopment(); err != nil {
			fmt.Printf("Warning: failed to initialize debug logging: %v\n", err)
		}
	}

	requestJSON, err := os.ReadFile(*input)
	if err != nil {
		fmt.Printf("Failed to read input file: %v\n", err)
		os.Exit(1)
	}

	responseJSON := api.Translate(context.Background(), requestJSON)

	if err := writeOutput(*output, responseJSON); err != nil {
		fmt.Printf("Failed to write output: %v\n", err)
		os.Exit(1)
	}
}

func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	input := fs.String("input", "", "Input JSON file containing a validate request (see §6.3)")
	output := fs.String("output", "", "Output JSON file; stdout when empty")
	fs.Parse(args)

	if *input == "" && fs.NArg() > 0 {
		*input = fs.Arg(0)
	}

	if *input == "" {
		fmt.Println("Error: -input is required")
		fs.Usage()
		os.Exit(1)
	}

	requestJSON, err := os.ReadFile(*input)
	if err != nil {
		fmt.Printf("Failed to read input file: %v\n", err)
		os.Exit(1)
	}

	responseJSON := api.Validate(requestJSON)

	if err := writeOutput(*output, responseJSON); err != nil {
		fmt.Printf("Failed to write output: %v\n", err)
		os.Exit(1)
	}
}

func writeOutput(path string, data []byte) error {
	if path == "" {
		fmt.Println(string(data))
		return nil
	}

	return os.WriteFile(path, append(data, '\n'), 0o644)
}
