// Command schema-generator writes the JSON schema of testwatch.yml.
package main

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/grovetools/testwatch/config"
	"github.com/grovetools/testwatch/logging"
)

func main() {
	out := flag.String("o", "schema/testwatch.schema.json", "output file")
	flag.Parse()
	logger := logging.NewLogger("schema-generator")

	schemaBytes, err := config.GenerateSchema()
	if err != nil {
		logger.Fatalf("Error generating schema: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0755); err != nil {
		logger.Fatalf("Error creating schema directory: %v", err)
	}
	if err := os.WriteFile(*out, append(schemaBytes, '\n'), 0644); err != nil {
		logger.Fatalf("Error writing schema file: %v", err)
	}

	logger.Infof("Generated config schema at %s", *out)
}
