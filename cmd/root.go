package cmd

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/desim-project/desim/examples/icu"
	sim "github.com/desim-project/desim/sim"
)

var (
	// CLI flags for the simulation run
	definitionFile string  // Path to the definition YAML (defaults to the model's bundled one)
	worldName      string  // Name of the model in the registry
	logLevel       string  // Log verbosity level
	seed           int64   // Seed for random data generation
	endTick        int64   // Tick count to end the run, 0 = run until stopped
	tpu            float64 // Ticks per simulated time unit
	realtime       bool    // Pace the tick loop in real time
	outputPath     string  // Directory for saved run artifacts
	outputCSV      bool    // Save CSV instead of gob
	clearOutput    bool    // Remove previous run directories before saving
)

// modelEntry couples a model factory with its bundled definition.
type modelEntry struct {
	factory    func() sim.Model
	definition func() (*sim.Definition, error)
}

// models is the compile-time registry of runnable simulations.
var models = map[string]modelEntry{
	"icu": {factory: icu.New, definition: icu.DefaultDefinition},
}

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "desim",
	Short: "Tick-driven discrete-event simulation engine",
}

// runCmd executes a batch simulation using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a registered simulation model",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		entry, ok := models[worldName]
		if !ok {
			logrus.Fatalf("Unknown world %q. Registered: %v", worldName, modelNames())
		}

		var definition *sim.Definition
		if definitionFile != "" {
			definition, err = sim.LoadDefinition(definitionFile)
		} else if entry.definition != nil {
			definition, err = entry.definition()
		}
		if err != nil {
			logrus.Fatalf("Unable to load definition: %v", err)
		}

		runner, err := sim.NewRunner(entry.factory, sim.RunnerOptions{
			Definition:  definition,
			Seed:        seed,
			Tpu:         tpu,
			EndTick:     endTick,
			Realtime:    realtime,
			Headless:    true,
			OutputPath:  outputPath,
			CSV:         outputCSV,
			ClearOutput: clearOutput,
		})
		if err != nil {
			logrus.Fatalf("Unable to create runner: %v", err)
		}

		startTime := time.Now()
		if err := runner.Simulate(); err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		logrus.Infof("%s finished in %v (run %s)", runner.Title(), time.Since(startTime), runner.ID())
	},
}

func modelNames() []string {
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	return names
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVar(&worldName, "world", "icu", "Registered simulation model to run")
	runCmd.Flags().StringVar(&definitionFile, "definition", "", "Definition YAML (defaults to the model's bundled definition)")
	runCmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")

	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for random data generation")
	runCmd.Flags().Int64Var(&endTick, "end-tick", 0, "Tick count to end the run (0 = run until the model stops)")
	runCmd.Flags().Float64Var(&tpu, "tpu", 0, "Ticks per simulated time unit (0 = definition default)")
	runCmd.Flags().BoolVar(&realtime, "realtime", false, "Pace the tick loop in real time")

	runCmd.Flags().StringVar(&outputPath, "output", "", "Directory to save run artifacts to")
	runCmd.Flags().BoolVar(&outputCSV, "csv", false, "Save CSV files instead of gob")
	runCmd.Flags().BoolVar(&clearOutput, "clear-output", false, "Remove previous run directories before saving")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
