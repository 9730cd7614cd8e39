package cmd

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/evgen-sim/evgen-sim/evgen"
	_ "github.com/evgen-sim/evgen-sim/evgen/engine" // registers the reference engine
	"github.com/evgen-sim/evgen-sim/evgen/geom"
	"github.com/evgen-sim/evgen-sim/evgen/trace"
)

var (
	configFile string // YAML run configuration
	worldFile  string // YAML world geometry description
	logLevel   string // log verbosity level
	traceLevel string // trace level (none, samples)
	traceOut   string // trace output file
	maxSpills  int    // number of spills to generate
	maxSamples int    // hard cap on sample attempts per spill
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "evgen-sim",
	Short: "Configuration-driven event generation driver",
}

// runCmd assembles the driver from the merged configuration and runs the
// sampling loop until the requested number of spills has closed.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the event generation loop",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		cfg, err := loadConfig(cmd)
		if err != nil {
			logrus.Fatalf("unable to load run config: %v", err)
		}

		if worldFile == "" {
			logrus.Fatal("world geometry file not provided (--world)")
		}
		worldSpec, err := geom.LoadWorldSpec(worldFile)
		if err != nil {
			logrus.Fatalf("unable to load world geometry: %v", err)
		}
		world, err := geom.New(worldSpec)
		if err != nil {
			logrus.Fatalf("unable to build world geometry: %v", err)
		}

		if !trace.IsValidLevel(traceLevel) {
			logrus.Fatalf("Invalid trace level: %s", traceLevel)
		}
		var runTrace *trace.RunTrace
		if trace.Level(traceLevel) == trace.LevelSamples {
			runTrace = trace.NewRunTrace(trace.Config{Level: trace.LevelSamples})
		}

		driver, err := evgen.New(cfg, world)
		if err != nil {
			logrus.Fatalf("unable to construct driver: %v", err)
		}
		driver.SetTrace(runTrace)

		startTime := time.Now()
		if err := driver.Initialize(); err != nil {
			logrus.Fatalf("driver initialization failed: %v", err)
		}

		events, truncated := runSpills(driver, maxSpills, maxSamples)
		if truncated > 0 {
			logrus.Warnf("%d spill(s) hit the %d-sample cap before reaching a boundary and were not booked",
				truncated, maxSamples)
		}

		if err := driver.Close(); err != nil {
			logrus.Warnf("driver teardown: %v", err)
		}
		logrus.Infof("generated %d events in %d spills, total exposure %g, wall time %s",
			events, maxSpills, driver.TotalExposure(), time.Since(startTime))

		if runTrace != nil && traceOut != "" {
			if err := runTrace.WriteYAML(traceOut); err != nil {
				logrus.Warnf("unable to write trace %q: %v", traceOut, err)
			} else {
				logrus.Infof("trace written to %q", traceOut)
			}
		}
	},
}

// runSpills drives the sampling loop for the requested number of spills. A
// spill is closed only when the accountant declares its boundary reached; a
// spill cut short by the per-spill sample cap is counted as truncated and
// left unbooked.
func runSpills(driver *evgen.Driver, spills, sampleCap int) (events, truncated int) {
	for spill := 0; spill < spills; spill++ {
		for attempt := 0; attempt < sampleCap && !driver.EndOfSpill(); attempt++ {
			if _, ok := driver.SampleOnce(); ok {
				events++
			}
		}
		if !driver.EndOfSpill() {
			truncated++
			continue
		}
		driver.CloseSpill()
	}
	return events, truncated
}

// loadConfig merges the defaults, the YAML config file, EVGEN_* environment
// variables, and any bound flags, in increasing precedence.
func loadConfig(cmd *cobra.Command) (evgen.Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EVGEN")
	v.AutomaticEnv()

	defaults := evgen.DefaultConfig()
	v.SetDefault("flux_type", defaults.FluxType)
	v.SetDefault("seed", defaults.Seed)
	v.SetDefault("events_per_spill", defaults.EventsPerSpill)
	v.SetDefault("exposure_per_spill", defaults.ExposurePerSpill)
	v.SetDefault("mono_energy", defaults.MonoEnergy)
	v.SetDefault("beam_center", defaults.BeamCenter)
	v.SetDefault("beam_direction", defaults.BeamDirection)
	v.SetDefault("beam_radius", defaults.BeamRadius)
	v.SetDefault("upstream_z", defaults.UpstreamZ)
	v.SetDefault("atmo_emin", defaults.AtmoEMin)
	v.SetDefault("atmo_emax", defaults.AtmoEMax)
	v.SetDefault("atmo_rl", defaults.AtmoRadiusLong)
	v.SetDefault("atmo_rt", defaults.AtmoRadiusTrans)
	v.SetDefault("mixer_config", defaults.MixerConfig)
	v.SetDefault("fiducial_cut", defaults.FiducialCut)
	v.SetDefault("geom_scan", defaults.GeomScan)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return evgen.Config{}, err
		}
		logrus.Infof("loaded run config from %q", v.ConfigFileUsed())
	}

	// flags win over file and environment
	for _, key := range []string{"flux_type", "fiducial_cut", "geom_scan", "search_path"} {
		flag := cmd.Flags().Lookup(flagName(key))
		if flag != nil && flag.Changed {
			v.Set(key, flag.Value.String())
		}
	}
	if flag := cmd.Flags().Lookup("seed"); flag != nil && flag.Changed {
		seed, err := cmd.Flags().GetInt64("seed")
		if err != nil {
			return evgen.Config{}, err
		}
		v.Set("seed", seed)
	}

	var cfg evgen.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return evgen.Config{}, err
	}
	return cfg, nil
}

// flagName maps a config key to its CLI flag spelling.
func flagName(key string) string {
	switch key {
	case "flux_type":
		return "flux-type"
	case "fiducial_cut":
		return "fiducial-cut"
	case "geom_scan":
		return "geom-scan"
	case "search_path":
		return "search-path"
	}
	return key
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVar(&configFile, "config", "", "Run configuration YAML file")
	runCmd.Flags().StringVar(&worldFile, "world", "", "World geometry YAML file")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().StringVar(&traceLevel, "trace", "none", "Trace level (none, samples)")
	runCmd.Flags().StringVar(&traceOut, "trace-out", "", "Trace output YAML file")
	runCmd.Flags().IntVar(&maxSpills, "spills", 1, "Number of spills to generate")
	runCmd.Flags().IntVar(&maxSamples, "max-samples", 100000, "Sample-attempt cap per spill")

	// overrides for the most commonly swapped config keys
	runCmd.Flags().String("flux-type", "", "Flux source type (mono, histogram, ntuple, simple_flux, atmo_fluka, atmo_bartol)")
	runCmd.Flags().Int64("seed", 42, "Master RNG seed")
	runCmd.Flags().String("fiducial-cut", "", "Fiducial cut specification")
	runCmd.Flags().String("geom-scan", "", "Geometry scan specification")
	runCmd.Flags().String("search-path", "", "Flux file search path (colon separated)")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
