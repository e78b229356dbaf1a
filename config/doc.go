// Package config provides application configuration management.
//
// The config package loads the global challengebox configuration from a
// YAML file and CHALLENGEBOX_* environment variables using viper. It covers
// the problems directory layout, platform defaults, sandbox limits, logging,
// profiling and complexity analysis defaults, and the run history store.
//
// Usage:
//
//	cfg, err := config.Load("challengebox.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Sandbox backend: %s\n", cfg.Sandbox.Backend)
package config
