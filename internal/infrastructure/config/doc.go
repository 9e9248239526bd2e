// Package config handles loading and validating garage relay configuration.
//
// This package manages:
//   - Default values, including the build-time actuator driver
//   - Loading an optional YAML file
//   - Overriding with environment variables (DATABASE_URL, GARAGE_*)
//   - Validation of required fields
//
// The database connection string has no default: a process started
// without DATABASE_URL (or database.url) refuses to start.
//
// Usage:
//
//	cfg, err := config.Load(os.Getenv("GARAGE_CONFIG"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.GPIO.Pin)
package config
