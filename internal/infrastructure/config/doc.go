// Package config handles loading and validating Gray Logic Telemetry configuration.
//
// This package manages:
//   - Loading configuration from a YAML file
//   - Overriding with TELEMETRY_* environment variables
//   - Derived defaults (source hostname, subscribe patterns, update topic)
//   - Validation of required fields
//
// Security Considerations:
//   - Sensitive values (broker password, InfluxDB token) should be set via
//     environment variables rather than committed to the config file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Topics.Root)
package config
