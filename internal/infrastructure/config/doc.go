// Package config handles loading and validating the AirCloud bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields and bounded options
//   - Default value handling
//
// Security Considerations:
//   - The AirCloud password should be set via AIRCLOUD_ACCOUNT_PASSWORD
//   - The config file should have restricted permissions (0600)
//
// The refresh interval is bounded to [1, 1440] minutes here, at the
// boundary. Downstream components use whatever interval they are given.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.GetUpdateInterval())
package config
