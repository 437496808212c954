// Package config handles loading and validating Annunciator Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (ANNUNCIATOR_*)
//   - Validation of required fields
//   - Default value handling
//
// Device and group definitions are not part of this file; they live in the
// registry store selected by registry.backend.
//
// Security Considerations:
//   - Sensitive values (MQTT password, JWT secret, admin hash) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Registry.Path)
package config
