// Package config handles loading and validating NexoWatt VIS configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (NEXOWATT_*)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The installer secret and broker credentials should be set via environment variables
//   - Prefer installer.secret_hash (argon2id) over a plaintext installer.secret
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, w := range cfg.Warnings() {
//	    log.Println(w)
//	}
package config
