// Package config handles loading and validating Hearth Bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (OAuth client secret, signing key, history token)
//     should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// A missing required key (site base URL, OAuth client credentials, signing
// key and key id) is treated as a startup-time misconfiguration: Load fails
// and the process does not start, rather than erroring per-request later.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.BaseURL)
package config
