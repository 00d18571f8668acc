// Package config handles loading and validating ATC bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading an optional .env file for secrets
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Device sensor mappings keep the order they are written in, so records
// and Home Assistant entities follow the configuration file.
//
// Security Considerations:
//   - MQTT passwords, InfluxDB tokens and bindkeys should be set via
//     environment variables or a .env file with restricted permissions
//   - Never log DeviceConfig.BindKey
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Bridge.ID)
package config
