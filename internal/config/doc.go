// Package config loads the slotkeeper configuration.
//
// Values are resolved in order of increasing precedence:
//
//  1. built-in defaults (Default)
//  2. an optional YAML file (--config or SLOTKEEPER_CONFIG)
//  3. .env and .env.secrets files in the working directory
//  4. environment variables such as DATABASE_URL, LOG_LEVEL or BUSINESS_START
//
// Instrumentation settings are read separately by the instrumentation package.
package config
