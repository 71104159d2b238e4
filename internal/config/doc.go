// Package config loads filterfinder settings.
//
// Precedence, highest first: explicitly set FILTERFINDER_<SECTION>_<FIELD>
// environment variables, the YAML file named by FILTERFINDER_CONFIG_FILE (or
// filterfinder.yaml in the working directory), then the defaults in the
// struct tags.
//
//	FILTERFINDER_SEARCH_MODEL_NAME=RidgeRegression
//	FILTERFINDER_SEARCH_PROCESSES=8
//	FILTERFINDER_SEARCH_RETENTION=6h
//
// Load validates the result with go-playground/validator and then
// search.Config.Validate; failures read "config validation failed: ...".
package config
