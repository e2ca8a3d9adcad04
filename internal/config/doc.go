// Package config loads factllm configuration from environment variables.
//
// Variables are parsed with github.com/caarlos0/env into Config and then
// validated. Config also resolves the generic LLM_API_KEY / LLM_API_URL pair
// (and LOCAL_API_KEY / LOCAL_API_URL) into the provider specific keys the
// adapters read from domain.ClientConfig.APIConfig, so no package under pkg/
// reads the environment.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client, err := llm.NewClient(cfg.ClientConfig(), logger)
package config
