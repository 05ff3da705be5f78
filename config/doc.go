// Package config loads application configuration with viper.
//
// LoadConfig reads a YAML file, loads a .env file into the process
// environment, and binds environment variables under every nested key
// spelling, so CLIENT_POOL_MAX_TOTAL reaches client.pool.max_total. Files
// are found in conventional locations unless given explicitly, and an
// environment prefix restricts which variables apply.
//
//	var cfg AppConfig
//	err := config.LoadConfig("restcall", &cfg,
//	    config.WithConfigFile("restcall.yml"),
//	    config.WithEnvPrefix("RESTCALL"))
package config
