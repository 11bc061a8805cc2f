// Package config provides the public SDK configuration API.
//
// It re-exports the client configuration types and helpers so embedding
// projects can configure the SDK without importing internal packages.
package config

import internalconfig "github.com/runners-app/runners-go/internal/config"

type Config = internalconfig.Config

const (
	DefaultBaseURL  = internalconfig.DefaultBaseURL
	DefaultPageSize = internalconfig.DefaultPageSize
)

func Default() *Config { return internalconfig.Default() }

func LoadConfig(configFile string) (*Config, error) { return internalconfig.LoadConfig(configFile) }
