package env

import (
	"os"
	"strings"
)

type Environment string

const (
	Local      Environment = "local"
	Production Environment = "production"
)

func IsLocal() bool {
	return Get() == Local
}

// Get returns the deployment environment from ENVIRONMENT, lower-cased.
func Get() Environment {
	return Environment(strings.ToLower(os.Getenv("ENVIRONMENT")))
}

func IsDebug() bool {
	return strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug")
}
