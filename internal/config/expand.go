package config

import (
	"os"
	"regexp"
)

var envPlaceholder = regexp.MustCompile(`%\((\w+)\)s`)

// ExpandEnv replaces %(NAME)s placeholders with the value of the NAME
// environment variable. Unset variables expand to the empty string. Values
// passed to the daemon with --env NAME=VALUE are visible as ENV_NAME.
func ExpandEnv(value string) string {
	return ExpandEnvFunc(value, os.Getenv)
}

// ExpandEnvFunc is ExpandEnv with a custom lookup.
func ExpandEnvFunc(value string, lookup func(string) string) string {
	if lookup == nil {
		lookup = func(string) string { return "" }
	}
	return envPlaceholder.ReplaceAllStringFunc(value, func(match string) string {
		return lookup(envPlaceholder.FindStringSubmatch(match)[1])
	})
}

// EnvOverride is the variable name a --env NAME=VALUE flag is exported as.
func EnvOverride(name string) string {
	return "ENV_" + name
}
