// Package config provides configuration loading and validation for voicecap.
// Values come from Default, then an optional YAML file, then VOICECAP_*
// environment variables.
package config
