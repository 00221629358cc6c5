// Package config loads typed configuration from the environment.
//
// It wraps github.com/joho/godotenv (optional .env file) and
// github.com/caarlos0/env/v11 (struct tag parsing). Each configuration type
// is parsed once and cached, so components can call Load for their own
// struct without coordinating with each other.
package config
