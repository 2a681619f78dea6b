package config

// Version is the application version, overridable at build time with
// -ldflags "-X github.com/ajitpratap0/stockfunk/internal/config.Version=...".
var Version = "1.1.0"
