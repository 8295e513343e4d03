package secrets

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"unicode"
)

// Env reads secrets from environment variables named SECRET_<NAME>, where
// NAME is the secret name upper-cased with every other character replaced
// by an underscore. It is meant for local runs without a vault.
type Env struct {
	lookup func(string) (string, bool)
}

// NewEnv returns an Env provider backed by the process environment.
func NewEnv() *Env {
	return &Env{lookup: os.LookupEnv}
}

// EnvKey returns the variable name Env reads for a secret.
func EnvKey(name string) string {
	return "SECRET_" + strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, name)
}

func (e *Env) GetSecret(_ context.Context, name string) (string, bool) {
	v, ok := e.lookup(EnvKey(name))
	if !ok {
		slog.Error("secret not set in environment", "name", name, "variable", EnvKey(name))
	}
	return v, ok
}
