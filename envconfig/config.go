// config.go - Haupt-Konfigurationsfunktionen fuer vae
//
// Dieses Modul enthaelt:
// - Host: Gibt Scheme und Host des HTTP-Servers zurueck (VAE_HOST)
// - AllowedOrigins: Gibt erlaubte CORS-Origins zurueck (VAE_ORIGINS)
// - Home: Basisverzeichnis fuer Checkpoints und Laufprotokoll (VAE_HOME)
// - Models: Verzeichnis fuer Checkpoints (VAE_MODELS)
// - Data: Standard-Datenquelle fuer das Training (VAE_DATA)
// - LogLevel: Gibt Log-Level zurueck (VAE_DEBUG)
//
// Weitere Konfigurationen sind ausgelagert:
// - config_training.go: Trainings-Variablen
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Host gibt Scheme und Host zurueck
// Konfigurierbar via VAE_HOST
// Default: http://127.0.0.1:8080
func Host() *url.URL {
	defaultPort := "8080"

	s := strings.TrimSpace(Var("VAE_HOST"))
	scheme, hostport, ok := strings.Cut(s, "://")
	switch {
	case !ok:
		scheme, hostport = "http", s
	case scheme == "http":
		defaultPort = "80"
	case scheme == "https":
		defaultPort = "443"
	}

	hostport, path, _ := strings.Cut(hostport, "/")
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = "127.0.0.1", defaultPort
		if ip := net.ParseIP(strings.Trim(hostport, "[]")); ip != nil {
			host = ip.String()
		} else if hostport != "" {
			host = hostport
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, port),
		Path:   path,
	}
}

// AllowedOrigins gibt erlaubte Origins zurueck
// Konfigurierbar via VAE_ORIGINS (komma-separiert)
// Enthaelt Standard-Origins fuer localhost
func AllowedOrigins() (origins []string) {
	if s := Var("VAE_ORIGINS"); s != "" {
		origins = strings.Split(s, ",")
	}

	for _, origin := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		origins = append(origins,
			fmt.Sprintf("http://%s", origin),
			fmt.Sprintf("https://%s", origin),
			fmt.Sprintf("http://%s", net.JoinHostPort(origin, "*")),
			fmt.Sprintf("https://%s", net.JoinHostPort(origin, "*")),
		)
	}

	return origins
}

// Home gibt das Basisverzeichnis zurueck
// Konfigurierbar via VAE_HOME
// Default: $HOME/.vae
func Home() string {
	if s := Var("VAE_HOME"); s != "" {
		return s
	}

	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}

	return filepath.Join(home, ".vae")
}

// Models gibt das Checkpoint-Verzeichnis zurueck
// Konfigurierbar via VAE_MODELS
// Default: $VAE_HOME/models
func Models() string {
	if s := Var("VAE_MODELS"); s != "" {
		return s
	}
	return filepath.Join(Home(), "models")
}

// Data gibt die Standard-Datenquelle zurueck
// Konfigurierbar via VAE_DATA
// Leer = synthetische Szenen
func Data() string {
	return Var("VAE_DATA")
}

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via VAE_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("VAE_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
