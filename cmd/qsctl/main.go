// Command qsctl is the command-line client for a querysmith server.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/af-corp/querysmith/internal/client"
	"github.com/af-corp/querysmith/internal/keychain"
)

var version = "dev"

const defaultServerURL = "http://localhost:8080"

var (
	serverURL string
	apiKeyArg string
	outputFmt string
)

var rootCmd = &cobra.Command{
	Use:           "qsctl",
	Short:         "Generate, optimize, validate, explain and format SQL",
	Long:          `qsctl talks to a querysmith server to turn questions into SQL and to review existing SQL. Formatting works offline.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "querysmith server URL (env QUERYSMITH_URL)")
	rootCmd.PersistentFlags().StringVar(&apiKeyArg, "api-key", "", "API key (env QUERYSMITH_API_KEY, else the OS keyring)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "text", "output format: text or json")
}

// resolveServer picks the server URL: flag, then env, then keyring, then the
// local default.
func resolveServer(km *keychain.Manager) string {
	if serverURL != "" {
		return serverURL
	}
	if v := os.Getenv("QUERYSMITH_URL"); v != "" {
		return v
	}
	if km != nil {
		if v, err := km.Get(keychain.KeyServerURL); err == nil && v != "" {
			return v
		}
	}
	return defaultServerURL
}

// resolveAPIKey picks the API key: flag, then env, then keyring.
func resolveAPIKey(km *keychain.Manager) (string, error) {
	if apiKeyArg != "" {
		return apiKeyArg, nil
	}
	if v := os.Getenv("QUERYSMITH_API_KEY"); v != "" {
		return v, nil
	}
	if km == nil {
		return "", errors.New("no API key: secure storage is unavailable, set QUERYSMITH_API_KEY")
	}
	v, err := km.Get(keychain.KeyAPIKey)
	if errors.Is(err, keychain.ErrNotFound) {
		return "", errors.New("not logged in: run `qsctl login` or set QUERYSMITH_API_KEY")
	}
	return v, err
}

// newClient builds an API client from the resolved credentials. The keyring
// is optional when both values come from flags or env.
func newClient() (*client.Client, error) {
	km, _ := keychain.New()
	key, err := resolveAPIKey(km)
	if err != nil {
		return nil, err
	}
	return client.New(resolveServer(km), key, nil), nil
}

func printError(err error) {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		pterm.Error.Println(apiErr.Message)
		if apiErr.RequestID != "" {
			pterm.Println(pterm.Gray(fmt.Sprintf("  code=%s request_id=%s", apiErr.Code, apiErr.RequestID)))
		}
		return
	}
	pterm.Error.Println(err.Error())
}
