package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/af-corp/querysmith/internal/client"
	"github.com/af-corp/querysmith/internal/keychain"
)

var loginKey string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verify an API key and store it in the OS keyring",
	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := keychain.New()
		if err != nil {
			return fmt.Errorf("secure storage unavailable (set QUERYSMITH_API_KEY instead): %w", err)
		}

		key := strings.TrimSpace(loginKey)
		if key == "" {
			key, err = pterm.DefaultInteractiveTextInput.WithMask("*").Show("API key")
			if err != nil {
				return err
			}
			key = strings.TrimSpace(key)
		}
		if key == "" {
			return errors.New("empty API key")
		}

		server := resolveServer(km)
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		// Any authenticated endpoint proves the key; history is the cheapest.
		if _, err := client.New(server, key, nil).History(ctx, 1); err != nil {
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
				return errors.New("the server rejected this API key")
			}
			return err
		}

		if err := km.Set(keychain.KeyAPIKey, key); err != nil {
			return err
		}
		if err := km.Set(keychain.KeyServerURL, server); err != nil {
			return err
		}
		pterm.Success.Printfln("Logged in to %s", server)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := keychain.New()
		if err != nil {
			return err
		}
		if err := km.Clear(); err != nil {
			return err
		}
		pterm.Success.Println("Credentials removed")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginKey, "key", "", "API key (prompted when omitted)")
	rootCmd.AddCommand(loginCmd, logoutCmd)
}
