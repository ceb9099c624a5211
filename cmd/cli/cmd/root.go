package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/opencraft/opencraft/pkg/client"
)

var (
	baseURL string
	apiKey  string
	token   string
)

var rootCmd = &cobra.Command{
	Use:   "opencraft",
	Short: "opencraft CLI - Power the game server VM on and off",
	Long: `opencraft is a command-line tool for the opencraft power API.

It starts the game server VM when nobody is playing on it, asks the server to
save and stop before deallocating the VM, and reports whether the VM and the
game server agree about being up.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", getEnvOrDefault("OPENCRAFT_API_URL", "http://localhost:8080"), "opencraft API base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("OPENCRAFT_API_KEY"), "opencraft API key")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("OPENCRAFT_TOKEN"), "Scoped power token (used instead of the API key)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func newClient() *client.Client {
	c := client.NewClient(baseURL, apiKey)
	if token != "" {
		c = c.WithToken(token)
	}
	return c
}
