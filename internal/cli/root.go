// Package cli implements the hakanai command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	verbose   bool
	serverURL string
	authToken string
)

var rootCmd = &cobra.Command{
	Use:   "hakanai",
	Short: "Zero-knowledge one-time secret sharing",
	Long: `hakanai encrypts a secret locally, uploads only the ciphertext,
and prints a share URL whose fragment carries the decryption key. The
server never sees plaintext or key.

Examples:
  # Share a secret read from stdin
  echo "the launch code is 1234" | hakanai send

  # Share a file
  hakanai send --file report.pdf

  # Receive a secret
  hakanai receive https://hakanai.example/s/abc123#key:hash`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if ec, ok := err.(exitCoder); ok {
			return ec.ExitCode()
		}
		return exitUsage
	}
	return exitSuccess
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.hakanai.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "hakanai server URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "bearer token for authenticated uploads")

	viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".hakanai")
	}

	viper.SetEnvPrefix("HAKANAI")
	viper.AutomaticEnv()

	viper.SetDefault("server", "http://localhost:8080")

	if err := viper.ReadInConfig(); err == nil {
		if IsVerbose() {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose || viper.GetBool("verbose")
}

// GetServerURL returns the configured hakanai server base URL.
func GetServerURL() string {
	return viper.GetString("server")
}

// GetAuthToken returns the configured bearer token, empty for anonymous.
func GetAuthToken() string {
	return viper.GetString("token")
}
