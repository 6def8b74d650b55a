package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "faceguard",
	Short: "Realtime face-recognition alerting service",
	Long: `FaceGuard resolves face embeddings to enrolled persons, evaluates alert
rules against each sighting, and fans alerts out to dashboard clients in
real time over WebSocket connections.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
