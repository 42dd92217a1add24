package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"auattend-backend/lib/restyutil"
	"auattend-backend/lib/scrapers/adamas"
)

var (
	baseUrl        string
	registrationNo string
	password       string
	debugHttpDir   string
)

var rootCmd = &cobra.Command{
	Use:   "au-cli",
	Short: "au-cli scrapes the Adamas student portal from the command line.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&baseUrl, "base-url",
		"https://students.adamasuniversity.ac.in",
		"base url of the student portal")
	rootCmd.PersistentFlags().StringVarP(
		&registrationNo, "registration-no", "u", "",
		"portal registration number")
	rootCmd.PersistentFlags().StringVarP(
		&password, "password", "p", "",
		"portal password")
	rootCmd.PersistentFlags().StringVar(
		&debugHttpDir, "debug-http", "",
		"dump every portal exchange into this directory")
	rootCmd.MarkPersistentFlagRequired("registration-no")
	rootCmd.MarkPersistentFlagRequired("password")
}

// login builds a portal session from the persistent flags.
func login(ctx context.Context) (*adamas.Client, error) {
	if debugHttpDir != "" {
		adamas.SetRestyInstrumentOutput(restyutil.NewFilesystemOutput(debugHttpDir))
	}
	client, err := adamas.NewClient(adamas.ClientOptions{BaseUrl: baseUrl})
	if err != nil {
		return nil, err
	}
	err = client.Login(ctx, registrationNo, password)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
