package cmd

import (
	"fmt"
	"log"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

var (
	serverUrl string
	fcmToken  string
)

func init() {
	registerCmd.Flags().StringVar(
		&serverUrl, "server", "http://localhost:8000",
		"base url of a running au-server")
	registerCmd.Flags().StringVar(
		&fcmToken, "fcm-token", "",
		"push notification token to register alongside the credentials")
	rootCmd.AddCommand(registerCmd)
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Registers the credentials with an au-server for background polling.",
	Run: func(cmd *cobra.Command, args []string) {
		res, err := resty.New().R().
			SetContext(cmd.Context()).
			SetBody(map[string]string{
				"username": registrationNo,
				"password": password,
				"fcmToken": fcmToken,
			}).
			Post(serverUrl + "/register-user")
		if err != nil {
			log.Fatal(err)
		}
		if res.StatusCode() != 200 {
			log.Fatalf("registration failed: %s", res.String())
		}
		fmt.Printf("registered %s\n", registrationNo)
	},
}
