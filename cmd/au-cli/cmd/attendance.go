package cmd

import (
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"auattend-backend/lib/scrapers/adamas"
)

func init() {
	rootCmd.AddCommand(attendanceCmd)
}

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Prints the cumulative per-subject attendance summary.",
	Run: func(cmd *cobra.Command, args []string) {
		client, err := login(cmd.Context())
		if err != nil {
			log.Fatal(err)
		}
		page, err := client.FetchAttendancePage(cmd.Context())
		if err != nil {
			log.Fatal(err)
		}
		records, err := adamas.ExtractAttendance(page)
		if err != nil {
			log.Fatal(err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Subject", "Held", "Attended", "Absent", "%"})
		for _, r := range records {
			t.AppendRow(table.Row{
				r.Subject, r.ClassesHeld, r.ClassesAttended, r.ClassesAbsent, r.Percentage,
			})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
