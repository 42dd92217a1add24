package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"auattend-backend/lib/scrapers/adamas"
	"auattend-backend/lib/timezone"
)

var routineDate string

func init() {
	routineCmd.Flags().StringVarP(
		&routineDate, "date", "d", "",
		"day to print in DD-MM-YYYY, defaults to today")
	rootCmd.AddCommand(routineCmd)
}

func markLabel(mark adamas.Mark) string {
	switch mark {
	case adamas.MarkPresent:
		return "Present"
	case adamas.MarkAbsent:
		return "Absent"
	}
	return ""
}

var routineCmd = &cobra.Command{
	Use:   "routine",
	Short: "Prints the period-by-period schedule for a day.",
	Run: func(cmd *cobra.Command, args []string) {
		date := routineDate
		if date == "" {
			date = timezone.Today()
		}
		date = adamas.NormalizeDate(date)

		client, err := login(cmd.Context())
		if err != nil {
			log.Fatal(err)
		}
		page, err := client.FetchRoutinePage(cmd.Context(), date)
		if err != nil {
			log.Fatal(err)
		}
		schedule, err := adamas.ExtractSchedule(page, date)

		var notFound *adamas.DateNotFoundError
		if errors.As(err, &notFound) {
			fmt.Printf("no routine published for %s, available days:\n", date)
			for _, available := range notFound.Available {
				fmt.Printf("  %s (%s)\n", available.DayDate, available.DayName)
			}
			os.Exit(1)
		}
		if err != nil {
			log.Fatal(err)
		}

		fmt.Printf("%s %s\n", schedule.DayName, schedule.DayDate)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Period", "Subject", "Teacher", "Room", "Attendance"})
		for _, p := range schedule.Periods {
			t.AppendRow(table.Row{p.Index, p.Subject, p.Teacher, p.Room, markLabel(p.Mark)})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
