package adamas

import (
	"strconv"
	"strings"

	"auattend-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// Mark is the attendance state of a single period as rendered by the
// portal's routine grid.
type Mark string

const (
	// period not yet held, or no class in the slot
	MarkNone    Mark = ""
	MarkPresent Mark = "P"
	MarkAbsent  Mark = "A"
)

type AttendanceRecord struct {
	Subject         string `json:"subject"`
	ClassesHeld     int    `json:"total_classes"`
	ClassesAttended int    `json:"total_present"`
	ClassesAbsent   int    `json:"total_absent"`
	Percentage      string `json:"percent"`
}

type Period struct {
	Index   int    `json:"period"`
	Subject string `json:"subject"`
	Teacher string `json:"teacher"`
	Room    string `json:"room"`
	Mark    Mark   `json:"attendance"`
	// width of the merged cell this period came from; a cell spanning
	// N slots emits N consecutive periods all carrying Span=N
	Span int `json:"span,omitempty"`
}

// DaySchedule always carries exactly PeriodsPerDay periods, padded with
// empty entries; the mobile client renders a fixed grid.
type DaySchedule struct {
	DayName string   `json:"dayName"`
	DayDate string   `json:"dayDate"`
	Periods []Period `json:"periods"`
}

// the portal's timetable has eight slots per day, the mobile client
// relies on the schedule always being padded out to this count
const PeriodsPerDay = 8

const snippetLimit = 512

func htmlSnippet(html string) string {
	if len(html) > snippetLimit {
		return html[:snippetLimit]
	}
	return html
}

// ExtractAttendance pulls the per-subject attendance summary out of the
// page. Markup is not a stable contract: every field defaults rather
// than fails, and only a fully missing table is reported as an error.
func ExtractAttendance(html string) ([]AttendanceRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	table := doc.Find("#myTable tbody")
	if table.Length() == 0 {
		return nil, &NoTableError{Selector: "#myTable", Snippet: htmlSnippet(html)}
	}

	var records []AttendanceRecord
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cols := row.Find("td")
		if cols.Length() < 5 {
			return
		}
		records = append(records, AttendanceRecord{
			Subject:         htmlutil.CleanText(cols.Eq(0).Text()),
			ClassesHeld:     htmlutil.AtoiOr0(cols.Eq(1).Text()),
			ClassesAttended: htmlutil.AtoiOr0(cols.Eq(2).Text()),
			ClassesAbsent:   htmlutil.AtoiOr0(cols.Eq(3).Text()),
			Percentage:      htmlutil.CleanText(cols.Eq(4).Text()),
		})
	})

	return records, nil
}

// ExtractSchedule finds the routine row whose date cell matches
// targetDate (after normalization on both sides) and expands it into a
// padded DaySchedule. When no row matches it returns a
// DateNotFoundError listing every date found on the page so the caller
// can retry with a valid one.
func ExtractSchedule(html string, targetDate string) (DaySchedule, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return DaySchedule{}, err
	}

	dayCells := doc.Find("td.week-day")
	if dayCells.Length() == 0 {
		return DaySchedule{}, &NoTableError{Selector: "td.week-day", Snippet: htmlSnippet(html)}
	}

	requested := NormalizeDate(targetDate)

	var available []AvailableDate
	var dayRow *goquery.Selection
	var matched AvailableDate

	dayCells.Each(func(_ int, cell *goquery.Selection) {
		text := cell.Text()
		raw := dmyRegex.FindString(text)
		if raw == "" {
			return
		}
		found := AvailableDate{
			DayName: htmlutil.FirstLine(text),
			DayDate: NormalizeDate(raw),
			RawDate: raw,
		}
		available = append(available, found)

		if dayRow == nil && found.DayDate == requested {
			dayRow = cell.Closest("tr")
			matched = found
		}
	})

	if dayRow == nil {
		return DaySchedule{}, &DateNotFoundError{Requested: requested, Available: available}
	}

	schedule := DaySchedule{
		DayName: matched.DayName,
		DayDate: matched.DayDate,
	}

	index := 1
	dayRow.Find("td.routine-content").Each(func(_ int, cell *goquery.Selection) {
		span := 1
		if v, ok := cell.Attr("colspan"); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
				span = n
			}
		}

		period := Period{
			Subject: htmlutil.CleanText(cell.Find(".class-subject").Text()),
			Teacher: htmlutil.CleanText(cell.Find(".class-teacher").Text()),
			// "bulding-room" is the portal's own typo, do not fix it
			Room: htmlutil.CleanText(cell.Find(".bulding-room").Text()),
			Mark: classifyMark(cell),
			Span: span,
		}

		// a merged cell represents span consecutive periods of the
		// same class, emit one entry per covered slot
		for s := 0; s < span; s++ {
			period.Index = index
			schedule.Periods = append(schedule.Periods, period)
			index++
		}
	})

	padSchedule(&schedule)
	return schedule, nil
}

func classifyMark(cell *goquery.Selection) Mark {
	if cell.Find(".attendance_status_present").Length() > 0 {
		return MarkPresent
	}
	if cell.Find(".attendance_status_absent").Length() > 0 {
		return MarkAbsent
	}
	return MarkNone
}

func padSchedule(schedule *DaySchedule) {
	for len(schedule.Periods) < PeriodsPerDay {
		schedule.Periods = append(schedule.Periods, Period{
			Index: len(schedule.Periods) + 1,
			Mark:  MarkNone,
		})
	}
}
