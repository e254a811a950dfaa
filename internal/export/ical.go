/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package export renders schedules for calendar clients and archives them.
package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/friendsincode/teamslot/internal/models"
	"github.com/friendsincode/teamslot/internal/storage"
)

// ICalContentType is the media type of ICal output.
const ICalContentType = "text/calendar; charset=utf-8"

// ICal renders a schedule as a VCALENDAR with one VEVENT per assignment.
func ICal(schedule models.Schedule, assignments []models.Assignment) []byte {
	stamp := schedule.CreatedAt
	if stamp.IsZero() {
		stamp = time.Now()
	}

	var buf bytes.Buffer
	buf.WriteString("BEGIN:VCALENDAR\r\n")
	buf.WriteString("VERSION:2.0\r\n")
	buf.WriteString("PRODID:-//Teamslot//Schedule Export//EN\r\n")
	fmt.Fprintf(&buf, "X-WR-CALNAME:Team %d Schedule\r\n", schedule.TeamID)
	buf.WriteString("CALSCALE:GREGORIAN\r\n")
	buf.WriteString("METHOD:PUBLISH\r\n")

	for _, a := range assignments {
		buf.WriteString("BEGIN:VEVENT\r\n")
		fmt.Fprintf(&buf, "UID:assignment-%d@teamslot\r\n", a.ID)
		fmt.Fprintf(&buf, "DTSTAMP:%s\r\n", formatICalTime(stamp))
		fmt.Fprintf(&buf, "DTSTART:%s\r\n", formatICalTime(a.StartsAt))
		fmt.Fprintf(&buf, "DTEND:%s\r\n", formatICalTime(a.EndsAt))
		fmt.Fprintf(&buf, "SUMMARY:%s\r\n", escapeICalText(a.Title))
		if a.Meta != nil && a.Meta.Split {
			fmt.Fprintf(&buf, "DESCRIPTION:Part %d of %d\r\n", a.Meta.SplitIndex+1, a.Meta.TotalGroups)
		}
		if a.TaskID != nil {
			fmt.Fprintf(&buf, "X-TEAMSLOT-TASK-ID:%d\r\n", *a.TaskID)
		}
		if a.Meta != nil && a.Meta.UserID != 0 {
			fmt.Fprintf(&buf, "X-TEAMSLOT-USER-ID:%d\r\n", a.Meta.UserID)
		}
		buf.WriteString("END:VEVENT\r\n")
	}

	buf.WriteString("END:VCALENDAR\r\n")
	return buf.Bytes()
}

// Filename is the download name of a schedule's ICal document.
func Filename(schedule models.Schedule) string {
	return fmt.Sprintf("team-%d-schedule-%s-to-%s.ics",
		schedule.TeamID,
		schedule.RangeStart.Format("2006-01-02"),
		schedule.RangeEnd.Format("2006-01-02"))
}

// ArchiveKey is the object key under which a schedule is archived.
func ArchiveKey(schedule models.Schedule) string {
	return fmt.Sprintf("schedules/%d/%d.ics", schedule.TeamID, schedule.ID)
}

// Archive stores the ICal rendering of a schedule and returns its key.
func Archive(ctx context.Context, store storage.ObjectStore, schedule models.Schedule, assignments []models.Assignment) (string, error) {
	key := ArchiveKey(schedule)
	if err := store.Put(ctx, key, ICal(schedule, assignments), ICalContentType); err != nil {
		return "", fmt.Errorf("archive schedule %d: %w", schedule.ID, err)
	}
	return key, nil
}

func formatICalTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

func escapeICalText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\r\n", "\\n")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
