/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package meeting

import (
	"sort"
	"time"

	"github.com/friendsincode/teamslot/internal/planning"
)

// Suggestion is a window in which every participant is free.
type Suggestion struct {
	StartsAt              time.Time `json:"startsAt"`
	EndsAt                time.Time `json:"endsAt"`
	AvailableParticipants int       `json:"availableParticipants"`
	TotalParticipants     int       `json:"totalParticipants"`
	PreferenceScore       float64   `json:"preferenceScore"`
}

type dayIndex struct {
	day   int64
	index int
}

// FindCommonWindows returns every start where all participants have
// required consecutive free slots on the same day. Results are unique by
// start and ordered by mean preference, best first, then by start.
func FindCommonWindows(slots map[int64][]planning.TimeSlot, participants []int64, required int) []Suggestion {
	if len(participants) == 0 || required <= 0 || required > planning.SlotsPerDay {
		return nil
	}

	free := make(map[int64]map[dayIndex]planning.TimeSlot, len(participants))
	for _, uid := range participants {
		userSlots := slots[uid]
		if len(userSlots) == 0 {
			return nil
		}
		m := make(map[dayIndex]planning.TimeSlot, len(userSlots))
		for _, s := range userSlots {
			if !s.Available {
				continue
			}
			m[dayIndex{day: s.Date.Unix(), index: s.Index}] = s
		}
		free[uid] = m
	}

	seen := make(map[int64]struct{})
	var out []Suggestion
	for _, first := range slots[participants[0]] {
		if !first.Available || first.Index+required > planning.SlotsPerDay {
			continue
		}
		if _, dup := seen[first.Start.Unix()]; dup {
			continue
		}

		total := 0.0
		ok := true
		for i := 0; i < required && ok; i++ {
			key := dayIndex{day: first.Date.Unix(), index: first.Index + i}
			for _, uid := range participants {
				s, found := free[uid][key]
				if !found {
					ok = false
					break
				}
				total += s.Preference
			}
		}
		if !ok {
			continue
		}

		seen[first.Start.Unix()] = struct{}{}
		out = append(out, Suggestion{
			StartsAt:              first.Start,
			EndsAt:                first.Start.Add(time.Duration(required) * planning.SlotDuration),
			AvailableParticipants: len(participants),
			TotalParticipants:     len(participants),
			PreferenceScore:       total / float64(required*len(participants)),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PreferenceScore != out[j].PreferenceScore {
			return out[i].PreferenceScore > out[j].PreferenceScore
		}
		return out[i].StartsAt.Before(out[j].StartsAt)
	})
	return out
}
