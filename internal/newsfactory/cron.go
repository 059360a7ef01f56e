package newsfactory

import (
	"fmt"
	"strconv"
	"strings"
)

// Subscription is a factory delivery subscription.
type Subscription struct {
	ID               string   `json:"id"`
	Name             *string  `json:"name"`
	FilterRegions    []string `json:"filter_regions"`
	FilterCategories []string `json:"filter_categories"`
	FilterKeywords   []string `json:"filter_keywords"`
	ScheduleCron     string   `json:"schedule_cron"`
	ScheduleTZ       string   `json:"schedule_tz,omitempty"`
	MaxArticles      int      `json:"max_articles"`
	IsActive         bool     `json:"is_active"`
	LastDeliveredAt  *string  `json:"last_delivered_at"`
	CreatedAt        string   `json:"created_at"`
	UpdatedAt        string   `json:"updated_at"`
}

// CronPreset is a selectable schedule.
type CronPreset struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// CronPresets are the schedules offered when editing a subscription.
var CronPresets = []CronPreset{
	{Label: "매일 오전 9시", Value: "0 9 * * *"},
	{Label: "매일 오후 5시", Value: "0 17 * * *"},
	{Label: "매일 09:00 + 17:00", Value: "0 9,17 * * *"},
	{Label: "직접 입력", Value: ""},
}

var weekdays = []string{"일", "월", "화", "수", "목", "금", "토"}

// DescribeCron renders a cron schedule in Korean:
// "0 9,17 * * *" becomes "매일 오전 9:00 + 오후 5:00".
func DescribeCron(cron string) string {
	if cron == "" {
		return "—"
	}
	parts := strings.Split(cron, " ")
	if len(parts) < 5 {
		return cron
	}
	minute, hour, dayOfWeek := parts[0], parts[1], parts[4]

	days := "매일"
	if dayOfWeek != "*" {
		names := strings.Split(dayOfWeek, ",")
		for i, d := range names {
			if n, err := strconv.Atoi(d); err == nil && n >= 0 && n < len(weekdays) {
				names[i] = weekdays[n]
			}
		}
		days = strings.Join(names, ",") + "요일"
	}

	if len(minute) < 2 {
		minute = strings.Repeat("0", 2-len(minute)) + minute
	}
	hours := strings.Split(hour, ",")
	times := make([]string, len(hours))
	for i, h := range hours {
		n, err := strconv.Atoi(h)
		if err != nil {
			times[i] = h
			continue
		}
		ampm := "오전"
		if n >= 12 {
			ampm = "오후"
		}
		h12 := n
		switch {
		case n == 0:
			h12 = 12
		case n > 12:
			h12 = n - 12
		}
		times[i] = fmt.Sprintf("%s %d:%s", ampm, h12, minute)
	}
	return days + " " + strings.Join(times, " + ")
}
