package store

import (
	"regexp"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

var daysAgoR = regexp.MustCompile(`^-(\d+)d$`)

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

//Parses "now", "-<N>d" or an ISO datetime
func StrToTime(input string) (time.Time, error) {
	if input == "now" {
		return time.Now(), nil
	}
	if r := daysAgoR.FindStringSubmatch(input); r != nil {
		daysAgo, err := strconv.Atoi(r[1])
		if err != nil {
			return time.Time{}, errors.Wrapf(err, "parse %q", input)
		}
		return time.Now().AddDate(0, 0, -daysAgo), nil
	}
	return ParseISODatetime(input)
}

func ParseISODatetime(input string) (time.Time, error) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, input); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("could not parse %q as datetime", input)
}
