package config

import (
	"strconv"
	"time"

	"github.com/docker/go-units"
)

type SizeArgument struct {
	Size int64 `arg:"" help:"size in bytes"`
}

func (s *SizeArgument) UnmarshalText(text []byte) (err error) {
	s.Size, err = units.FromHumanSize(string(text))
	return
}

// MarshalText writes the human form when it reads back to the same byte
// count, and the plain byte count otherwise.
func (s SizeArgument) MarshalText() ([]byte, error) {
	human := units.HumanSize(float64(s.Size))
	if n, err := units.FromHumanSize(human); err == nil && n == s.Size {
		return []byte(human), nil
	}
	return []byte(strconv.FormatInt(s.Size, 10)), nil
}

func (s SizeArgument) IsZero() bool {
	return s.Size == 0
}

// Duration is a time.Duration read from strings such as "30m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) (err error) {
	d.Duration, err = time.ParseDuration(string(text))
	return
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func (d Duration) IsZero() bool {
	return d.Duration == 0
}
