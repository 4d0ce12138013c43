// Package period разбирает периоды подписки ISO 8601 вида PnD, PnW, PnM, PnY.
package period

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrInvalid — строка не является поддерживаемым периодом.
var ErrInvalid = errors.New("invalid subscription period")

// Unit — единица периода.
type Unit byte

const (
	Day   Unit = 'D'
	Week  Unit = 'W'
	Month Unit = 'M'
	Year  Unit = 'Y'
)

// Period — разобранный период подписки.
type Period struct {
	Count int
	Unit  Unit
}

// Parse разбирает период. Поддерживается только одна составляющая с положительным числом.
func Parse(s string) (Period, error) {
	if len(s) < 3 || s[0] != 'P' {
		return Period{}, fmt.Errorf("%w %q", ErrInvalid, s)
	}
	n, err := strconv.Atoi(s[1 : len(s)-1])
	if err != nil || n <= 0 {
		return Period{}, fmt.Errorf("%w %q", ErrInvalid, s)
	}
	switch u := Unit(s[len(s)-1]); u {
	case Day, Week, Month, Year:
		return Period{Count: n, Unit: u}, nil
	}
	return Period{}, fmt.Errorf("%w %q", ErrInvalid, s)
}

// AddTo прибавляет период к t. Месяцы и годы прибавляются календарно, как в time.AddDate.
func (p Period) AddTo(t time.Time) time.Time {
	switch p.Unit {
	case Day:
		return t.AddDate(0, 0, p.Count)
	case Week:
		return t.AddDate(0, 0, 7*p.Count)
	case Month:
		return t.AddDate(0, p.Count, 0)
	case Year:
		return t.AddDate(p.Count, 0, 0)
	}
	return t
}

// Add разбирает период и прибавляет его к t.
func Add(t time.Time, s string) (time.Time, error) {
	p, err := Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return p.AddTo(t), nil
}

// Elapsed считает количество полных периодов от start до at. Если at раньше start, возвращает 0.
func (p Period) Elapsed(start, at time.Time) int {
	if !at.After(start) {
		return 0
	}
	n := 0
	for next := p.AddTo(start); !next.After(at); next = p.AddTo(next) {
		n++
	}
	return n
}
