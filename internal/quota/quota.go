// Package quota meters paid model calls against a monthly spending ceiling.
package quota

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrExceeded means the monthly ceiling has been reached.
var ErrExceeded = errors.New("monthly usage limit reached")

type Kind string

const (
	KindChat    Kind = "chat"
	KindWhisper Kind = "whisper"
	KindTTS     Kind = "tts"
)

// Prices in micro-dollars per unit: one chat request, one second of
// audio, one character of speech.
var microPrice = map[Kind]float64{
	KindChat:    1000,
	KindWhisper: 100,
	KindTTS:     15,
}

// DefaultLimitUSD is the monthly ceiling when none is configured.
const DefaultLimitUSD = 20.0

type Usage struct {
	Kind  Kind
	Units float64
}

func Chat() Usage { return Usage{Kind: KindChat, Units: 1} }
func Whisper(seconds float64) Usage { return Usage{Kind: KindWhisper, Units: seconds} }
func Speech(characters int) Usage { return Usage{Kind: KindTTS, Units: float64(characters)} }

// Cost in micro-dollars, rounded up.
func (u Usage) Cost() int64 {
	return int64(math.Ceil(u.Units * microPrice[u.Kind]))
}

type Status struct {
	Allowed      bool    `json:"allowed"`
	RemainingUSD float64 `json:"remaining"`
}

type Stats struct {
	Month        int     `json:"month"`
	Year         int     `json:"year"`
	TotalCostUSD float64 `json:"totalCostUSD"`
	LimitUSD     float64 `json:"limitUSD"`
	PercentUsed  float64 `json:"percentUsed"`
	RemainingUSD float64 `json:"remainingUSD"`
	RequestCount int64   `json:"requestCount"`
}

// Gate is the shared spending counter. Record is an atomic
// check-and-increment: it refuses with ErrExceeded once spend has reached
// the ceiling, so concurrent callers overshoot by at most one request.
type Gate interface {
	Check(ctx context.Context) (Status, error)
	Record(ctx context.Context, u Usage) (Status, error)
	Stats(ctx context.Context) (Stats, error)
}

func toUSD(micros int64) float64 { return float64(micros) / 1e6 }

func fromUSD(usd float64) int64 { return int64(math.Round(usd * 1e6)) }

func status(used, limit int64) Status {
	return Status{Allowed: used < limit, RemainingUSD: toUSD(max(limit-used, 0))}
}

func stats(now time.Time, used, limit, requests int64) Stats {
	// Counters are keyed by UTC month; see period.
	now = now.UTC()
	s := Stats{
		Month:        int(now.Month()),
		Year:         now.Year(),
		TotalCostUSD: toUSD(used),
		LimitUSD:     toUSD(limit),
		RemainingUSD: toUSD(max(limit-used, 0)),
		RequestCount: requests,
	}
	if limit > 0 {
		s.PercentUsed = math.Round(float64(used)/float64(limit)*10000) / 100
	}
	return s
}

// period is the calendar month a usage counter belongs to.
func period(t time.Time) string {
	return t.UTC().Format("2006-01")
}
