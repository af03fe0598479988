package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/selivandex/market-pulse/internal/errs"
)

// epoch seconds outside this range cannot be stored as a timestamp
const (
	minEpochSeconds = -62135596800 // 0001-01-01
	maxEpochSeconds = 253402300799 // 9999-12-31
)

// NormalizeCreated converts a fetched created_utc value to UTC. Values that
// cannot be converted yield nil; the row is kept with a NULL timestamp.
func NormalizeCreated(v interface{}) *time.Time {
	t, err := parseCreated(v)
	if err != nil {
		return nil
	}
	return t
}

func parseCreated(v interface{}) (*time.Time, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if x.IsZero() {
			return nil, nil
		}
		t := x.UTC()
		return &t, nil
	case *time.Time:
		if x == nil || x.IsZero() {
			return nil, nil
		}
		t := x.UTC()
		return &t, nil
	case float64:
		return fromEpoch(x)
	case float32:
		return fromEpoch(float64(x))
	case int:
		return fromEpoch(float64(x))
	case int64:
		return fromEpoch(float64(x))
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, errs.Mark(err, errs.ErrTimestampParse)
		}
		return fromEpoch(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil, errs.Mark(err, errs.ErrTimestampParse)
		}
		return fromEpoch(f)
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", errs.ErrTimestampParse, v)
	}
}

func fromEpoch(sec float64) (*time.Time, error) {
	if math.IsNaN(sec) || math.IsInf(sec, 0) {
		return nil, fmt.Errorf("%w: %v", errs.ErrTimestampParse, sec)
	}
	if sec < minEpochSeconds || sec > maxEpochSeconds {
		return nil, fmt.Errorf("%w: %v out of range", errs.ErrTimestampParse, sec)
	}

	whole, frac := math.Modf(sec)
	t := time.Unix(int64(whole), int64(math.Round(frac*1e9))).UTC()
	return &t, nil
}
