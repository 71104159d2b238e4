package filters

import (
	"fmt"
	"strings"

	"filterfinder/internal/timeseries"
)

// Family identifies a smoothing filter family.
type Family string

const (
	// FamilyMovingAverage is the simple rolling mean
	FamilyMovingAverage Family = "moving_average"
	// FamilyExpMovingAverage is the exponentially weighted moving average
	FamilyExpMovingAverage Family = "exp_moving_average"
	// FamilyKalman is the fixed constant-velocity Kalman smoother
	FamilyKalman Family = "kalman"
)

// Families lists every supported family in search order.
func Families() []Family {
	return []Family{FamilyMovingAverage, FamilyExpMovingAverage, FamilyKalman}
}

// ParseFamily accepts the canonical names and the short aliases ma, ema and kf.
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ma", "sma", string(FamilyMovingAverage):
		return FamilyMovingAverage, nil
	case "ema", "ewma", string(FamilyExpMovingAverage):
		return FamilyExpMovingAverage, nil
	case "kf", string(FamilyKalman):
		return FamilyKalman, nil
	default:
		return "", fmt.Errorf("unknown filter family %q", s)
	}
}

// Params is one grid candidate. The set of implementations is closed:
// MovingAverage, ExpMovingAverage and Kalman.
//
// P is the autoregressive lag order applied to the raw series and Q the lag
// order applied to the filtered series. Both are feature-table
// hyperparameters carried alongside the filter-specific fields.
type Params interface {
	Family() Family
	LagOrders() (p, q int)
	String() string
	sealed()
}

// MovingAverage selects a rolling mean over Window samples. Window 0 is the
// un-smoothed baseline.
type MovingAverage struct {
	Q      int `json:"q"`
	Window int `json:"window"`
	P      int `json:"p"`
}

// ExpMovingAverage selects an EWMA with decay Alpha in (0,1).
type ExpMovingAverage struct {
	Q     int     `json:"q"`
	Alpha float64 `json:"alpha"`
	P     int     `json:"p"`
}

// Kalman selects the fixed two-state Kalman smoother.
type Kalman struct {
	Q int `json:"q"`
	P int `json:"p"`
}

func (MovingAverage) Family() Family    { return FamilyMovingAverage }
func (ExpMovingAverage) Family() Family { return FamilyExpMovingAverage }
func (Kalman) Family() Family           { return FamilyKalman }

func (m MovingAverage) LagOrders() (int, int)    { return m.P, m.Q }
func (e ExpMovingAverage) LagOrders() (int, int) { return e.P, e.Q }
func (k Kalman) LagOrders() (int, int)           { return k.P, k.Q }

func (m MovingAverage) String() string {
	return fmt.Sprintf("MovingAverage(q=%d, window=%d, p=%d)", m.Q, m.Window, m.P)
}

func (e ExpMovingAverage) String() string {
	return fmt.Sprintf("ExpMovingAverage(q=%d, alpha=%.2f, p=%d)", e.Q, e.Alpha, e.P)
}

func (k Kalman) String() string {
	return fmt.Sprintf("Kalman(q=%d, p=%d)", k.Q, k.P)
}

func (MovingAverage) sealed()    {}
func (ExpMovingAverage) sealed() {}
func (Kalman) sealed()           {}

// Validate checks the filter-specific fields of params.
func Validate(params Params) error {
	p, q := params.LagOrders()
	if p < 0 || q < 0 {
		return fmt.Errorf("%s: lag orders must be non-negative", params)
	}

	switch v := params.(type) {
	case MovingAverage:
		if v.Window < 0 {
			return fmt.Errorf("%s: window must be non-negative", v)
		}
	case ExpMovingAverage:
		if v.Alpha <= 0 || v.Alpha >= 1 {
			return fmt.Errorf("%s: alpha must be in (0,1)", v)
		}
	case Kalman:
	default:
		return fmt.Errorf("unsupported params type %T", params)
	}
	return nil
}

// Apply smooths series with the filter selected by params. The result has the
// same length and index as the input.
func Apply(series *timeseries.Series, params Params) (*timeseries.Series, error) {
	if err := Validate(params); err != nil {
		return nil, err
	}

	switch v := params.(type) {
	case MovingAverage:
		return MovingAverageFilter(series, v.Window), nil
	case ExpMovingAverage:
		return ExpMovingAverageFilter(series, v.Alpha), nil
	case Kalman:
		return KalmanSmooth(series, DefaultKalmanModel())
	default:
		return nil, fmt.Errorf("unsupported params type %T", params)
	}
}
