package decision

import "math"

// LossEstimator computes expected monetary loss from fraud probability and
// exposure: probability x loss-given-fraud x amount.
type LossEstimator struct {
	// LossGivenFraud models partial recovery: 0.8 assumes 20% of the
	// exposure is recovered after a confirmed fraud.
	LossGivenFraud float64
}

// NewLossEstimator returns an estimator with the given recovery constant.
func NewLossEstimator(lossGivenFraud float64) *LossEstimator {
	if lossGivenFraud <= 0 {
		lossGivenFraud = 0.8
	}
	return &LossEstimator{LossGivenFraud: lossGivenFraud}
}

// ExpectedLoss is non-negative by construction and rounded to currency
// precision.
func (e *LossEstimator) ExpectedLoss(amount, probability float64) float64 {
	loss := probability * e.LossGivenFraud * amount
	return math.Round(loss*100) / 100
}
