package scoring

import (
	"math"
	"math/rand"
)

// SyntheticTrainingSet generates the deterministic cold-start corpus used
// when no snapshot and no labeled data exist. It is a demo stand-in, not a
// substitute for training on real outcomes: fraud rows are drawn from
// shifted distributions over the salient features so the bootstrap models
// separate the obvious cases.
func SyntheticTrainingSet() []TrainingSample {
	rng := rand.New(rand.NewSource(42))
	samples := make([]TrainingSample, 0, 600)

	for i := 0; i < 500; i++ {
		amount := math.Abs(rng.NormFloat64()*3000 + 4000)
		samples = append(samples, TrainingSample{
			Features: syntheticFeatures(rng, amount, false),
			Fraud:    false,
		})
	}
	for i := 0; i < 100; i++ {
		amount := math.Abs(rng.NormFloat64()*40000 + 60000)
		samples = append(samples, TrainingSample{
			Features: syntheticFeatures(rng, amount, true),
			Fraud:    true,
		})
	}
	return samples
}

func syntheticFeatures(rng *rand.Rand, amount float64, fraud bool) map[string]float64 {
	f := map[string]float64{
		"amount":      amount,
		"amount_log":  math.Log1p(amount),
		"amount_sqrt": math.Sqrt(amount),
	}

	if fraud {
		f["customer_is_new"] = coin(rng, 0.7)
		f["ip_is_vpn"] = coin(rng, 0.5)
		f["ip_is_tor"] = coin(rng, 0.1)
		f["email_is_disposable"] = coin(rng, 0.4)
		f["email_domain_risk"] = f["email_is_disposable"] * 90
		f["addresses_match"] = coin(rng, 0.2)
		f["customer_total_orders"] = math.Floor(math.Abs(rng.NormFloat64() * 2))
		f["customer_chargeback_count"] = math.Floor(math.Abs(rng.NormFloat64() * 1.5))
		f["transactions_last_hour"] = math.Floor(math.Abs(rng.NormFloat64()*3 + 2))
		f["customer_risk_score"] = 50 + rng.Float64()*50
		f["unusual_amount"] = coin(rng, 0.6)
	} else {
		f["customer_is_new"] = coin(rng, 0.2)
		f["ip_is_vpn"] = coin(rng, 0.03)
		f["ip_is_tor"] = 0
		f["email_is_disposable"] = coin(rng, 0.01)
		f["email_domain_risk"] = f["email_is_disposable"] * 90
		f["addresses_match"] = coin(rng, 0.8)
		f["customer_total_orders"] = math.Floor(math.Abs(rng.NormFloat64()*10 + 8))
		f["customer_chargeback_count"] = 0
		f["transactions_last_hour"] = math.Floor(math.Abs(rng.NormFloat64() * 0.8))
		f["customer_risk_score"] = rng.Float64() * 40
		f["unusual_amount"] = coin(rng, 0.05)
	}

	f["customer_is_returning"] = 1 - f["customer_is_new"]
	f["new_customer_high_amount"] = f["customer_is_new"] * amount
	f["vpn_new_customer"] = f["ip_is_vpn"] * f["customer_is_new"]
	f["disposable_email_high_amount"] = f["email_is_disposable"] * amount
	f["amount_x_risk"] = amount * f["customer_risk_score"]
	return f
}

func coin(rng *rand.Rand, p float64) float64 {
	if rng.Float64() < p {
		return 1
	}
	return 0
}
