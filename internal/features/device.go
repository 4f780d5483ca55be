package features

import (
	"strings"

	"github.com/opensource-finance/shrike/internal/domain"
)

// Address-distance constants. This is a coarse proxy for geodistance, not a
// geocoded measurement: different country, city, or postal code each map to
// a fixed magnitude.
const (
	distanceDifferentCountry = 1000
	distanceDifferentCity    = 100
	distanceDifferentPostal  = 10
)

const highCountryRiskScore = 80

func (e *Extractor) deviceFeatures(fv domain.FeatureVector, event *domain.Event) {
	fv["has_device_fingerprint"] = boolFeature(event.DeviceFingerprint != "")
	fv["device_fingerprint_length"] = float64(len(event.DeviceFingerprint))
	fv["has_user_agent"] = boolFeature(event.UserAgent != "")

	e.userAgentFeatures(fv, event.UserAgent)
}

func (e *Extractor) userAgentFeatures(fv domain.FeatureVector, ua string) {
	fv["ua_is_mobile"] = 0
	fv["ua_is_tablet"] = 0
	fv["ua_is_bot"] = 0
	fv["ua_is_chrome"] = 0
	fv["ua_is_firefox"] = 0
	fv["ua_is_safari"] = 0
	fv["ua_os_windows"] = 0
	fv["ua_os_mac"] = 0
	fv["ua_os_linux"] = 0
	fv["ua_os_android"] = 0
	fv["ua_os_ios"] = 0

	if ua == "" {
		return
	}

	fv["ua_is_mobile"] = boolFeature(strings.Contains(ua, "Mobile"))
	fv["ua_is_tablet"] = boolFeature(strings.Contains(ua, "Tablet") || strings.Contains(ua, "iPad"))
	fv["ua_is_bot"] = boolFeature(strings.Contains(strings.ToLower(ua), "bot"))
	fv["ua_is_chrome"] = boolFeature(strings.Contains(ua, "Chrome"))
	fv["ua_is_firefox"] = boolFeature(strings.Contains(ua, "Firefox"))
	fv["ua_is_safari"] = boolFeature(strings.Contains(ua, "Safari") && !strings.Contains(ua, "Chrome"))

	// At most one OS flag, first match wins in fixed priority order.
	switch {
	case strings.Contains(ua, "Windows"):
		fv["ua_os_windows"] = 1
	case strings.Contains(ua, "Mac OS") || strings.Contains(ua, "macOS"):
		fv["ua_os_mac"] = 1
	case strings.Contains(ua, "Linux"):
		fv["ua_os_linux"] = 1
	case strings.Contains(ua, "Android"):
		fv["ua_os_android"] = 1
	case strings.Contains(ua, "iOS") || strings.Contains(ua, "iPhone"):
		fv["ua_os_ios"] = 1
	}
}

func (e *Extractor) addressFeatures(fv domain.FeatureVector, shipping, billing *domain.Address) {
	fv["has_shipping_address"] = boolFeature(shipping != nil)
	fv["has_billing_address"] = boolFeature(billing != nil)
	fv["addresses_match"] = 0
	fv["shipping_country_risk"] = 0
	fv["billing_country_risk"] = 0
	fv["address_distance_km"] = 0

	if shipping != nil && billing != nil {
		if shipping.Equal(billing) {
			fv["addresses_match"] = 1
		} else {
			fv["address_distance_km"] = addressDistance(shipping, billing)
		}
	}

	if shipping != nil && e.riskCountry[shipping.Country] {
		fv["shipping_country_risk"] = highCountryRiskScore
	}
	if billing != nil && e.riskCountry[billing.Country] {
		fv["billing_country_risk"] = highCountryRiskScore
	}
}

func addressDistance(a, b *domain.Address) float64 {
	switch {
	case a.Country != b.Country:
		return distanceDifferentCountry
	case a.City != b.City:
		return distanceDifferentCity
	case a.PostalCode != b.PostalCode:
		return distanceDifferentPostal
	default:
		return 0
	}
}
