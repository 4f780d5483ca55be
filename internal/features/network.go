package features

import (
	"net/mail"
	"net/netip"
	"strings"

	"github.com/opensource-finance/shrike/internal/domain"
)

// Fixed risk scores assigned on network-range matches. An unparseable IP is
// worth a medium score on its own: legitimate clients rarely send garbage.
const (
	vpnRiskScore       = 75
	torRiskScore       = 90
	invalidIPRiskScore = 50
)

func (e *Extractor) ipFeatures(fv domain.FeatureVector, ipAddress string) {
	fv["has_ip"] = 0
	fv["ip_is_private"] = 0
	fv["ip_is_vpn"] = 0
	fv["ip_is_tor"] = 0
	fv["ip_risk_score"] = 0

	if ipAddress == "" {
		return
	}
	fv["has_ip"] = 1

	ip, err := netip.ParseAddr(ipAddress)
	if err != nil {
		fv["ip_risk_score"] = invalidIPRiskScore
		return
	}

	fv["ip_is_private"] = boolFeature(ip.IsPrivate() || ip.IsLoopback())

	// First matching range wins within each category.
	for _, p := range e.vpnRanges {
		if p.Contains(ip) {
			fv["ip_is_vpn"] = 1
			fv["ip_risk_score"] = vpnRiskScore
			break
		}
	}
	for _, p := range e.torRanges {
		if p.Contains(ip) {
			fv["ip_is_tor"] = 1
			fv["ip_risk_score"] = torRiskScore
			break
		}
	}
}

func (e *Extractor) emailFeatures(fv domain.FeatureVector, email string) {
	fv["has_email"] = 0
	fv["email_is_valid"] = 0
	fv["email_is_disposable"] = 0
	fv["email_has_plus"] = 0
	fv["email_domain_risk"] = 0
	fv["email_length"] = 0
	fv["email_numbers_count"] = 0

	if email == "" {
		return
	}
	fv["has_email"] = 1
	fv["email_length"] = float64(len(email))

	// Malformed email short-circuits the remaining email features.
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return
	}
	email = addr.Address
	fv["email_is_valid"] = 1

	at := strings.LastIndex(email, "@")
	local := email[:at]
	emailDomain := strings.ToLower(email[at+1:])

	// "+" modifiers let one mailbox masquerade as many accounts.
	domainRisk := 0.0
	if strings.Contains(local, "+") {
		fv["email_has_plus"] = 1
		domainRisk += 20
	}

	digits := 0
	for _, c := range email {
		if c >= '0' && c <= '9' {
			digits++
		}
	}
	fv["email_numbers_count"] = float64(digits)

	for disp := range e.disposable {
		if strings.Contains(emailDomain, disp) {
			fv["email_is_disposable"] = 1
			domainRisk = 90
			break
		}
	}

	// Suffix risk takes the maximum across all matching rules.
	for tld, risk := range e.tldRisk {
		if strings.HasSuffix(emailDomain, tld) && risk > domainRisk {
			domainRisk = risk
		}
	}

	fv["email_domain_risk"] = domainRisk
}
