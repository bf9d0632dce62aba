package core

import "regexp"

// Third-party aggregator organizations, tried in this order after a
// source's own API and search page come up empty.
const (
	ProviderZipLogix = "ZipLogix"
	ProviderDotLoop  = "DotLoop"
)

// ProviderOrder is the fixed fallback order across aggregators.
var ProviderOrder = []string{ProviderZipLogix, ProviderDotLoop}

// BuiltInSources returns the default catalog of state associations and
// third-party providers. A fresh slice is returned on every call.
func BuiltInSources() []FormSource {
	return []FormSource{
		{
			Organization:       "California Association of REALTORS®",
			BaseURL:            "https://www.car.org",
			SearchEndpoint:     "/legal/standard-forms/search",
			FormPatterns:       []string{"RPA", "AVID", "TDS", "NHD"},
			VersionPattern:     regexp.MustCompile(`(\d+\.\d+\.\d+)|(\d{2}\/\d{2}\/\d{4})`),
			RateLimitPerMinute: 30,
		},
		{
			Organization:       "National Association of REALTORS®",
			BaseURL:            "https://www.nar.realtor",
			SearchEndpoint:     "/realtor-forms",
			FormPatterns:       []string{"Purchase Agreement", "Disclosure", "Listing Agreement"},
			VersionPattern:     regexp.MustCompile(`v(\d+\.\d+)`),
			RateLimitPerMinute: 60,
		},
		{
			Organization:       "Arizona Association of REALTORS®",
			BaseURL:            "https://www.aaronline.com",
			SearchEndpoint:     "/forms",
			FormPatterns:       []string{"Contract", "SPDS", "LSC"},
			VersionPattern:     regexp.MustCompile(`Rev\.\s*(\d{2}\/\d{2})`),
			RateLimitPerMinute: 30,
		},
		{
			Organization:       "Texas REALTORS®",
			BaseURL:            "https://www.texasrealestate.com",
			SearchEndpoint:     "/realtors/forms",
			FormPatterns:       []string{"1-4 Family Residential", "Seller's Disclosure", "Residential Lease"},
			VersionPattern:     regexp.MustCompile(`TXR\s*(\d+)-(\d+)`),
			RateLimitPerMinute: 40,
		},
		{
			Organization:       "Florida REALTORS®",
			BaseURL:            "https://www.floridarealtors.org",
			SearchEndpoint:     "/forms-and-contracts",
			FormPatterns:       []string{"Residential Contract", "Disclosure Statement", "Lease Agreement"},
			VersionPattern:     regexp.MustCompile(`FR-(\d+)\s*Rev\.\s*(\d{2}\/\d{2})`),
			RateLimitPerMinute: 30,
		},
		{
			Organization:       "New York State Association of REALTORS®",
			BaseURL:            "https://www.nysar.com",
			SearchEndpoint:     "/legal/forms",
			FormPatterns:       []string{"Purchase Contract", "Property Condition Disclosure", "Counter Offer"},
			VersionPattern:     regexp.MustCompile(`Form\s*(\d{4})\s*Rev\.\s*(\d{2}\/\d{2})`),
			RateLimitPerMinute: 30,
		},
		{
			Organization:       "Hawaii REALTORS®",
			BaseURL:            "https://hawaiirealtors.com",
			SearchEndpoint:     "/standard-forms",
			FormPatterns:       []string{"Purchase Contract", "Seller's Real Property Disclosure", "Rental Agreement"},
			VersionPattern:     regexp.MustCompile(`RR(\d{3})\s*Rev\.\s*(\d{2}\/\d{2})`),
			RateLimitPerMinute: 20,
		},
		{
			Organization:       "Illinois REALTORS®",
			BaseURL:            "https://www.illinoisrealtors.org",
			SearchEndpoint:     "/legal/forms",
			FormPatterns:       []string{"Multi-Board Residential", "Disclosure Report", "Exclusive Listing"},
			VersionPattern:     regexp.MustCompile(`Form\s*(\d+)\s*v(\d+\.\d+)`),
			RateLimitPerMinute: 30,
		},
		{
			Organization:       ProviderZipLogix,
			BaseURL:            "https://www.ziplogix.com",
			SearchEndpoint:     "/forms-catalog",
			FormPatterns:       []string{"Purchase Agreement", "Disclosure", "Listing Contract"},
			RateLimitPerMinute: 100,
		},
		{
			Organization:       ProviderDotLoop,
			BaseURL:            "https://www.dotloop.com",
			SearchEndpoint:     "/forms",
			FormPatterns:       []string{"Purchase Contract", "Disclosure Statement", "Listing Agreement"},
			RateLimitPerMinute: 100,
		},
	}
}
