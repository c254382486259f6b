package verify

import "strings"

// CodeMatch reports whether the issued one-time code was visible in the
// OCR text, with a tiered confidence.
type CodeMatch struct {
	Found      bool    `json:"found"`
	Confidence float64 `json:"confidence"`
	Tier       string  `json:"tier"`
}

// LocateCode searches OCR text for the expected code (format PREFIX-NNNNN).
// Tiers degrade gracefully because OCR routinely drops punctuation or
// splits tokens across lines: exact substring, then dash-insensitive, then
// all segments present in any order, then at least two segments present.
func LocateCode(text, code string) CodeMatch {
	haystack := strings.ToUpper(text)
	needle := strings.ToUpper(strings.TrimSpace(code))
	if needle == "" {
		return CodeMatch{Tier: "none"}
	}

	if strings.Contains(haystack, needle) {
		return CodeMatch{Found: true, Confidence: 100, Tier: "exact"}
	}

	dashless := strings.ReplaceAll(haystack, "-", "")
	if strings.Contains(dashless, strings.ReplaceAll(needle, "-", "")) {
		return CodeMatch{Found: true, Confidence: 90, Tier: "dashless"}
	}

	segments := strings.Split(needle, "-")
	present := 0
	for _, segment := range segments {
		if segment != "" && strings.Contains(haystack, segment) {
			present++
		}
	}
	if len(segments) > 0 && present == len(segments) {
		return CodeMatch{Found: true, Confidence: 75, Tier: "segments"}
	}
	if present >= 2 {
		return CodeMatch{Found: true, Confidence: 50, Tier: "partial"}
	}
	return CodeMatch{Tier: "none"}
}
