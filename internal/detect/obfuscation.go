// internal/detect/obfuscation.go
package detect

import "regexp"

var hexPattern = regexp.MustCompile(`0x[0-9a-fA-F]+`)

// Detector flags likely obfuscated script code by measuring the density
// of hexadecimal literal tokens. Minifier/obfuscator output (e.g. the
// _0x4a2b naming scheme) is saturated with them; hand-written code is not.
type Detector struct {
	// Threshold is the match count that triggers a density check.
	Threshold int
	// DensityThreshold is the matches-per-byte ratio above which the
	// code is considered obfuscated.
	DensityThreshold float64
	// SampleRatio is the fraction of the body scanned before deciding
	// whether the rest is worth scanning at all.
	SampleRatio float64
}

// DefaultDetector returns the tuning used in production.
func DefaultDetector() Detector {
	return Detector{
		Threshold:        5,
		DensityThreshold: 0.05,
		SampleRatio:      0.25,
	}
}

// Scan reports whether code looks obfuscated.
//
// It scans a prefix of SampleRatio of the body first. If the match count
// exceeds Threshold inside the prefix, the verdict is the prefix density
// alone. If the prefix finishes under Threshold and its density is at or
// below DensityThreshold, the body is clean and the rest is never read.
// Only when the prefix is dense but sparse in absolute count does the
// scan continue over the remainder, with the density denominator widened
// to the full body length.
func (d Detector) Scan(code string) bool {
	if len(code) == 0 {
		return false
	}

	sampleLen := int(float64(len(code)) * d.SampleRatio)
	count := 0

	if sampleLen > 0 {
		count = countHex(code[:sampleLen], d.Threshold)
		if count > d.Threshold {
			return float64(count)/float64(sampleLen) > d.DensityThreshold
		}
		if float64(count)/float64(sampleLen) <= d.DensityThreshold {
			return false
		}
	}

	// Dense prefix but below the absolute threshold: keep counting over
	// the rest of the body against the full length.
	for idx := sampleLen; idx < len(code); {
		loc := hexPattern.FindStringIndex(code[idx:])
		if loc == nil {
			break
		}
		count++
		idx += loc[1]
		if count > d.Threshold {
			return float64(count)/float64(len(code)) > d.DensityThreshold
		}
	}

	return float64(count)/float64(len(code)) > d.DensityThreshold
}

// countHex counts hex literal tokens in s, stopping early once the count
// passes limit.
func countHex(s string, limit int) int {
	count := 0
	for idx := 0; idx < len(s); {
		loc := hexPattern.FindStringIndex(s[idx:])
		if loc == nil {
			break
		}
		count++
		idx += loc[1]
		if count > limit {
			break
		}
	}
	return count
}
