// Package privacy scrubs personal data from user text before it leaves the
// process, either to the completion provider or to the audit trail.
package privacy

import (
	"regexp"
	"sort"
	"strings"
)

// PIIType represents different types of PII that can be detected
type PIIType string

const (
	PIITypeEmail      PIIType = "email"
	PIITypePhone      PIIType = "phone"
	PIITypeNationalID PIIType = "national_id"
	PIITypeCreditCard PIIType = "credit_card"
	PIITypeIBAN       PIIType = "iban"
)

// PIIDetection represents a detected PII instance
type PIIDetection struct {
	Type     PIIType
	Value    string
	StartPos int
	EndPos   int
}

type detector struct {
	piiType PIIType
	pattern *regexp.Regexp
	valid   func(string) bool
}

// detectors run in priority order; on overlapping matches the earlier
// detector wins
var detectors = []detector{
	{PIITypeEmail, regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}`), nil},
	{PIITypeIBAN, regexp.MustCompile(`\bIL\d{2} ?(?:\d{4} ?){4}\d{3}\b`), nil},
	{PIITypeCreditCard, regexp.MustCompile(`\b(?:\d[ \-]?){12,18}\d\b`), luhnCheck},
	// Israeli mobile and landline numbers, local or +972
	{PIITypePhone, regexp.MustCompile(`(?:\+972[\- ]?|\b0)(?:5\d|7\d|[2-489])[\- ]?\d{3}[\- ]?\d{4}\b`), nil},
	// teudat zehut: nine digits with a Luhn-style check digit
	{PIITypeNationalID, regexp.MustCompile(`\b\d{9}\b`), luhnCheck},
}

// DetectPII returns true if the text likely contains PII
func DetectPII(text string) bool {
	return len(DetectAllPII(text)) > 0
}

// DetectAllPII returns the non-overlapping PII found in text, in order of
// position
func DetectAllPII(text string) []PIIDetection {
	type candidate struct {
		PIIDetection
		priority int
	}

	var found []candidate
	for priority, d := range detectors {
		for _, match := range d.pattern.FindAllStringIndex(text, -1) {
			value := text[match[0]:match[1]]
			if d.valid != nil && !d.valid(value) {
				continue
			}
			found = append(found, candidate{
				PIIDetection: PIIDetection{
					Type:     d.piiType,
					Value:    value,
					StartPos: match[0],
					EndPos:   match[1],
				},
				priority: priority,
			})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].StartPos != found[j].StartPos {
			return found[i].StartPos < found[j].StartPos
		}
		return found[i].priority < found[j].priority
	})

	var detections []PIIDetection
	end := -1
	for _, c := range found {
		if c.StartPos < end {
			continue
		}
		detections = append(detections, c.PIIDetection)
		end = c.EndPos
	}
	return detections
}

// RedactPII replaces all detected PII in text with a type marker
func RedactPII(text string) string {
	detections := DetectAllPII(text)
	if len(detections) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, d := range detections {
		b.WriteString(text[last:d.StartPos])
		b.WriteString(redactionString(d.Type))
		last = d.EndPos
	}
	b.WriteString(text[last:])
	return b.String()
}

func redactionString(piiType PIIType) string {
	switch piiType {
	case PIITypeEmail:
		return "[EMAIL_REDACTED]"
	case PIITypePhone:
		return "[PHONE_REDACTED]"
	case PIITypeNationalID:
		return "[ID_REDACTED]"
	case PIITypeCreditCard:
		return "[CC_REDACTED]"
	case PIITypeIBAN:
		return "[IBAN_REDACTED]"
	default:
		return "[REDACTED]"
	}
}

// luhnCheck validates a digit string with the Luhn algorithm. Spaces and
// dashes are ignored.
func luhnCheck(number string) bool {
	number = strings.NewReplacer(" ", "", "-", "").Replace(number)
	if len(number) < 9 || len(number) > 19 {
		return false
	}

	sum := 0
	isSecond := false

	// Traverse from right to left
	for i := len(number) - 1; i >= 0; i-- {
		digit := int(number[i] - '0')
		if digit < 0 || digit > 9 {
			return false
		}

		if isSecond {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}

		sum += digit
		isSecond = !isSecond
	}

	return sum%10 == 0
}
