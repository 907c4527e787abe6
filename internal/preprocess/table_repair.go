// Package preprocess holds text transforms applied to a document before it is
// chunked.
package preprocess

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	pureNumberLine = regexp.MustCompile(`^\d+$`)
	numericLine    = regexp.MustCompile(`^[\d\s.,€$£%]+$`)
	currencyLine   = regexp.MustCompile(`(?i)^\d+(?:[ \x{00A0}\x{202F}]\d{3})*(?:[.,]\d+)?\s*(?:€|\$|£|eur|euros?)$`)
	labelLine      = regexp.MustCompile(`^\p{L}[\p{L}\s'’()\-]*$`)
	colonArtifact  = regexp.MustCompile(`:[ \t]+:`)
)

// repairState is the position of the line cursor within a candidate
// Label -> Number -> Amount window.
type repairState int

const (
	stateScanning repairState = iota
	stateLabelSeen
	stateNumberSeen
)

// TableRepairer rewrites label/number/unit sequences that column-based text
// extraction spread over several lines into single "label: value" lines.
type TableRepairer struct{}

func NewTableRepairer() *TableRepairer { return &TableRepairer{} }

// Repair runs the line cursor state machine over text.
func (r *TableRepairer) Repair(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	state := stateScanning
	var label, number string
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		switch state {
		case stateScanning:
			switch {
			case isLabel(line):
				label = line
				state = stateLabelSeen
			case pureNumberLine.MatchString(line):
				// orphan remnant of an already associated value
			default:
				out = append(out, lines[i])
			}

		case stateLabelSeen:
			switch {
			case currencyLine.MatchString(line):
				out = append(out, label+": "+line)
				state = stateScanning
			case pureNumberLine.MatchString(line):
				number = line
				state = stateNumberSeen
			default:
				out = append(out, label)
				state = stateScanning
				i--
			}

		case stateNumberSeen:
			state = stateScanning
			if !currencyLine.MatchString(line) {
				out = append(out, label)
				i--
				continue
			}
			out = append(out, label+": "+line)
			if i+1 < len(lines) {
				fourth := strings.TrimSpace(lines[i+1])
				if fourth != "" && !numericLine.MatchString(fourth) {
					out = append(out, fourth+": "+number)
					i++
				}
			}
		}
	}
	if state != stateScanning {
		out = append(out, label)
	}

	return collapseArtifacts(out)
}

// Repair applies a TableRepairer to text.
func Repair(text string) string {
	return NewTableRepairer().Repair(text)
}

func isLabel(line string) bool {
	if utf8.RuneCountInString(line) <= 5 || strings.HasSuffix(line, ":") {
		return false
	}
	return labelLine.MatchString(line)
}

// collapseArtifacts keeps at most two consecutive blank lines and folds
// ":  :" duplications into a single colon.
func collapseArtifacts(lines []string) string {
	out := make([]string, 0, len(lines))
	blanks := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blanks++
			if blanks > 2 {
				continue
			}
		} else {
			blanks = 0
		}
		out = append(out, colonArtifact.ReplaceAllString(line, ":"))
	}
	return strings.Join(out, "\n")
}
