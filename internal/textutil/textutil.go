// Package textutil holds text shaping helpers for outbound chat messages:
// splitting long replies for platform limits, stripping stage directions
// from narration, and rendering character sheets.
package textutil

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// MaxMessageLength is the platform limit a single outbound message must fit.
const MaxMessageLength = 2000

var (
	parenRe    = regexp.MustCompile(`\([^)]*\)`)
	bracketRe  = regexp.MustCompile(`\[[^\]]*\]`)
	asteriskRe = regexp.MustCompile(`\*[^*]*\*`)
	spaceRe    = regexp.MustCompile(`\s+`)
	nonAlnumRe = regexp.MustCompile(`[^a-z0-9\s]`)
	sentenceRe = regexp.MustCompile(`([.!?])\s+`)
)

// Normalize lowercases text and strips everything but letters, digits and
// single spaces. Used for keyword matching.
func Normalize(text string) string {
	text = strings.ToLower(text)
	text = nonAlnumRe.ReplaceAllString(text, "")
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}

// RemoveStageDirections strips parenthesised, bracketed and *asterisked*
// spans a model tends to emit as meta commentary.
func RemoveStageDirections(text string) string {
	text = parenRe.ReplaceAllString(text, "")
	text = bracketRe.ReplaceAllString(text, "")
	text = asteriskRe.ReplaceAllString(text, "")
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}

// Split breaks text into parts no longer than max runes, preferring paragraph
// breaks, then sentence boundaries, then single words. max <= 0 uses
// MaxMessageLength.
func Split(text string, max int) []string {
	if max <= 0 {
		max = MaxMessageLength
	}
	if text == "" {
		return nil
	}
	if len([]rune(text)) <= max {
		return []string{text}
	}

	var parts []string
	var current string
	for _, paragraph := range strings.Split(text, "\n\n") {
		switch {
		case len([]rune(current))+len([]rune(paragraph))+2 > max:
			if current != "" {
				parts = append(parts, current)
			}
			if len([]rune(paragraph)) > max {
				sub := splitSentences(paragraph, max)
				parts = append(parts, sub[:len(sub)-1]...)
				current = sub[len(sub)-1]
			} else {
				current = paragraph
			}
		case current != "":
			current += "\n\n" + paragraph
		default:
			current = paragraph
		}
	}
	if current != "" {
		parts = append(parts, current)
	}
	return parts
}

func splitSentences(text string, max int) []string {
	// Keep the terminator with its sentence.
	marked := sentenceRe.ReplaceAllString(text, "$1\x00")
	sentences := strings.Split(marked, "\x00")

	var parts []string
	var current string
	for _, sentence := range sentences {
		switch {
		case len([]rune(sentence)) > max:
			if current != "" {
				parts = append(parts, current)
			}
			words := strings.Fields(sentence)
			current = words[0]
			for _, word := range words[1:] {
				if len([]rune(current))+len([]rune(word))+1 > max {
					parts = append(parts, current)
					current = word
				} else {
					current += " " + word
				}
			}
		case current != "" && len([]rune(current))+len([]rune(sentence))+1 > max:
			parts = append(parts, current)
			current = sentence
		case current != "":
			current += " " + sentence
		default:
			current = sentence
		}
	}
	if current != "" {
		parts = append(parts, current)
	}
	return parts
}

// Sheet is the subset of a character sheet FormatSheet renders. Stats and
// Skills map attribute names to values.
type Sheet struct {
	Name      string
	Race      string
	Class     string
	Level     int
	Stats     map[string]int
	Skills    map[string]int
	Inventory []string
	Backstory string
}

var statOrder = []string{"strength", "dexterity", "constitution", "intelligence", "wisdom", "charisma"}

// FormatSheet renders a character sheet as markdown.
func FormatSheet(s Sheet) string {
	if s.Name == "" {
		return "No character data available."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", s.Name)
	fmt.Fprintf(&b, "**Level %d %s %s**\n\n", s.Level, orUnknown(s.Race), orUnknown(s.Class))

	b.WriteString("## Stats\n")
	for _, stat := range statOrder {
		v, ok := s.Stats[stat]
		if !ok {
			v = 10
		}
		fmt.Fprintf(&b, "- %s: %d\n", title(stat), v)
	}
	b.WriteString("\n")

	if len(s.Skills) > 0 {
		b.WriteString("## Skills\n")
		names := make([]string, 0, len(s.Skills))
		for name := range s.Skills {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "  - %s: %d\n", name, s.Skills[name])
		}
		b.WriteString("\n")
	}

	if len(s.Inventory) > 0 {
		b.WriteString("## Inventory\n")
		for _, item := range s.Inventory {
			fmt.Fprintf(&b, "  - %s\n", item)
		}
		b.WriteString("\n")
	}

	backstory := s.Backstory
	if backstory == "" {
		backstory = "No backstory available."
	}
	fmt.Fprintf(&b, "## Backstory\n%s", backstory)
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
