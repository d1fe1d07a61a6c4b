package tools

import (
	"fmt"
	"strings"
)

// SpokenUSD renders a price in cents as a spoken-word currency phrase, e.g.
// 2450 → "twenty-four dollars and fifty cents". The ultimate output of every
// tool result is audio, so amounts are pre-formatted before they enter the
// prompt context — a raw "$24.50" tends to be read out as "dollar sign two
// four point five zero" by downstream synthesis.
func SpokenUSD(cents int) string {
	if cents < 0 {
		return "minus " + SpokenUSD(-cents)
	}

	dollars := cents / 100
	rem := cents % 100

	dollarWord := "dollars"
	if dollars == 1 {
		dollarWord = "dollar"
	}
	centWord := "cents"
	if rem == 1 {
		centWord = "cent"
	}

	switch {
	case dollars == 0 && rem == 0:
		return "zero dollars"
	case dollars == 0:
		return fmt.Sprintf("%s %s", numberWords(rem), centWord)
	case rem == 0:
		return fmt.Sprintf("%s %s", numberWords(dollars), dollarWord)
	default:
		return fmt.Sprintf("%s %s and %s %s", numberWords(dollars), dollarWord, numberWords(rem), centWord)
	}
}

var (
	onesWords = []string{
		"zero", "one", "two", "three", "four", "five", "six", "seven", "eight",
		"nine", "ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen",
		"sixteen", "seventeen", "eighteen", "nineteen",
	}
	tensWords = []string{
		"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy",
		"eighty", "ninety",
	}
)

// numberWords spells out a non-negative integer in English. Supports values
// up to the hundreds of millions, which comfortably covers catalog prices.
func numberWords(n int) string {
	switch {
	case n < 20:
		return onesWords[n]
	case n < 100:
		w := tensWords[n/10]
		if r := n % 10; r != 0 {
			w += "-" + onesWords[r]
		}
		return w
	case n < 1_000:
		return group(n, 100, "hundred")
	case n < 1_000_000:
		return group(n, 1_000, "thousand")
	default:
		return group(n, 1_000_000, "million")
	}
}

// group renders n as "<quotient> <unit> <remainder>".
func group(n, base int, unit string) string {
	var b strings.Builder
	b.WriteString(numberWords(n / base))
	b.WriteString(" ")
	b.WriteString(unit)
	if r := n % base; r != 0 {
		b.WriteString(" ")
		b.WriteString(numberWords(r))
	}
	return b.String()
}
