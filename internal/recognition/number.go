package recognition

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type numberFormat struct {
	group   string
	decimal string
	pattern *regexp.Regexp
}

func newFormat(group, decimal string) numberFormat {
	g := "[" + regexp.QuoteMeta(group) + "]"
	d := regexp.QuoteMeta(decimal)
	return numberFormat{
		group:   group,
		decimal: decimal,
		pattern: regexp.MustCompile(`[-+]?\d{1,3}(?:` + g + `\d{3})+(?:` + d + `\d+)?|[-+]?\d+(?:` + d + `\d+)?`),
	}
}

var (
	commaDecimal = newFormat(".", ",")
	formats      = map[string]numberFormat{
		"en": newFormat(",", "."),
		"es": commaDecimal,
		"pt": commaDecimal,
		"de": commaDecimal,
		"it": commaDecimal,
		"nl": commaDecimal,
		"fr": newFormat(" \u00a0\u202f", ","),
	}
)

// BaseLanguage returns the ISO 639 base of a locale tag, "en" when unknown.
func BaseLanguage(locale string) string {
	if locale == "" {
		return "en"
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return "en"
	}
	base, _ := tag.Base()
	return base.String()
}

// ParseInteger extracts the first number in text using the locale's digit
// separators, falling back to number words. Decimals are rounded.
func ParseInteger(text, locale string) (int64, bool) {
	lang := BaseLanguage(locale)

	if n, ok := parseDigits(text, lang); ok {
		return n, true
	}
	if table, ok := wordTables[lang]; ok {
		if n, ok := table.parse(text); ok {
			return n, true
		}
	}
	if lang != "en" {
		return wordTables["en"].parse(text)
	}
	return 0, false
}

func parseDigits(text, lang string) (int64, bool) {
	f, ok := formats[lang]
	if !ok {
		f = formats["en"]
	}

	match := f.pattern.FindString(text)
	if match == "" {
		return 0, false
	}

	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(f.group, r) {
			return -1
		}
		return r
	}, match)
	if !strings.Contains(cleaned, f.decimal) {
		// Whole numbers stay exact; out-of-range input fails instead of wrapping.
		n, err := strconv.ParseInt(cleaned, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}

	v, err := strconv.ParseFloat(strings.Replace(cleaned, f.decimal, ".", 1), 64)
	if err != nil {
		return 0, false
	}
	v = math.Round(v)
	if v >= 0x1p63 || v < -0x1p63 {
		return 0, false
	}
	return int64(v), true
}

type wordTable struct {
	values      map[string]int64
	multipliers map[string]int64
	scales      map[string]int64
	connectors  map[string]bool
	// compound splits single tokens such as German "zweihundertfünfunddreißig"
	// into known words.
	compound bool
	// joins rewrites multi-word forms before tokenizing.
	joins *strings.Replacer
}

func (t wordTable) parse(text string) (int64, bool) {
	folded := fold(text)
	if t.joins != nil {
		folded = t.joins.Replace(folded)
	}
	tokens := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r)
	})

	var total, current int64
	started := false

	for _, tok := range t.expand(tokens) {
		if v, ok := t.values[tok]; ok {
			current += v
			started = true
			continue
		}
		if m, ok := t.multipliers[tok]; ok {
			if current == 0 {
				current = 1
			}
			if current > math.MaxInt64/m {
				return 0, false
			}
			current *= m
			started = true
			continue
		}
		if s, ok := t.scales[tok]; ok {
			if current == 0 {
				current = 1
			}
			if current > (math.MaxInt64-total)/s {
				return 0, false
			}
			total += current * s
			current = 0
			started = true
			continue
		}
		if started && t.connectors[tok] {
			continue
		}
		if started {
			break
		}
	}

	if !started {
		return 0, false
	}
	return total + current, true
}

func (t wordTable) expand(tokens []string) []string {
	if !t.compound {
		return tokens
	}
	vocab := t.vocabulary()
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if parts, ok := segment(tok, vocab); ok {
			out = append(out, parts...)
			continue
		}
		out = append(out, tok)
	}
	return out
}

// vocabulary lists every known word, longest first.
func (t wordTable) vocabulary() []string {
	var words []string
	for _, m := range []map[string]int64{t.values, t.multipliers, t.scales} {
		for w := range m {
			if w != "" {
				words = append(words, w)
			}
		}
	}
	for w := range t.connectors {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})
	return words
}

// segment splits tok entirely into vocabulary words, preferring longer
// words and backtracking when a prefix leaves an unsplittable rest.
func segment(tok string, vocab []string) ([]string, bool) {
	if tok == "" {
		return nil, true
	}
	for _, w := range vocab {
		if !strings.HasPrefix(tok, w) {
			continue
		}
		if rest, ok := segment(tok[len(w):], vocab); ok {
			return append([]string{w}, rest...), true
		}
	}
	return nil, false
}

var foldTransform = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// fold lowercases and strips diacritics ("Dreißig" keeps ß, "fünf" → "funf").
func fold(s string) string {
	out, _, err := transform.String(foldTransform, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

func seq(words ...string) map[string]int64 {
	m := make(map[string]int64, len(words))
	for i, w := range words {
		if w != "" {
			m[w] = int64(i)
		}
	}
	return m
}

func with(m map[string]int64, extra map[string]int64) map[string]int64 {
	for k, v := range extra {
		m[k] = v
	}
	return m
}

var wordTables = map[string]wordTable{
	"en": {
		values: with(seq("zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
			"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen", "seventeen", "eighteen", "nineteen"),
			map[string]int64{"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50, "sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90}),
		multipliers: map[string]int64{"hundred": 100},
		scales:      map[string]int64{"thousand": 1_000, "million": 1_000_000},
		connectors:  map[string]bool{"and": true},
	},
	"es": {
		values: with(seq("cero", "uno", "dos", "tres", "cuatro", "cinco", "seis", "siete", "ocho", "nueve",
			"diez", "once", "doce", "trece", "catorce", "quince", "dieciseis", "diecisiete", "dieciocho", "diecinueve",
			"veinte", "veintiuno", "veintidos", "veintitres", "veinticuatro", "veinticinco", "veintiseis", "veintisiete", "veintiocho", "veintinueve"),
			map[string]int64{"un": 1, "una": 1, "treinta": 30, "cuarenta": 40, "cincuenta": 50, "sesenta": 60, "setenta": 70, "ochenta": 80, "noventa": 90,
				"cien": 100, "ciento": 100, "doscientos": 200, "trescientos": 300, "cuatrocientos": 400, "quinientos": 500,
				"seiscientos": 600, "setecientos": 700, "ochocientos": 800, "novecientos": 900}),
		scales:     map[string]int64{"mil": 1_000, "millon": 1_000_000, "millones": 1_000_000},
		connectors: map[string]bool{"y": true},
	},
	"pt": {
		values: with(seq("zero", "um", "dois", "tres", "quatro", "cinco", "seis", "sete", "oito", "nove",
			"dez", "onze", "doze", "treze", "catorze", "quinze", "dezesseis", "dezessete", "dezoito", "dezenove", "vinte"),
			map[string]int64{"uma": 1, "duas": 2, "quatorze": 14, "dezasseis": 16, "dezassete": 17, "dezanove": 19,
				"trinta": 30, "quarenta": 40, "cinquenta": 50, "sessenta": 60, "setenta": 70, "oitenta": 80, "noventa": 90,
				"cem": 100, "cento": 100, "duzentos": 200, "trezentos": 300, "quatrocentos": 400, "quinhentos": 500,
				"seiscentos": 600, "setecentos": 700, "oitocentos": 800, "novecentos": 900}),
		scales:     map[string]int64{"mil": 1_000, "milhao": 1_000_000, "milhoes": 1_000_000},
		connectors: map[string]bool{"e": true},
	},
	"fr": {
		values: with(seq("zero", "un", "deux", "trois", "quatre", "cinq", "six", "sept", "huit", "neuf",
			"dix", "onze", "douze", "treize", "quatorze", "quinze", "seize", "", "", "", "vingt"),
			map[string]int64{"une": 1, "trente": 30, "quarante": 40, "cinquante": 50, "soixante": 60,
				"quatrevingt": 80, "quatrevingts": 80}),
		multipliers: map[string]int64{"cent": 100, "cents": 100},
		scales:      map[string]int64{"mille": 1_000, "million": 1_000_000, "millions": 1_000_000},
		connectors:  map[string]bool{"et": true},
		joins:       strings.NewReplacer("quatre-vingt", "quatrevingt", "quatre vingt", "quatrevingt"),
	},
	"de": {
		values: with(seq("null", "eins", "zwei", "drei", "vier", "funf", "sechs", "sieben", "acht", "neun",
			"zehn", "elf", "zwolf", "dreizehn", "vierzehn", "funfzehn", "sechzehn", "siebzehn", "achtzehn", "neunzehn", "zwanzig"),
			map[string]int64{"ein": 1, "eine": 1, "dreißig": 30, "dreissig": 30, "vierzig": 40, "funfzig": 50,
				"sechzig": 60, "siebzig": 70, "achtzig": 80, "neunzig": 90}),
		multipliers: map[string]int64{"hundert": 100},
		scales:      map[string]int64{"tausend": 1_000, "million": 1_000_000, "millionen": 1_000_000},
		connectors:  map[string]bool{"und": true},
		compound:    true,
	},
}
