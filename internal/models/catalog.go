// internal/models/catalog.go
package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Option is one member of a closed enumeration (provider, tier or service category).
type Option struct {
	Value   string            `mapstructure:"value" json:"value" yaml:"value"`
	Labels  map[string]string `mapstructure:"labels" json:"labels,omitempty" yaml:"labels,omitempty"`
	Aliases []string          `mapstructure:"aliases" json:"aliases,omitempty" yaml:"aliases,omitempty"`
	// Keywords are used for category detection only.
	Keywords []string `mapstructure:"keywords" json:"keywords,omitempty" yaml:"keywords,omitempty"`
	// Contextual aliases are ordinary words too and only count when the
	// message or the pending question is about this enumeration.
	Contextual []string `mapstructure:"contextual" json:"contextual,omitempty" yaml:"contextual,omitempty"`
}

func (o Option) Label(lang Language) string {
	if l, ok := o.Labels[string(lang)]; ok && l != "" {
		return l
	}
	return o.Value
}

func (o Option) names() []string {
	out := make([]string, 0, len(o.Aliases)+1)
	out = append(out, o.Value)
	return append(out, o.Aliases...)
}

// strictNames are the names that identify the option on their own.
func (o Option) strictNames() []string {
	var out []string
	for _, n := range o.names() {
		contextual := false
		for _, c := range o.Contextual {
			if normalizeKey(c) == normalizeKey(n) {
				contextual = true
				break
			}
		}
		if !contextual {
			out = append(out, n)
		}
	}
	return out
}

type Catalog struct {
	Providers  []Option `mapstructure:"providers" json:"providers" yaml:"providers"`
	Tiers      []Option `mapstructure:"tiers" json:"tiers" yaml:"tiers"`
	Categories []Option `mapstructure:"categories" json:"categories" yaml:"categories"`
}

func (c *Catalog) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("catalog.providers is required")
	}
	if len(c.Tiers) == 0 {
		return fmt.Errorf("catalog.tiers is required")
	}
	for _, group := range [][]Option{c.Providers, c.Tiers, c.Categories} {
		seen := make(map[string]bool)
		for _, o := range group {
			key := normalizeKey(o.Value)
			if key == "" {
				return fmt.Errorf("catalog option with empty value")
			}
			if seen[key] {
				return fmt.Errorf("duplicate catalog option %q", o.Value)
			}
			seen[key] = true
		}
	}
	return nil
}

func normalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func normalize(options []Option, value string) (string, bool) {
	key := normalizeKey(value)
	if key == "" {
		return "", false
	}
	for _, o := range options {
		for _, name := range o.names() {
			if normalizeKey(name) == key {
				return o.Value, true
			}
		}
		for _, name := range o.Contextual {
			if normalizeKey(name) == key {
				return o.Value, true
			}
		}
		for _, l := range o.Labels {
			if normalizeKey(l) == key {
				return o.Value, true
			}
		}
	}
	return "", false
}

func (c *Catalog) NormalizeProvider(v string) (string, bool) { return normalize(c.Providers, v) }
func (c *Catalog) NormalizeTier(v string) (string, bool)     { return normalize(c.Tiers, v) }
func (c *Catalog) NormalizeCategory(v string) (string, bool) { return normalize(c.Categories, v) }

// NormalizeField validates a field value and returns its canonical form.
func (c *Catalog) NormalizeField(f Field, value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	switch f {
	case FieldProvider:
		return c.NormalizeProvider(value)
	case FieldTier:
		return c.NormalizeTier(value)
	case FieldIDNumber:
		id := strings.ReplaceAll(value, "-", "")
		return id, ValidIsraeliID(id)
	case FieldCardNumber:
		return value, ValidCardNumber(value)
	case FieldGender:
		return NormalizeGender(value)
	case FieldAge:
		age, err := strconv.Atoi(value)
		if err != nil {
			return "", false
		}
		return strconv.Itoa(age), ValidAge(age)
	case FieldFullName:
		return strings.Join(strings.Fields(value), " "), true
	}
	return "", false
}

// FieldValid reports whether the profile holds a valid value for the field.
func (c *Catalog) FieldValid(p UserProfile, f Field) bool {
	_, ok := c.NormalizeField(f, p.Value(f))
	return ok
}

// CanonicalProfile rewrites provider, tier and gender aliases to canonical values.
// Values that do not normalize are kept so the caller's data is never dropped.
func (c *Catalog) CanonicalProfile(p UserProfile) UserProfile {
	out := p.Clone()
	if v, ok := c.NormalizeProvider(out.Provider); ok {
		out.Provider = v
	}
	if v, ok := c.NormalizeTier(out.Tier); ok {
		out.Tier = v
	}
	if v, ok := NormalizeGender(out.Gender); ok {
		out.Gender = v
	}
	out.FullName = strings.TrimSpace(out.FullName)
	out.IDNumber = strings.TrimSpace(out.IDNumber)
	out.CardNumber = strings.TrimSpace(out.CardNumber)
	return out
}

// Match is a catalog option found in a message.
type Match struct {
	Value      string
	Alias      string
	Contextual bool
}

func matchOptions(options []Option, tokens []string, withKeywords bool) []Match {
	var out []Match
	for _, o := range options {
		if alias, ok := ContainsAnyPhrase(tokens, o.strictNames()); ok {
			out = append(out, Match{Value: o.Value, Alias: alias})
			continue
		}
		if withKeywords {
			if kw, ok := ContainsAnyPhrase(tokens, o.Keywords); ok {
				out = append(out, Match{Value: o.Value, Alias: kw})
				continue
			}
		}
		if alias, ok := ContainsAnyPhrase(tokens, o.Contextual); ok {
			out = append(out, Match{Value: o.Value, Alias: alias, Contextual: true})
		}
	}
	return out
}

func (c *Catalog) MatchProviders(tokens []string) []Match {
	return matchOptions(c.Providers, tokens, false)
}

func (c *Catalog) MatchTiers(tokens []string) []Match {
	return matchOptions(c.Tiers, tokens, false)
}

func (c *Catalog) MatchCategories(tokens []string) []Match {
	return matchOptions(c.Categories, tokens, true)
}

func labels(options []Option, lang Language) []string {
	out := make([]string, len(options))
	for i, o := range options {
		out[i] = o.Label(lang)
	}
	return out
}

func (c *Catalog) ProviderLabels(lang Language) []string { return labels(c.Providers, lang) }
func (c *Catalog) TierLabels(lang Language) []string     { return labels(c.Tiers, lang) }
func (c *Catalog) CategoryLabels(lang Language) []string { return labels(c.Categories, lang) }

func labelOf(options []Option, value string, lang Language) string {
	for _, o := range options {
		if o.Value == value {
			return o.Label(lang)
		}
	}
	return value
}

func (c *Catalog) ProviderLabel(value string, lang Language) string {
	return labelOf(c.Providers, value, lang)
}

func (c *Catalog) TierLabel(value string, lang Language) string {
	return labelOf(c.Tiers, value, lang)
}

func (c *Catalog) CategoryLabel(value string, lang Language) string {
	return labelOf(c.Categories, value, lang)
}

// DefaultCatalog is the Israeli health-fund domain: three funds, three plan
// tiers and the supplementary service categories they cover.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Providers: []Option{
			{Value: "מכבי", Labels: map[string]string{"he": "מכבי", "en": "Maccabi"}, Aliases: []string{"maccabi", "מכבי שירותי בריאות"}},
			{Value: "מאוחדת", Labels: map[string]string{"he": "מאוחדת", "en": "Meuhedet"}, Aliases: []string{"meuhedet", "meuchedet"}},
			{Value: "כללית", Labels: map[string]string{"he": "כללית", "en": "Clalit"}, Aliases: []string{"clalit", "כללית שירותי בריאות"}},
		},
		Tiers: []Option{
			{Value: "זהב", Labels: map[string]string{"he": "זהב", "en": "Gold"}, Aliases: []string{"gold"}},
			{Value: "כסף", Labels: map[string]string{"he": "כסף", "en": "Silver"}, Aliases: []string{"silver"}, Contextual: []string{"כסף"}},
			{Value: "ארד", Labels: map[string]string{"he": "ארד", "en": "Bronze"}, Aliases: []string{"bronze"}},
		},
		Categories: []Option{
			{
				Value:    "אופטומטריה",
				Labels:   map[string]string{"he": "אופטומטריה", "en": "Optometry"},
				Aliases:  []string{"optometry"},
				Keywords: []string{"עיניים", "משקפיים", "עדשות", "עדשות מגע", "ראייה", "eye", "eyes", "glasses", "lenses", "vision"},
			},
			{
				Value:    "מרפאות שיניים",
				Labels:   map[string]string{"he": "מרפאות שיניים", "en": "Dental clinics"},
				Aliases:  []string{"dental"},
				Keywords: []string{"שיניים", "שן", "דנטלי", "ניקוי אבנית", "סתימות", "סתימה", "כתרים", "יישור שיניים", "teeth", "tooth", "dentist", "orthodontics"},
			},
			{
				Value:    "רפואה משלימה",
				Labels:   map[string]string{"he": "רפואה משלימה", "en": "Complementary medicine"},
				Aliases:  []string{"complementary medicine", "alternative medicine"},
				Keywords: []string{"דיקור", "הומיאופתיה", "אלטרנטיבי", "נטורופתיה", "רפלקסולוגיה", "שיאצו", "acupuncture", "homeopathy", "naturopathy", "reflexology", "alternative"},
			},
			{
				Value:    "שירותי הריון",
				Labels:   map[string]string{"he": "שירותי הריון", "en": "Pregnancy services"},
				Aliases:  []string{"pregnancy services"},
				Keywords: []string{"הריון", "לידה", "הנקה", "יולדת", "אולטרסאונד", "pregnancy", "pregnant", "birth", "prenatal", "breastfeeding"},
			},
			{
				Value:    "מרפאות תקשורת",
				Labels:   map[string]string{"he": "מרפאות תקשורת", "en": "Communication clinics"},
				Aliases:  []string{"communication clinics"},
				Keywords: []string{"דיבור", "שמיעה", "תקשורת", "קלינאית תקשורת", "לוגופד", "גמגום", "speech", "hearing", "stuttering"},
			},
			{
				Value:    "סדנאות בריאות",
				Labels:   map[string]string{"he": "סדנאות בריאות", "en": "Health workshops"},
				Aliases:  []string{"health workshops"},
				Keywords: []string{"סדנה", "סדנאות", "הרצאה", "קורס", "הדרכה", "גמילה מעישון", "workshop", "workshops", "course", "lecture", "smoking"},
			},
		},
	}
}
