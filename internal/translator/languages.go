package translator

import (
	"strings"

	"golang.org/x/text/language"
)

// commonLanguages maps human language names to ISO 639-1 codes. Providers
// start from this table and override the codes they spell differently.
var commonLanguages = map[string]string{
	"arabic":                "ar",
	"bulgarian":             "bg",
	"catalan":               "ca",
	"chinese":               "zh",
	"chinese (simplified)":  "zh",
	"chinese (traditional)": "zh-TW",
	"czech":                 "cs",
	"danish":                "da",
	"dutch":                 "nl",
	"english":               "en",
	"finnish":               "fi",
	"french":                "fr",
	"german":                "de",
	"greek":                 "el",
	"hebrew":                "he",
	"hindi":                 "hi",
	"hungarian":             "hu",
	"indonesian":            "id",
	"italian":               "it",
	"japanese":              "ja",
	"korean":                "ko",
	"malay":                 "ms",
	"norwegian":             "no",
	"persian":               "fa",
	"polish":                "pl",
	"portuguese":            "pt",
	"romanian":              "ro",
	"russian":               "ru",
	"spanish":               "es",
	"swedish":               "sv",
	"thai":                  "th",
	"turkish":               "tr",
	"ukrainian":             "uk",
	"vietnamese":            "vi",
}

// languageTable copies commonLanguages, applies overrides and drops every
// name listed in without.
func languageTable(overrides map[string]string, without ...string) map[string]string {
	table := make(map[string]string, len(commonLanguages)+len(overrides))
	for name, code := range commonLanguages {
		table[name] = code
	}
	for name, code := range overrides {
		table[name] = code
	}
	for _, name := range without {
		delete(table, name)
	}
	return table
}

// Code resolves a human language name, a provider code or a BCP 47 tag to
// the provider's code.
func (d *Descriptor) Code(lang string) (string, bool) {
	l := strings.ToLower(strings.TrimSpace(lang))
	if l == "" || l == "auto" {
		return d.AutoCode, true
	}
	if d.Languages == nil {
		if code, ok := commonLanguages[l]; ok {
			return code, true
		}
		tag, err := language.Parse(l)
		if err != nil {
			return "", false
		}
		return tag.String(), true
	}
	if code, ok := d.Languages[l]; ok {
		return code, true
	}
	for _, code := range d.Languages {
		if strings.EqualFold(code, l) {
			return code, true
		}
	}

	// "en-US" -> "en", "zh-Hant" -> "zh" when only the base is supported.
	tag, err := language.Parse(l)
	if err != nil {
		return "", false
	}
	base, _ := tag.Base()
	for _, code := range d.Languages {
		if strings.EqualFold(code, base.String()) {
			return code, true
		}
	}
	return "", false
}

// Names returns the human language names the provider supports.
func (d *Descriptor) Names() []string {
	names := make([]string, 0, len(d.Languages))
	for name := range d.Languages {
		names = append(names, name)
	}
	return names
}
