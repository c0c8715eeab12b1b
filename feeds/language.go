package feeds

import (
	"strings"
	"sync"

	lingua "github.com/pemistahl/lingua-go"
)

// LanguageDetector guesses the ISO 639-1 code of a text
type LanguageDetector interface {
	Detect(text string) (string, bool)
}

type linguaDetector struct {
	once      sync.Once
	targets   []lingua.Language
	detector  lingua.LanguageDetector
	supported map[lingua.Language]string
}

type noDetector struct{}

func (noDetector) Detect(string) (string, bool) { return "", false }

// NewLanguageDetector returns a detector limited to the given ISO codes. The
// lingua models are loaded on first use. Fewer than two known languages
// disables detection.
func NewLanguageDetector(codes []string) LanguageDetector {
	supported := getSupportedLanguages()
	targets := targetLanguagesToLingua(codes, supported)
	if len(targets) < 2 {
		return noDetector{}
	}
	return &linguaDetector{targets: targets, supported: supported}
}

func (d *linguaDetector) Detect(text string) (string, bool) {
	d.once.Do(func() {
		d.detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(d.targets...).
			WithMinimumRelativeDistance(0.25).
			Build()
	})

	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return "", false
	}
	code := linguaToISO(lang, d.supported)
	return code, code != ""
}

func linguaToISO(lang lingua.Language, languages map[lingua.Language]string) string {
	if code, ok := languages[lang]; ok {
		return code
	}
	return ""
}

func isoToLingua(code string, languages map[lingua.Language]string) (lingua.Language, bool) {
	for lang, isoCode := range languages {
		if isoCode == code {
			return lang, true
		}
	}
	return lingua.Unknown, false
}

// getSupportedLanguages maps all lingua languages to their ISO 639-1 codes
func getSupportedLanguages() map[lingua.Language]string {
	languages := make(map[lingua.Language]string)
	for _, lang := range lingua.AllLanguages() {
		languages[lang] = strings.ToLower(lang.IsoCode639_1().String())
	}
	return languages
}

func targetLanguagesToLingua(codes []string, supported map[lingua.Language]string) []lingua.Language {
	linguaLanguages := []lingua.Language{}
	for _, code := range codes {
		if lang, ok := isoToLingua(strings.ToLower(code), supported); ok {
			linguaLanguages = append(linguaLanguages, lang)
		}
	}
	return linguaLanguages
}
