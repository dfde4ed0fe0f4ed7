package language

import "strings"

// Language is a recognizer language tag offered for trip transcription
type Language struct {
	Tag        string // BCP 47 tag (e.g., "pt-BR")
	Name       string // English name (e.g., "Portuguese (Brazil)")
	NativeName string // Native name (e.g., "Português (Brasil)")
}

// Code returns the ISO 639-1 part of the tag, which is what whisper expects.
func (l Language) Code() string {
	return Base(l.Tag)
}

// languages is the list of tags supported by every engine; the first one is the default
var languages = []Language{
	{Tag: "pt-BR", Name: "Portuguese (Brazil)", NativeName: "Português (Brasil)"},
	{Tag: "pt-PT", Name: "Portuguese (Portugal)", NativeName: "Português (Portugal)"},
	{Tag: "en-US", Name: "English (US)", NativeName: "English (US)"},
	{Tag: "en-GB", Name: "English (UK)", NativeName: "English (UK)"},
	{Tag: "es-ES", Name: "Spanish (Spain)", NativeName: "Español (España)"},
	{Tag: "fr-FR", Name: "French", NativeName: "Français"},
	{Tag: "de-DE", Name: "German", NativeName: "Deutsch"},
	{Tag: "it-IT", Name: "Italian", NativeName: "Italiano"},
}

// Default is used whenever a configured tag is missing or unknown.
var Default = languages[0]

// tagIndex maps lower-cased tags to their Language for case-insensitive lookup
var tagIndex map[string]Language

func init() {
	tagIndex = make(map[string]Language, len(languages))
	for _, lang := range languages {
		tagIndex[strings.ToLower(lang.Tag)] = lang
	}
}

// FromTag returns the Language for tag and whether it is supported.
// Underscores are accepted in place of hyphens.
func FromTag(tag string) (Language, bool) {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(tag), "_", "-"))
	lang, ok := tagIndex[key]
	return lang, ok
}

// Normalize returns the canonical form of tag, or the default tag when it is unsupported.
func Normalize(tag string) string {
	if lang, ok := FromTag(tag); ok {
		return lang.Tag
	}
	return Default.Tag
}

// Base returns the primary language subtag of tag (e.g., "pt" for "pt-BR").
func Base(tag string) string {
	tag = strings.ReplaceAll(strings.TrimSpace(tag), "_", "-")
	if i := strings.Index(tag, "-"); i >= 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}

// List returns all supported languages
func List() []Language {
	result := make([]Language, len(languages))
	copy(result, languages)
	return result
}

// Tags returns all supported tags in display order
func Tags() []string {
	tags := make([]string, len(languages))
	for i, lang := range languages {
		tags[i] = lang.Tag
	}
	return tags
}

// IsSupported returns true if the tag is recognized
func IsSupported(tag string) bool {
	_, ok := FromTag(tag)
	return ok
}
