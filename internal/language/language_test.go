package language

import "testing"

func TestFromTag(t *testing.T) {
	tests := []struct {
		tag      string
		wantTag  string
		wantName string
		wantOK   bool
	}{
		{"pt-BR", "pt-BR", "Portuguese (Brazil)", true},
		{"en-us", "en-US", "English (US)", true},
		{"de_DE", "de-DE", "German", true},
		{" it-IT ", "it-IT", "Italian", true},
		{"ja-JP", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			got, ok := FromTag(tt.tag)
			if ok != tt.wantOK {
				t.Fatalf("FromTag(%q) ok = %v, want %v", tt.tag, ok, tt.wantOK)
			}
			if got.Tag != tt.wantTag {
				t.Errorf("FromTag(%q).Tag = %q, want %q", tt.tag, got.Tag, tt.wantTag)
			}
			if got.Name != tt.wantName {
				t.Errorf("FromTag(%q).Name = %q, want %q", tt.tag, got.Name, tt.wantName)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		tag  string
		want string
	}{
		{"fr-fr", "fr-FR"},
		{"en_GB", "en-GB"},
		{"xx-YY", "pt-BR"},
		{"", "pt-BR"},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			if got := Normalize(tt.tag); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.tag, got, tt.want)
			}
		})
	}
}

func TestBase(t *testing.T) {
	tests := []struct {
		tag  string
		want string
	}{
		{"pt-BR", "pt"},
		{"EN_us", "en"},
		{"es", "es"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			if got := Base(tt.tag); got != tt.want {
				t.Errorf("Base(%q) = %q, want %q", tt.tag, got, tt.want)
			}
		})
	}
}

func TestDefaultIsFirstListed(t *testing.T) {
	if Default.Tag != "pt-BR" {
		t.Errorf("Default.Tag = %q, want pt-BR", Default.Tag)
	}
	if Default.Code() != "pt" {
		t.Errorf("Default.Code() = %q, want pt", Default.Code())
	}
	if len(Tags()) != len(List()) || len(Tags()) != 8 {
		t.Errorf("Tags() = %v", Tags())
	}
	if !IsSupported("pt-pt") || IsSupported("zz") {
		t.Error("IsSupported() mismatch")
	}
}
