package label

import (
	"errors"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		subject string
		source  string
	}{
		{"Pikachu from Pokemon", "Pikachu", "Pokemon"},
		{"Pikachu FROM Pokemon", "Pikachu", "Pokemon"},
		{"Mario - Super Mario Bros", "Mario", "Super Mario Bros"},
		{"Link | Ocarina of Time", "Link", "Ocarina of Time"},
		{"Zelda (Breath of the Wild)", "Zelda", "Breath of the Wild"},
		{"Spider-Man", "Spider-Man", ""},
		{"  Samus   Aran  ", "Samus Aran", ""},
		{"Kirby - Google Search", "Kirby", ""},
		{"Cloud Strife from Final Fantasy VII", "Cloud Strife", "Final Fantasy VII"},
		{"Sonic: the hedgehog", "Sonic the hedgehog", ""},
		{"Geralt from The Witcher - Netflix", "Geralt", "The Witcher - Netflix"},
		{"Bowser\nfrom\nMario", "Bowser", "Mario"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tt.input, err)
			}
			if got.Subject != tt.subject || got.Source != tt.source {
				t.Errorf("Parse(%q) = {%q, %q}, expected {%q, %q}",
					tt.input, got.Subject, got.Source, tt.subject, tt.source)
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	tests := []string{
		"",
		"   ",
		"google",
		"Google Images",
		"12345",
		"google 2024",
		"???",
		"..",
		strings.Repeat("x", MaxSubjectLength+1),
		strings.Repeat("𝔓", MaxSubjectLength) + " from Pokemon",
		"( )",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			got, err := Parse(input)
			if err == nil {
				t.Fatalf("Parse(%q) = %+v, expected rejection", input, got)
			}
			if !errors.Is(err, ErrRejected) {
				t.Errorf("expected ErrRejected, got %v", err)
			}
		})
	}
}

func TestParseSubjectByteBound(t *testing.T) {
	fits := strings.Repeat("𝔓", MaxSubjectBytes/4)
	got, err := Parse(fits + " from Pokemon")
	if err != nil {
		t.Fatalf("Parse rejected a %d-byte subject: %v", len(fits), err)
	}
	if got.Subject != fits || got.Source != "Pokemon" {
		t.Errorf("Parse = %+v", got)
	}
	if name := got.Subject + "_20240102_150405_999.json"; len(name) > 255 {
		t.Errorf("file name is %d bytes", len(name))
	}
}

func TestParseIsTotal(t *testing.T) {
	inputs := []string{
		"\x00\x01", "(", ")", "()", "from", "a from", "from b", "-", "|", "| |",
		"((x))", "a (b) (c)", "💥 from 🎮", "\t\n", "a - - b", "CON", "x/y\\z",
	}
	for _, input := range inputs {
		got, err := Parse(input)
		if err != nil {
			if !errors.Is(err, ErrRejected) {
				t.Errorf("Parse(%q) returned a non-rejection error: %v", input, err)
			}
			continue
		}
		if got.Subject == "" {
			t.Errorf("Parse(%q) returned an empty subject", input)
		}
		if strings.ContainsAny(got.Subject, `\/*?:"<>|`) {
			t.Errorf("Parse(%q) subject %q contains illegal path characters", input, got.Subject)
		}
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`AC/DC`, "AC DC"},
		{`what?`, "what"},
		{`a<b>c`, "a b c"},
		{"  .hidden. ", "hidden"},
		{"tab\tand\x7fdel", "tab anddel"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, expected %q", tt.in, got, tt.want)
		}
	}
}
