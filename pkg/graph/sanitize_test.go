package graph

import "testing"

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "space", in: "Эдмон Дантес", want: "Эдмон_Дантес"},
		{name: "already sanitized", in: "Эдмон_Дантес", want: "Эдмон_Дантес"},
		{name: "punctuation trimmed", in: "  «Фараон»! ", want: "Фараон"},
		{name: "runs kept", in: "г-н  Моррель", want: "г_н__Моррель"},
		{name: "yo kept", in: "Пьер Фёдоров", want: "Пьер_Фёдоров"},
		{name: "latin and digits", in: "Room 34", want: "Room_34"},
		{name: "decomposed", in: "\u0438\u0306", want: "\u0439"},
		{name: "no letters", in: " -!- ", want: ""},
		{name: "empty", in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeName(tt.in); got != tt.want {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeNameIdempotent(t *testing.T) {
	inputs := []string{
		"Эдмон Дантес", "аббат Фариа", "__x__", "Château d'If", "й", "\u0438\u0306", "!!!", "a_ _b",
	}
	for _, in := range inputs {
		once := SanitizeName(in)
		if twice := SanitizeName(once); twice != once {
			t.Errorf("SanitizeName(SanitizeName(%q)) = %q, want %q", in, twice, once)
		}
	}
}

func TestRelationType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "KNOWS", want: "KNOWS"},
		{in: "works for", want: "works_for"},
		{in: "арестовал!", want: "`арестовал!`"},
		{in: "любит", want: "`любит`"},
		{in: "  ", want: DefaultRelationType},
		{in: "`арестовал!`", want: "`арестовал!`"},
		{in: "2nd cousin", want: "`2nd_cousin`"},
	}
	for _, tt := range tests {
		if got := RelationType(tt.in); got != tt.want {
			t.Errorf("RelationType(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if got := RelationType(RelationType(tt.in)); got != tt.want {
			t.Errorf("RelationType is not idempotent for %q: %q", tt.in, got)
		}
	}
}
