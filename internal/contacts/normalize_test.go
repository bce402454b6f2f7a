package contacts

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+7 (999) 123-45-67", "79991234567"},
		{"89991234567", "79991234567"},
		{"9991234567", "79991234567"},
		{"79991234567", "79991234567"},
		{"8 (999) 123-45-67", "79991234567"},
		{"", ""},
		{"abc", ""},
		{"12345", "12345"},
		{"+44 20 7946 0958", "442079460958"},
	}
	for _, tt := range tests {
		if got := NormalizePhone(tt.in); got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizePhone_Idempotent(t *testing.T) {
	inputs := []string{"+7 (999) 123-45-67", "89991234567", "9991234567", "12345", ""}
	for _, in := range inputs {
		once := NormalizePhone(in)
		if twice := NormalizePhone(once); twice != once {
			t.Errorf("NormalizePhone not idempotent for %q: %q != %q", in, twice, once)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  User@Example.COM ", "user@example.com"},
		{"user@example.com", "user@example.com"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := NormalizeEmail(tt.in); got != tt.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if got := NormalizeEmail(NormalizeEmail(tt.in)); got != tt.want {
			t.Errorf("NormalizeEmail not idempotent for %q", tt.in)
		}
	}
}

func TestRecordKeys(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want []Key
	}{
		{
			name: "both",
			rec:  Record{Phone: "89991234567", Email: " A@b.c "},
			want: []Key{
				{Kind: KindPhone, Value: "79991234567"},
				{Kind: KindEmail, Value: "a@b.c"},
			},
		},
		{
			name: "phone only",
			rec:  Record{Phone: "9991234567"},
			want: []Key{{Kind: KindPhone, Value: "79991234567"}},
		},
		{
			name: "letters-only phone yields no key",
			rec:  Record{Phone: "call me"},
			want: nil,
		},
		{
			name: "empty",
			rec:  Record{FirstName: "Anna"},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.rec.Keys()
			if len(got) != len(tt.want) {
				t.Fatalf("Keys() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Keys()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
