package util

import "testing"

func TestHideSecret(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		secret   string
		expected string
	}{
		{"long token", "abcdefghijkl", "abcd...ijkl"},
		{"medium token", "abcdef", "ab...ef"},
		{"short token", "abc", "a...c"},
		{"tiny token", "ab", "ab"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := HideSecret(tt.secret); got != tt.expected {
				t.Errorf("HideSecret(%q) = %q, want %q", tt.secret, got, tt.expected)
			}
		})
	}
}

func TestMaskAuthorizationHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		value    string
		expected string
	}{
		{
			"kite token pair keeps api key visible",
			"token myapikey:abcdefghijkl",
			"token myapikey:abcd...ijkl",
		},
		{
			"bearer token masked",
			"Bearer abcdefghijkl",
			"Bearer abcd...ijkl",
		},
		{
			"bare value masked",
			"abcdefghijkl",
			"abcd...ijkl",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := MaskAuthorizationHeader(tt.value); got != tt.expected {
				t.Errorf("MaskAuthorizationHeader(%q) = %q, want %q", tt.value, got, tt.expected)
			}
		})
	}
}

func TestMaskSensitiveQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{
			"request_token masked",
			"request_token=abcdefghijkl&action=login&status=success",
			"request_token=abcd...ijkl&action=login&status=success",
		},
		{
			"api_key masked",
			"api_key=verysecretkey12&v=3",
			"api_key=very...ey12&v=3",
		},
		{
			"checksum masked",
			"checksum=0123456789abcdef",
			"checksum=0123...cdef",
		},
		{
			"nothing sensitive untouched",
			"action=login&status=success",
			"action=login&status=success",
		},
		{
			"empty",
			"",
			"",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := MaskSensitiveQuery(tt.raw); got != tt.expected {
				t.Errorf("MaskSensitiveQuery(%q) = %q, want %q", tt.raw, got, tt.expected)
			}
		})
	}
}
