package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateInstanceID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"empty is shared widget", "", "", nil},
		{"digits", "42", "42", nil},
		{"trimmed", "  widget_7-b ", "widget_7-b", nil},
		{"slash", "a/b", "", ErrInstanceIDInvalidChars},
		{"space inside", "a b", "", ErrInstanceIDInvalidChars},
		{"colon", "12:api", "", ErrInstanceIDInvalidChars},
		{"non ascii", "wïdget", "", ErrInstanceIDInvalidChars},
		{"too long", strings.Repeat("a", MaxInstanceIDLength+1), "", ErrInstanceIDTooLong},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateInstanceID(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("error = %v, want %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestValidateCredentials_Valid(t *testing.T) {
	req := &CredentialsRequest{
		ApplicationKey: " app-key ",
		APIKey:         "api-key",
		MACAddress:     "aa:bb:cc:dd:ee:ff",
	}
	if err := ValidateCredentials(req); err != nil {
		t.Fatalf("ValidateCredentials() error = %v", err)
	}
	if req.ApplicationKey != "app-key" || req.MACAddress != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("not normalised: %+v", req)
	}
}

func TestValidateCredentials_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		req       CredentialsRequest
		wantField string
		wantTag   string
	}{
		{"missing app key", CredentialsRequest{APIKey: "k", MACAddress: "AA:BB:CC:DD:EE:FF"}, "applicationKey", "required"},
		{"missing api key", CredentialsRequest{ApplicationKey: "k", MACAddress: "AA:BB:CC:DD:EE:FF"}, "apiKey", "required"},
		{"bad mac", CredentialsRequest{ApplicationKey: "k", APIKey: "k", MACAddress: "not-a-mac"}, "macAddress", "mac"},
		{"long location", CredentialsRequest{ApplicationKey: "k", APIKey: "k", MACAddress: "AA:BB:CC:DD:EE:FF", LocationName: strings.Repeat("x", 65)}, "locationName", "max"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateCredentials(&tc.req)
			var reqErr *RequestError
			if !errors.As(err, &reqErr) {
				t.Fatalf("error = %v, want *RequestError", err)
			}
			if len(reqErr.Fields) != 1 {
				t.Fatalf("fields = %+v, want one", reqErr.Fields)
			}
			if f := reqErr.Fields[0]; f.Field != tc.wantField || f.Tag != tc.wantTag {
				t.Errorf("field error = %+v, want %s/%s", f, tc.wantField, tc.wantTag)
			}
		})
	}
}

func TestRequestError_Message(t *testing.T) {
	err := &RequestError{Fields: []FieldError{{"apiKey", "required"}, {"macAddress", "mac"}}}
	want := "apiKey is required; macAddress must be a MAC address"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
