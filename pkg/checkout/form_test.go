package checkout

import (
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

func validShippingForm() Form {
	return Form{
		Name:        "Giulia Rossi",
		Phone:       "+39 333 123 4567",
		Email:       "giulia@example.com",
		Fulfillment: enums.FulfillmentShipping,
		Address:     "Via Roma",
		CivicNumber: "12",
		City:        "Verbania",
		Province:    "vb",
		PostalCode:  "28921",
		Notes:       "Ring twice",
	}
}

func TestValidateAcceptsShippingForm(t *testing.T) {
	if fields := Validate(validShippingForm()); fields != nil {
		t.Fatalf("expected valid form, got %v", fields)
	}
}

func TestValidatePickupSkipsAddress(t *testing.T) {
	form := Form{
		Name:        "Marco",
		Phone:       "3331234567",
		Fulfillment: enums.FulfillmentPickup,
	}
	if fields := Validate(form); fields != nil {
		t.Fatalf("expected pickup form without address to pass, got %v", fields)
	}
}

func TestValidateShippingAddressRules(t *testing.T) {
	form := validShippingForm()
	form.Address = "Via"
	form.CivicNumber = " "
	form.City = ""
	form.Province = "VBA"
	form.PostalCode = "2892"

	fields := Validate(form)
	expected := map[string]string{
		"address":      "address is required",
		"civic_number": "civic number is required",
		"city":         "city is required",
		"province":     "province (2 letters)",
		"cap":          "CAP is not valid (5 digits)",
	}
	for field, msg := range expected {
		if fields[field] != msg {
			t.Fatalf("expected %s=%q, got %q (all: %v)", field, msg, fields[field], fields)
		}
	}
}

func TestValidateFieldMessages(t *testing.T) {
	cases := []struct {
		name  string
		edit  func(*Form)
		field string
		msg   string
	}{
		{"short name", func(f *Form) { f.Name = "A" }, "name", "name must have at least 2 characters"},
		{"blank name", func(f *Form) { f.Name = "   " }, "name", "name is required"},
		{"bad phone", func(f *Form) { f.Phone = "12-34" }, "phone", "phone number is not valid"},
		{"letters in phone", func(f *Form) { f.Phone = "333abc4567" }, "phone", "phone number is not valid"},
		{"bad email", func(f *Form) { f.Email = "not-an-email" }, "email", "email is not valid"},
		{"bad fulfillment", func(f *Form) { f.Fulfillment = "drone" }, "fulfillment", "choose shipping or pickup"},
		{"link in notes", func(f *Form) { f.Notes = "see www.example.com" }, "notes", "links are not allowed in notes"},
		{"http in notes", func(f *Form) { f.Notes = "HTTP://x.y" }, "notes", "links are not allowed in notes"},
		{"honeypot", func(f *Form) { f.Website = "spam.example" }, "website", "bot detected"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			form := validShippingForm()
			tc.edit(&form)
			fields := Validate(form)
			if fields[tc.field] != tc.msg {
				t.Fatalf("expected %s=%q, got %v", tc.field, tc.msg, fields)
			}
		})
	}
}

func TestValidateNotesLength(t *testing.T) {
	form := validShippingForm()
	notes := make([]byte, MaxNotesLength+1)
	for i := range notes {
		notes[i] = 'a'
	}
	form.Notes = string(notes)
	fields := Validate(form)
	if fields["notes"] != "notes must be at most 500 characters" {
		t.Fatalf("unexpected notes message %v", fields)
	}
}

func TestNormalize(t *testing.T) {
	form := Form{Name: "  Anna ", Province: " mi ", Fulfillment: " Pickup "}.Normalize()
	if form.Name != "Anna" || form.Province != "MI" || form.Fulfillment != enums.FulfillmentPickup {
		t.Fatalf("unexpected normalized form %+v", form)
	}
}

func TestIsPhone(t *testing.T) {
	valid := []string{"333123456", "+39 333 1234567", "(02) 123-4567"}
	for _, v := range valid {
		if !IsPhone(v) {
			t.Fatalf("expected %q to be a phone", v)
		}
	}
	invalid := []string{"", "12345", "+39 333 abc", "1234567890123456"}
	for _, v := range invalid {
		if IsPhone(v) {
			t.Fatalf("expected %q to be rejected", v)
		}
	}
}

func TestIsBot(t *testing.T) {
	if (Form{}).IsBot() {
		t.Fatal("empty honeypot is not a bot")
	}
	if !(Form{Website: "x"}).IsBot() {
		t.Fatal("filled honeypot is a bot")
	}
}
