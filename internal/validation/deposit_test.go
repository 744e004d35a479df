package validation

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/deposit-gateway/internal/model"
)

func TestIsValidUserID(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		valid bool
	}{
		{name: "short id", id: "u1", valid: true},
		{name: "firebase uid", id: "Xy9_aBcD-12345", valid: true},
		{name: "empty", id: "", valid: false},
		{name: "contains space", id: "u 1", valid: false},
		{name: "contains slash", id: "u/1", valid: false},
		{name: "non ascii", id: "пользователь", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidUserID(tt.id); got != tt.valid {
				t.Fatalf("IsValidUserID(%q) = %v, want %v", tt.id, got, tt.valid)
			}
		})
	}
}

func TestIsValidPhone(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		valid bool
	}{
		{name: "ten digits", phone: "9999999999", valid: true},
		{name: "with country code", phone: "+919999999999", valid: true},
		{name: "too short", phone: "12345", valid: false},
		{name: "letters", phone: "99999abcde", valid: false},
		{name: "too long", phone: "1234567890123456", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidPhone(tt.phone); got != tt.valid {
				t.Fatalf("IsValidPhone(%q) = %v, want %v", tt.phone, got, tt.valid)
			}
		})
	}
}

func TestIsValidAmount(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		valid  bool
	}{
		{name: "integer", amount: "500", valid: true},
		{name: "two decimals", amount: "10.55", valid: true},
		{name: "zero", amount: "0", valid: false},
		{name: "negative", amount: "-1", valid: false},
		{name: "three decimals", amount: "1.005", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidAmount(decimal.RequireFromString(tt.amount)); got != tt.valid {
				t.Fatalf("IsValidAmount(%s) = %v, want %v", tt.amount, got, tt.valid)
			}
		})
	}
}

func TestValidateDeposit(t *testing.T) {
	valid := model.DepositRequest{
		Amount: decimal.NewFromInt(500),
		UserID: "u1",
		Name:   "A",
		Email:  "a@x.com",
		Phone:  "9999999999",
	}

	if errs := ValidateDeposit(valid); len(errs) != 0 {
		t.Fatalf("unexpected errors for valid request: %+v", errs)
	}

	errs := ValidateDeposit(model.DepositRequest{})
	fields := make(map[string]bool, len(errs))
	for _, e := range errs {
		fields[e.Field] = true
	}
	for _, f := range []string{"amount", "userId", "email", "phone"} {
		if !fields[f] {
			t.Fatalf("expected error for field %q, got %+v", f, errs)
		}
	}
	if fields["name"] {
		t.Fatalf("name must be optional, got %+v", errs)
	}
}
