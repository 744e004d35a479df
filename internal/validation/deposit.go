// Package validation содержит функции валидации входных данных.
package validation

import (
	"net/mail"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/deposit-gateway/internal/model"
)

const (
	maxUserIDLength = 64
	maxNameLength   = 100
	minPhoneDigits  = 10
	maxPhoneDigits  = 15
)

// FieldError описывает ошибку валидации одного поля запроса.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidateDeposit проверяет запрос на пополнение и возвращает список ошибок по полям.
func ValidateDeposit(req model.DepositRequest) []FieldError {
	var errs []FieldError

	if !IsValidAmount(req.Amount) {
		errs = append(errs, FieldError{Field: "amount", Message: "must be a positive amount with at most 2 decimal places"})
	}

	if req.UserID == "" {
		errs = append(errs, FieldError{Field: "userId", Message: "required"})
	} else if !IsValidUserID(req.UserID) {
		errs = append(errs, FieldError{Field: "userId", Message: "must contain only letters, digits, '-' or '_'"})
	}

	if req.Email == "" {
		errs = append(errs, FieldError{Field: "email", Message: "required"})
	} else if !IsValidEmail(req.Email) {
		errs = append(errs, FieldError{Field: "email", Message: "must be a valid email address"})
	}

	if req.Phone == "" {
		errs = append(errs, FieldError{Field: "phone", Message: "required"})
	} else if !IsValidPhone(req.Phone) {
		errs = append(errs, FieldError{Field: "phone", Message: "must contain 10 to 15 digits"})
	}

	if len([]rune(req.Name)) > maxNameLength {
		errs = append(errs, FieldError{Field: "name", Message: "too long"})
	}

	return errs
}

// IsValidAmount проверяет, что сумма положительна и содержит не более двух знаков после запятой.
func IsValidAmount(amount decimal.Decimal) bool {
	if !amount.IsPositive() {
		return false
	}
	return amount.Equal(amount.Truncate(2))
}

// IsValidUserID проверяет идентификатор пользователя. Он входит в номер заказа,
// поэтому допускаются только символы, разрешённые шлюзом в order_id.
func IsValidUserID(id string) bool {
	if id == "" || len(id) > maxUserIDLength {
		return false
	}
	for _, ch := range id {
		if ch > unicode.MaxASCII {
			return false
		}
		if !unicode.IsLetter(ch) && !unicode.IsDigit(ch) && ch != '-' && ch != '_' {
			return false
		}
	}
	return true
}

// IsValidPhone проверяет номер телефона: необязательный '+' и от 10 до 15 цифр.
func IsValidPhone(phone string) bool {
	digits := strings.TrimPrefix(phone, "+")
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return false
	}
	for _, ch := range digits {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}

// IsValidEmail проверяет адрес электронной почты.
func IsValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email
}
