// Package validation содержит функции валидации входных данных.
package validation

import "strings"

// MinWithdrawalAmount — минимальная сумма заявки на вывод в рупиях.
const MinWithdrawalAmount = 50

// IsValidWithdrawalAmount проверяет, что сумма вывода положительна
// и не меньше допустимого минимума.
func IsValidWithdrawalAmount(amount float64) bool {
	return amount >= MinWithdrawalAmount
}

// IsValidVPA проверяет минимальную форму UPI-адреса (Virtual Payment
// Address): идентификатор обязан содержать символ "@".
func IsValidVPA(upi string) bool {
	return strings.Contains(upi, "@")
}
