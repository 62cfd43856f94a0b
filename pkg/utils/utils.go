package utils

import (
	"strings"

	"cwkit/pkg/models"
)

func TruncateString(str string, num int) string {
	if len(str) <= num {
		return str
	}
	if num <= 3 {
		return str[:num]
	}
	return str[0:num-3] + "..."
}

// TruncateMiddle keeps both ends of long addresses: wasm1qy...x7k9.
func TruncateMiddle(str string, num int) string {
	if len(str) <= num || num <= 5 {
		return TruncateString(str, num)
	}
	keep := num - 3
	head := keep - keep/2
	return str[:head] + "..." + str[len(str)-keep/2:]
}

func AddCommas(s string) string {
	if len(s) == 0 {
		return s
	}
	parts := strings.Split(s, ".")
	integerPart := parts[0]
	sign := ""
	if strings.HasPrefix(integerPart, "-") {
		sign = "-"
		integerPart = integerPart[1:]
	}

	n := len(integerPart)
	if n <= 3 {
		return s
	}

	var result strings.Builder
	result.WriteString(sign)
	remainder := n % 3
	if remainder > 0 {
		result.WriteString(integerPart[:remainder])
		result.WriteString(",")
	}
	for i := remainder; i < n; i += 3 {
		if i > remainder {
			result.WriteString(",")
		}
		result.WriteString(integerPart[i : i+3])
	}

	if len(parts) > 1 {
		result.WriteString(".")
		result.WriteString(parts[1])
	}
	return result.String()
}

// FormatCoin renders an integer amount with its denom, e.g. "1,500,000 umlg".
// The unavailable sentinel and empty amounts pass through unchanged.
func FormatCoin(amount, denom string) string {
	if amount == "" || amount == models.BalanceUnavailable {
		return amount
	}
	if denom == "" {
		return AddCommas(amount)
	}
	return AddCommas(amount) + " " + denom
}

// MaskMnemonic hides every word of a seed phrase but keeps the word count
// visible.
func MaskMnemonic(mnemonic string) string {
	words := strings.Fields(mnemonic)
	if len(words) == 0 {
		return ""
	}
	masked := make([]string, len(words))
	for i := range words {
		masked[i] = "****"
	}
	return strings.Join(masked, " ")
}
