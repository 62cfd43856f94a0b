package config

import (
	"strconv"
	"strings"
)

// ContractSortOrder controls how the contract list is ordered for display.
type ContractSortOrder string

const (
	SortAlphabetical ContractSortOrder = "Alphabetical"
	SortCodeID       ContractSortOrder = "CodeId"
	SortNone         ContractSortOrder = "None"
)

// ResponseView controls where contract query/execute responses are shown.
type ResponseView string

const (
	ResponseViewNewFile  ResponseView = "NewFile"
	ResponseViewTerminal ResponseView = "Terminal"
)

// Settings holds the user preferences as they were written. The getters
// never fail: unknown or malformed values resolve to the defaults.
type Settings struct {
	RawSortOrder     string
	RawResponseView  string
	RawHistoryStored string
}

func (s Settings) ContractSortOrder() ContractSortOrder {
	for _, o := range []ContractSortOrder{SortAlphabetical, SortCodeID, SortNone} {
		if strings.EqualFold(strings.TrimSpace(s.RawSortOrder), string(o)) {
			return o
		}
	}
	return SortNone
}

func (s Settings) ResponseView() ResponseView {
	for _, v := range []ResponseView{ResponseViewNewFile, ResponseViewTerminal} {
		if strings.EqualFold(strings.TrimSpace(s.RawResponseView), string(v)) {
			return v
		}
	}
	return ResponseViewTerminal
}

// HistoryStored is the number of query/execute requests kept in history.
func (s Settings) HistoryStored() int {
	n, err := strconv.Atoi(strings.TrimSpace(s.RawHistoryStored))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
