package server

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/period"
)

// Command names an operation understood by Server.Run.
type Command string

const (
	CmdAdd     Command = "add"
	CmdGet     Command = "get"
	CmdUpdate  Command = "update"
	CmdRemove  Command = "remove"
	CmdCopy    Command = "copy"
	CmdList    Command = "list"
	CmdPeriods Command = "periods"
)

// Commands lists every known command.
var Commands = []Command{CmdAdd, CmdGet, CmdUpdate, CmdRemove, CmdCopy, CmdList, CmdPeriods}

// Mutating reports whether the command changes stored data.
func (c Command) Mutating() bool {
	switch c {
	case CmdAdd, CmdUpdate, CmdRemove, CmdCopy:
		return true
	}
	return false
}

// Params are the named parameters of a command. Which ones are read
// depends on the command.
type Params struct {
	Period    string `json:"period,omitempty"`
	TableName string `json:"table_name,omitempty"`
	EID       int    `json:"eid,omitempty"`

	Name      *string          `json:"name,omitempty"`
	Value     *decimal.Decimal `json:"value,omitempty"`
	Category  *string          `json:"category,omitempty"`
	Date      *string          `json:"date,omitempty"`
	Frequency *string          `json:"frequency,omitempty"`
	Start     *string          `json:"start,omitempty"`
	End       *string          `json:"end,omitempty"`

	SourcePeriod      string `json:"source_period,omitempty"`
	DestinationPeriod string `json:"destination_period,omitempty"`

	Filters map[string]string `json:"filters,omitempty"`
}

// Fields extracts the entry attributes.
func (p Params) Fields() core.Fields {
	return core.Fields{
		Name:      p.Name,
		Value:     p.Value,
		Category:  p.Category,
		Date:      p.Date,
		Frequency: p.Frequency,
		Start:     p.Start,
		End:       p.End,
	}
}

// Response carries exactly one of its fields.
type Response struct {
	ID       int             `json:"id,omitempty"`
	Element  *core.Entry     `json:"element,omitempty"`
	Elements *period.Listing `json:"elements,omitempty"`
	Periods  []string        `json:"periods,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// MarshalJSON keeps an empty periods list on the wire.
func (r Response) MarshalJSON() ([]byte, error) {
	type alias Response
	if r.Periods == nil {
		return json.Marshal(alias(r))
	}
	return json.Marshal(struct {
		alias
		Periods []string `json:"periods"`
	}{alias(r), r.Periods})
}
