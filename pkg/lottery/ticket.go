package lottery

import (
	"context"
	"strings"

	"github.com/Sternrassler/loteria-results-proxy/pkg/logging"
	"github.com/tidwall/gjson"
)

const ticketWidth = 6

// Ticket check messages.
const (
	MessageInvalidData = "Data not found or invalid format"
	MessageNoPrize     = "No prize"
)

var prizeMessages = map[string]string{
	"G": "El Gordo!",
	"Z": "Segundo Premio",
	"H": "Premio Especial",
	"R": "Reintegro",
}

const defaultPrizeMessage = "Premio encontrado"

// TicketResult is the outcome of a ticket check.
type TicketResult struct {
	Decimo     string  `json:"decimo"`
	IsPremiado bool    `json:"isPremiado"`
	PrizeEuros float64 `json:"prizeEuros"`
	PrizeType  *string `json:"prizeType"`
	Message    string  `json:"message"`
}

// CheckTicketNumber looks ticketNumber up in the prize list of drawID. A
// ticket without prize is a normal result, not an error.
func (s *Service) CheckTicketNumber(ctx context.Context, drawID, ticketNumber string) (TicketResult, error) {
	raw, err := s.upstream.TicketInfo(ctx, drawID)
	if err != nil {
		return TicketResult{}, err
	}

	logger := logging.FromContext(ctx, s.logger)
	result := TicketResult{Decimo: ticketNumber}

	list := gjson.GetBytes(raw, "compruebe")
	if !list.IsArray() {
		logger.Warn().Str("draw_id", drawID).Msg("Ticket data missing or malformed")
		result.Message = MessageInvalidData
		return result, nil
	}

	padded := padTicket(ticketNumber)
	entries := list.Array()

	if e := logger.Debug(); e.Enabled() {
		sample := make([]string, 0, 5)
		for i := 0; i < len(entries) && i < 5; i++ {
			sample = append(sample, entries[i].Get("decimo").String())
		}
		e.Str("original_number", ticketNumber).
			Str("padded_number", padded).
			Strs("available_numbers", sample).
			Msg("Checking ticket number")
	}

	for _, entry := range entries {
		if entry.Get("decimo").String() != padded {
			continue
		}

		result.IsPremiado = true
		result.PrizeEuros = entry.Get("prize").Float() / 100

		prizeType := strings.TrimSpace(entry.Get("prizeType").String())
		if prizeType != "" {
			result.PrizeType = &prizeType
		}
		result.Message = prizeMessage(prizeType)
		return result, nil
	}

	result.Message = MessageNoPrize
	return result, nil
}

func prizeMessage(prizeType string) string {
	if msg, ok := prizeMessages[prizeType]; ok {
		return msg
	}
	return defaultPrizeMessage
}

// padTicket left-pads a ticket number with zeros to the upstream width.
func padTicket(ticket string) string {
	if len(ticket) >= ticketWidth {
		return ticket
	}
	return strings.Repeat("0", ticketWidth-len(ticket)) + ticket
}
