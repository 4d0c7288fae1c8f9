// Package signal defines the normalized TradeSignal the engine consumes and
// the dedup hash derived from it. The upstream chat monitor and LLM parser
// that produce these signals are out of scope; this package only carries
// the already-parsed result.
package signal

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"tradebridge/bridgeerr"
)

// Action is the kind of operation a signal requests.
type Action string

const (
	ActionEntry  Action = "ENTRY"
	ActionDCA    Action = "DCA"
	ActionClose  Action = "CLOSE"
	ActionMoveSL Action = "MOVE_SL"
	ActionCancel Action = "CANCEL"
	ActionInfo   Action = "INFO"
)

// Side is the position direction.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
	SideNone  Side = ""
)

// Source identifies where a signal originated, carried for audit purposes
// only; the engine never branches on it.
type Source struct {
	Platform    string `json:"platform"`
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name,omitempty"`
	GuildID     string `json:"guild_id,omitempty"`
	AuthorName  string `json:"author_name,omitempty"`
	MessageID   string `json:"message_id,omitempty"`
}

// TradeSignal is the normalized, already-parsed description of what the
// user wants. It has no intrinsic identity; dedup identity is derived via
// Hash.
type TradeSignal struct {
	Action Action `json:"action"`
	Symbol string `json:"symbol"`
	Side   Side   `json:"side"`

	EntryPriceLow  float64 `json:"entry_price"`
	EntryPriceHigh float64 `json:"entry_price_high,omitempty"`
	StopLoss       float64 `json:"stop_loss"`
	TakeProfits    []float64 `json:"take_profits,omitempty"`

	CloseRatio    float64 `json:"close_ratio,omitempty"`
	NewStopLoss   *float64 `json:"new_stop_loss,omitempty"`
	NewTakeProfit *float64 `json:"new_take_profit,omitempty"`

	IsDca      bool    `json:"is_dca,omitempty"`
	RawMessage string  `json:"raw_message,omitempty"`
	Source     *Source `json:"source,omitempty"`
}

// Normalize fills in documented defaults and is idempotent: closeRatio
// defaults to 1 for CLOSE; single-price signals carry the same value in
// both low and high.
func (s *TradeSignal) Normalize() {
	if s.Action == ActionClose && s.CloseRatio == 0 {
		s.CloseRatio = 1
	}
	if s.EntryPriceHigh == 0 {
		s.EntryPriceHigh = s.EntryPriceLow
	}
}

// Validate enforces the per-action invariants from §3.1. It does not
// perform any I/O; risk and position checks belong to the engine.
func (s *TradeSignal) Validate() error {
	switch s.Action {
	case ActionEntry, ActionDCA:
		if s.Symbol == "" {
			return bridgeerr.New(bridgeerr.InputInvalid, "symbol is required")
		}
		if s.StopLoss == 0 {
			return bridgeerr.New(bridgeerr.InputInvalid, "stop_loss must be non-zero")
		}
		side := s.Side
		if side == SideNone && s.IsDca {
			// Side may be inferred later from the existing position by the
			// engine; structural validation only enforces it for fresh entries.
			break
		}
		switch side {
		case SideLong:
			if s.StopLoss >= s.EntryPriceLow {
				return bridgeerr.New(bridgeerr.InputInvalid, "stop_loss must be below entry for LONG")
			}
		case SideShort:
			if s.StopLoss <= s.EntryPriceLow {
				return bridgeerr.New(bridgeerr.InputInvalid, "stop_loss must be above entry for SHORT")
			}
		default:
			return bridgeerr.New(bridgeerr.InputInvalid, "side is required for a fresh ENTRY")
		}
	case ActionClose:
		if s.CloseRatio <= 0 || s.CloseRatio > 1 {
			return bridgeerr.New(bridgeerr.InputInvalid, "close_ratio must be in (0,1]")
		}
	case ActionMoveSL:
		if s.NewStopLoss == nil && s.NewTakeProfit == nil {
			return bridgeerr.New(bridgeerr.InputInvalid, "MOVE_SL requires new_stop_loss or new_take_profit")
		}
	case ActionCancel, ActionInfo:
		// no further structural requirements
	default:
		return bridgeerr.New(bridgeerr.InputInvalid, fmt.Sprintf("unknown action %q", s.Action))
	}
	if s.Symbol == "" {
		return bridgeerr.New(bridgeerr.InputInvalid, "symbol is required")
	}
	return nil
}

// Hash computes the SHA-256 signal-level dedup key: symbol | side |
// entryPriceLow | stopLoss, with side replaced by the literal "DCA" when
// absent (DCA signals carry no independent side at intake time).
func (s *TradeSignal) Hash() string {
	side := string(s.Side)
	if side == "" {
		side = "DCA"
	}
	raw := fmt.Sprintf("%s|%s|%s|%s",
		s.Symbol, side,
		strconv.FormatFloat(s.EntryPriceLow, 'f', -1, 64),
		strconv.FormatFloat(s.StopLoss, 'f', -1, 64))
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
