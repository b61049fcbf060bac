package stream

import (
	"encoding/json"
	"fmt"

	"ad-chat-be/pkg/ads/catalog"
	"ad-chat-be/pkg/ads/schedule"
)

// Kind names a metadata block. ad_data is a displayed sponsored card,
// ad_meta is tracking-only and never rendered.
type Kind string

const (
	KindAdData Kind = "ad_data"
	KindAdMeta Kind = "ad_meta"
)

// ModeHeader carries a turn's ad mode on the response, set before any body byte.
const ModeHeader = "X-Ad-Mode"

const (
	adDataOpen  = "[AD_DATA]"
	adDataClose = "[/AD_DATA]"
	adMetaOpen  = "[AD_META]"
	adMetaClose = "[/AD_META]"
)

func (k Kind) markers() (open, close string) {
	if k == KindAdMeta {
		return adMetaOpen, adMetaClose
	}
	return adDataOpen, adDataClose
}

// Payload is the JSON body carried between a block's markers.
type Payload struct {
	Type      Kind            `json:"type"`
	MessageID string          `json:"messageId"`
	AdMode    string          `json:"adMode"`
	Product   catalog.Product `json:"product"`
}

// Displayed reports whether the consumer should render a sponsored card for it.
func (p *Payload) Displayed() bool {
	return p != nil && p.Type == KindAdData
}

// KindForMode maps a mode to its block kind; no-ad has none.
func KindForMode(mode schedule.Mode) (Kind, bool) {
	switch mode {
	case schedule.ModeOutResp:
		return KindAdData, true
	case schedule.ModeInResp:
		return KindAdMeta, true
	default:
		return "", false
	}
}

// FrameFor builds the block for a persisted assistant message, or nil when the
// mode carries no block or no product was selected.
func FrameFor(mode schedule.Mode, messageID string, category string, product *catalog.Product) *Payload {
	kind, ok := KindForMode(mode)
	if !ok || product == nil {
		return nil
	}
	p := *product
	p.Category = category
	return &Payload{
		Type:      kind,
		MessageID: messageID,
		AdMode:    mode.String(),
		Product:   p,
	}
}

// Encode renders a block as "\n[OPEN]json[CLOSE]\n".
func Encode(p *Payload) ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal frame payload: %w", err)
	}
	open, close := p.Type.markers()

	out := make([]byte, 0, len(body)+len(open)+len(close)+2)
	out = append(out, '\n')
	out = append(out, open...)
	out = append(out, body...)
	out = append(out, close...)
	out = append(out, '\n')
	return out, nil
}
