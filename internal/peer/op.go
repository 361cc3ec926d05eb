package peer

import (
	"encoding/json"
	"fmt"
)

// opTag names which variant of Op is populated.
type opTag int

const (
	tagNone opTag = iota
	tagConfig
	tagOfferSDP
	tagAnswerSDP
	tagCandidate
	tagGetOfferSDP
)

// GetOfferSDPArgs is the payload of the GetOfferSDP op.
type GetOfferSDPArgs struct {
	ChannelName string `json:"channelName"`
}

// Op is the tagged union exchanged between the parent and the
// sub-p2p child over the child's own stdio, framed with the same
// binary-length codec as the lifecycle protocol. Exactly one field
// is populated; its camelCase name is the JSON object's single key
// (config|offerSDP|answerSDP|candidate|getOfferSDP).
type Op struct {
	Config      *Config
	OfferSDP    string
	AnswerSDP   string
	Candidate   string
	GetOfferSDP *GetOfferSDPArgs

	tag opTag
}

// ConfigOp builds a Config-variant Op.
func ConfigOp(c Config) Op { return Op{Config: &c, tag: tagConfig} }

// OfferSDPOp builds an OfferSDP-variant Op.
func OfferSDPOp(sdp string) Op { return Op{OfferSDP: sdp, tag: tagOfferSDP} }

// AnswerSDPOp builds an AnswerSDP-variant Op.
func AnswerSDPOp(sdp string) Op { return Op{AnswerSDP: sdp, tag: tagAnswerSDP} }

// CandidateOp builds a Candidate-variant Op. Pass "" to mark
// end-of-trickle.
func CandidateOp(candidateJSON string) Op { return Op{Candidate: candidateJSON, tag: tagCandidate} }

// GetOfferSDPOp builds a GetOfferSDP-variant Op.
func GetOfferSDPOp(channelName string) Op {
	return Op{GetOfferSDP: &GetOfferSDPArgs{ChannelName: channelName}, tag: tagGetOfferSDP}
}

// Tag names the populated variant, for logging.
func (o Op) Tag() string {
	switch o.tag {
	case tagConfig:
		return "Config"
	case tagOfferSDP:
		return "OfferSDP"
	case tagAnswerSDP:
		return "AnswerSDP"
	case tagCandidate:
		return "Candidate"
	case tagGetOfferSDP:
		return "GetOfferSDP"
	default:
		return "none"
	}
}

// MarshalJSON implements json.Marshaler.
func (o Op) MarshalJSON() ([]byte, error) {
	switch o.tag {
	case tagConfig:
		return json.Marshal(map[string]*Config{"config": o.Config})
	case tagOfferSDP:
		return json.Marshal(map[string]string{"offerSDP": o.OfferSDP})
	case tagAnswerSDP:
		return json.Marshal(map[string]string{"answerSDP": o.AnswerSDP})
	case tagCandidate:
		return json.Marshal(map[string]string{"candidate": o.Candidate})
	case tagGetOfferSDP:
		return json.Marshal(map[string]*GetOfferSDPArgs{"getOfferSDP": o.GetOfferSDP})
	default:
		return nil, fmt.Errorf("peer: encoding op: no variant set")
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Op) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("peer: decoding op: %w", err)
	}

	if v, ok := raw["config"]; ok {
		var c Config
		if err := json.Unmarshal(v, &c); err != nil {
			return fmt.Errorf("peer: decoding config op: %w", err)
		}
		*o = Op{Config: &c, tag: tagConfig}
		return nil
	}
	if v, ok := raw["offerSDP"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("peer: decoding offerSDP op: %w", err)
		}
		*o = Op{OfferSDP: s, tag: tagOfferSDP}
		return nil
	}
	if v, ok := raw["answerSDP"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("peer: decoding answerSDP op: %w", err)
		}
		*o = Op{AnswerSDP: s, tag: tagAnswerSDP}
		return nil
	}
	if v, ok := raw["candidate"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("peer: decoding candidate op: %w", err)
		}
		*o = Op{Candidate: s, tag: tagCandidate}
		return nil
	}
	if v, ok := raw["getOfferSDP"]; ok {
		var g GetOfferSDPArgs
		if err := json.Unmarshal(v, &g); err != nil {
			return fmt.Errorf("peer: decoding getOfferSDP op: %w", err)
		}
		*o = Op{GetOfferSDP: &g, tag: tagGetOfferSDP}
		return nil
	}
	return fmt.Errorf("peer: unknown op variant in %s", b)
}
