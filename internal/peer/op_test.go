package peer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpRoundtrip(t *testing.T) {
	cases := []Op{
		ConfigOp(DefaultConfig()),
		OfferSDPOp(`{"type":"offer","sdp":"v=0"}`),
		AnswerSDPOp(`{"type":"answer","sdp":"v=0"}`),
		CandidateOp(`{"candidate":"..."}`),
		CandidateOp(""),
		GetOfferSDPOp("tunnel-1"),
	}

	for _, op := range cases {
		t.Run(op.Tag(), func(t *testing.T) {
			b, err := json.Marshal(op)
			require.NoError(t, err)

			var decoded Op
			require.NoError(t, json.Unmarshal(b, &decoded))
			require.Equal(t, op, decoded)
		})
	}
}

func TestOpWireShape(t *testing.T) {
	b, err := json.Marshal(GetOfferSDPOp("abc"))
	require.NoError(t, err)
	require.JSONEq(t, `{"getOfferSDP":{"channelName":"abc"}}`, string(b))

	b, err = json.Marshal(CandidateOp(""))
	require.NoError(t, err)
	require.JSONEq(t, `{"candidate":""}`, string(b))

	b, err = json.Marshal(OfferSDPOp("v=0"))
	require.NoError(t, err)
	require.JSONEq(t, `{"offerSDP":"v=0"}`, string(b))
}

func TestOpRejectsUnknownVariant(t *testing.T) {
	var op Op
	err := json.Unmarshal([]byte(`{"bogus":"x"}`), &op)
	require.Error(t, err)
}
