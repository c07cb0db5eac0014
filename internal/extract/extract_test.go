package extract

import (
	"net/url"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	safeA   = "0x7bB41C3008B3f03FE483B28b8DB90e19Cf07595c"
	safeB   = "0x9855054731540A48b28990B63DcF4f33d8AE46A1"
	target  = "0x49048044D57e1C92A77f79988d21Fa8fAF74E97e"
	hashA   = "0x88aac3dc27cc1618ec43a87b3df21482acd24d172027ba3fbb5a5e625d895a0b"
	hashB   = "0x9ef8cce91c002602265fd0d330b1295dc002966e87cd9dc90e2a76efef2517dc"
	slot4   = "0x0000000000000000000000000000000000000000000000000000000000000004"
	slotOne = "0x0000000000000000000000000000000000000000000000000000000000000001"
)

func tenderlyLink(params url.Values) string {
	return "https://dashboard.tenderly.co/TENDERLY_USERNAME/TENDERLY_PROJECT/simulator/new?" + params.Encode()
}

func scriptOutput(link string) string {
	return `== Logs ==
  Nested hash for safe ` + safeA + `: ` + hashA + `
  Nested hash for safe ` + safeB + `:
  ` + hashB + `
Simulation link:
` + link + `
If you submit the transaction, call Safe.approveHash on ` + safeA + ` with the following hash: ` + hashB + `

Data to sign:
vvvvvvvv
0x1901` + hashA[2:] + hashB[2:] + `
^^^^^^^^
`
}

func TestExtract(t *testing.T) {
	t.Parallel()

	link := tenderlyLink(url.Values{
		"network":          {"1"},
		"contractAddress":  {target},
		"from":             {safeA},
		"rawFunctionInput": {"0xdeadbeef"},
	})

	data := Extract(scriptOutput(link))

	assert.Equal(t, []NestedHash{
		{SafeAddress: safeA, Hash: hashA},
		{SafeAddress: safeB, Hash: hashB},
	}, data.NestedHashes)

	require.NotNil(t, data.SimulationLink)
	assert.Equal(t, link, data.SimulationLink.URL)
	assert.Equal(t, "1", data.SimulationLink.Network)
	assert.Equal(t, target, data.SimulationLink.ContractAddress)
	assert.Equal(t, safeA, data.SimulationLink.From)
	assert.Equal(t, "0xdeadbeef", data.SimulationLink.RawFunctionInput)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, data.SimulationLink.Input())

	require.NotNil(t, data.ApprovalHash)
	assert.Equal(t, ApprovalHash{SafeAddress: safeA, Hash: hashB}, *data.ApprovalHash)

	require.NotNil(t, data.SigningData)
	assert.Equal(t, "0x1901"+hashA[2:]+hashB[2:], data.SigningData.DataToSign)
}

func TestExtract_NothingFound(t *testing.T) {
	t.Parallel()

	data := Extract("Compiler run successful!\nScript ran successfully.")

	assert.NotNil(t, data.NestedHashes)
	assert.Empty(t, data.NestedHashes)
	assert.Nil(t, data.SimulationLink)
	assert.Nil(t, data.ApprovalHash)
	assert.Nil(t, data.SigningData)
	assert.Contains(t, data.Summary(), "Simulation link: not found")
}

func TestExtract_FirstSimulationLinkWins(t *testing.T) {
	t.Parallel()

	first := tenderlyLink(url.Values{"network": {"1"}, "contractAddress": {target}})
	second := tenderlyLink(url.Values{"network": {"11155111"}, "contractAddress": {safeB}})

	data := Extract("Simulation link:\n" + first + "\nSimulation link:\n" + second + "\n")

	require.NotNil(t, data.SimulationLink)
	assert.Equal(t, first, data.SimulationLink.URL)
	assert.Equal(t, "1", data.SimulationLink.Network)
}

func TestExtract_RawInputBlockOverridesLinkParameter(t *testing.T) {
	t.Parallel()

	link := tenderlyLink(url.Values{"rawFunctionInput": {"0x1234"}})
	output := "Simulation link:\n" + link + "\n" +
		"Insert the following hex into the 'Raw input data' field:\n0xabcdef0123\n"

	data := Extract(output)

	require.NotNil(t, data.SimulationLink)
	assert.Equal(t, "0xabcdef0123", data.SimulationLink.RawFunctionInput)
}

func TestParseSimulationURL_Defaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		link string
	}{
		{name: "no query", link: "https://dashboard.tenderly.co/simulator/new"},
		{name: "malformed", link: "https://dashboard.tenderly.co/%zz?network=1"},
		{name: "empty parameters", link: "https://dashboard.tenderly.co/sim?network=&from="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ParseSimulationURL(tt.link, "")
			assert.Equal(t, tt.link, got.URL)
			assert.Equal(t, UnknownNetwork, got.Network)
			assert.Equal(t, ZeroAddress, got.ContractAddress)
			assert.Equal(t, ZeroAddress, got.From)
			assert.Empty(t, got.StateOverrides)
			assert.Empty(t, got.RawFunctionInput)
		})
	}

	got := ParseSimulationURL("https://dashboard.tenderly.co/%zz", "0x01")
	assert.Equal(t, "0x01", got.RawFunctionInput)
}

func TestParseSimulationURL_KeepsStateOverridesDecodedOnce(t *testing.T) {
	t.Parallel()

	overrides := `[{"contractAddress":"` + safeA + `","storage":[{"key":"` + slot4 + `","value":"` + slotOne + `"}]}]`
	got := ParseSimulationURL(tenderlyLink(url.Values{"stateOverrides": {overrides}}), "")

	assert.Equal(t, overrides, got.StateOverrides)
}

func TestDecodeStateOverrides(t *testing.T) {
	t.Parallel()

	want := []LinkOverride{{
		ContractAddress: safeA,
		Storage:         []StorageSlot{{Key: slot4, Value: slotOne}},
	}}

	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "json",
			raw:  `[{"contractAddress":"` + safeA + `","storage":[{"key":"` + slot4 + `","value":"` + slotOne + `"}]}]`,
		},
		{
			name: "forge notation",
			raw:  `[{contractAddress:` + safeA + `, storage:[{key:` + slot4 + `, value:` + slotOne + `}]}]`,
		},
		{
			name: "still escaped",
			raw:  url.QueryEscape(`[{"contractAddress":"` + safeA + `","storage":[{"key":"` + slot4 + `","value":"` + slotOne + `"}]}]`),
		},
		{
			name: "missing hex prefix",
			raw:  `[{"contractAddress":"` + safeA + `","storage":[{"key":"` + slot4[2:] + `","value":"` + slotOne[2:] + `"}]}]`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := DecodeStateOverrides(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestDecodeStateOverrides_Edges(t *testing.T) {
	t.Parallel()

	got, err := DecodeStateOverrides("")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = DecodeStateOverrides(`[{"contractAddress":"` + safeA + `"}]`)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NotNil(t, got[0].Storage)

	_, err = DecodeStateOverrides(`[{not json`)
	require.Error(t, err)
}

func TestSigningDataHashes(t *testing.T) {
	t.Parallel()

	domain, message, err := SigningData{DataToSign: "0x1901" + hashA[2:] + hashB[2:]}.Hashes()
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash(hashA), domain)
	assert.Equal(t, common.HexToHash(hashB), message)

	_, _, err = SigningData{DataToSign: "0x1901"}.Hashes()
	require.ErrorContains(t, err, "expected EIP-712 hex string with 66 bytes")

	_, _, err = SigningData{DataToSign: "0x0000" + hashA[2:] + hashB[2:]}.Hashes()
	require.ErrorContains(t, err, "prefix")
}
