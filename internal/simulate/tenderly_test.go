package simulate

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/base/validation-tool/internal/config"
	"github.com/base/validation-tool/internal/extract"
	"github.com/base/validation-tool/internal/logger"
	"github.com/base/validation-tool/internal/task"
)

const (
	safeAddr  = "0x7bB41C3008B3f03FE483B28b8DB90e19Cf07595c"
	proxyAddr = "0x49048044D57e1C92A77f79988d21Fa8fAF74E97e"
	slotZero  = "0x0000000000000000000000000000000000000000000000000000000000000000"
	slotFour  = "0x0000000000000000000000000000000000000000000000000000000000000004"
	one       = "0x0000000000000000000000000000000000000000000000000000000000000001"
)

const tenderlyBody = `{
  "transaction": {
    "transaction_info": {
      "call_trace": {
        "state_diff": [
          {
            "address": "0x49048044D57e1C92A77f79988d21Fa8fAF74E97e",
            "soltype": {"name": "_initialized", "type": "uint8", "index": "0x0"},
            "original": "0",
            "dirty": "1",
            "raw": [{"key": "` + slotZero + `", "original": "0x00", "dirty": "0x01"}]
          },
          {
            "address": "0x7bB41C3008B3f03FE483B28b8DB90e19Cf07595c",
            "raw": [{"key": "` + slotFour + `", "original": "0x01", "dirty": "0x02"}]
          },
          {
            "address": "0x7BB41C3008B3F03FE483B28B8DB90E19CF07595C",
            "soltype": {"name": "nonce", "type": "uint256", "index": 5},
            "original": 10,
            "dirty": 11
          }
        ]
      }
    }
  }
}`

func testLink() extract.SimulationLink {
	return extract.SimulationLink{
		URL:              "https://dashboard.tenderly.co/acct/proj/simulator/new",
		Network:          "1",
		ContractAddress:  proxyAddr,
		From:             safeAddr,
		StateOverrides:   `[{"contractAddress":"` + safeAddr + `","storage":[{"key":"` + slotFour + `","value":"` + one + `"}]}]`,
		RawFunctionInput: "0xdeadbeef",
	}
}

func TestTenderly_Simulate(t *testing.T) {
	t.Parallel()

	type captured struct {
		path   string
		header http.Header
		body   map[string]any
	}
	reqs := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := captured{path: r.URL.Path, header: r.Header.Clone()}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &c.body)
		reqs <- c
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, tenderlyBody)
	}))
	t.Cleanup(srv.Close)

	backend := NewTenderly(logger.Test(t), config.TenderlyConfig{
		AccessKey: "secret",
		Account:   "acct",
		Project:   "proj",
		BaseURL:   srv.URL + "/",
	})
	require.True(t, backend.Available(context.Background()))

	link := testLink()
	res, err := backend.Simulate(context.Background(), Request{Extracted: extract.Data{SimulationLink: &link}})
	require.NoError(t, err)

	got := <-reqs
	gotHeader, gotBody := got.header, got.body
	assert.Equal(t, "/account/acct/project/proj/simulate", got.path)
	assert.Equal(t, "secret", gotHeader.Get("X-Access-Key"))
	assert.Equal(t, "1", gotBody["network_id"])
	assert.Equal(t, safeAddr, gotBody["from"])
	assert.Equal(t, proxyAddr, gotBody["to"])
	assert.Equal(t, "0xdeadbeef", gotBody["input"])
	assert.InDelta(t, 648318, gotBody["gas"], 0)
	assert.Equal(t, "0", gotBody["value"])
	assert.Equal(t, "quick", gotBody["simulation_type"])
	assert.Equal(t, map[string]any{
		"0x7bb41c3008b3f03fe483b28b8db90e19cf07595c": map[string]any{
			"storage": map[string]any{slotFour: one},
		},
	}, gotBody["state_objects"])

	assert.Equal(t, []task.StateOverride{{
		Address: safeAddr,
		Overrides: []task.Override{{
			Key: slotFour, Value: one, Description: "Storage override for slot " + slotFour,
		}},
	}}, res.StateOverrides)
	require.Len(t, res.StateChanges, 2)
	assert.Nil(t, res.Hashes)
	assert.JSONEq(t, tenderlyBody, string(res.Raw))
}

func TestTenderly_Unavailable(t *testing.T) {
	t.Parallel()

	backend := NewTenderly(logger.Nop(), config.TenderlyConfig{})
	assert.False(t, backend.Available(context.Background()))
}

func TestTenderly_NoLink(t *testing.T) {
	t.Parallel()

	backend := NewTenderly(logger.Nop(), config.TenderlyConfig{AccessKey: "k"})
	_, err := backend.Simulate(context.Background(), Request{})
	require.ErrorIs(t, err, ErrIncompleteData)
}

func TestTenderly_UndecodableOverrides(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, tenderlyBody)
	}))
	t.Cleanup(srv.Close)

	backend := NewTenderly(logger.Nop(), config.TenderlyConfig{AccessKey: "k", BaseURL: srv.URL})
	link := testLink()
	link.StateOverrides = "[{not json"
	_, err := backend.Simulate(context.Background(), Request{Extracted: extract.Data{SimulationLink: &link}})
	require.ErrorIs(t, err, ErrIncompleteData)
	assert.Zero(t, hits.Load())
}

func TestTenderly_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":"invalid access key"}`)
	}))
	t.Cleanup(srv.Close)

	backend := NewTenderly(logger.Nop(), config.TenderlyConfig{AccessKey: "bad", BaseURL: srv.URL})
	link := testLink()
	_, err := backend.Simulate(context.Background(), Request{Extracted: extract.Data{SimulationLink: &link}})
	require.EqualError(t, err, `tenderly API error (403): {"error":"invalid access key"}`)
}

func TestTenderly_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	backend := NewTenderly(logger.Nop(), config.TenderlyConfig{
		AccessKey: "k",
		BaseURL:   srv.URL,
		Timeout:   50 * time.Millisecond,
	})
	link := testLink()
	_, err := backend.Simulate(context.Background(), Request{Extracted: extract.Data{SimulationLink: &link}})
	require.ErrorIs(t, err, ErrTimeout)
}

func TestParseTenderlyStateChanges(t *testing.T) {
	t.Parallel()

	changes, err := ParseTenderlyStateChanges([]byte(tenderlyBody))
	require.NoError(t, err)

	assert.Equal(t, []task.StateChange{
		{
			Address: "0x49048044d57e1c92a77f79988d21fa8faf74e97e",
			Changes: []task.Change{{
				Key: slotZero, Before: "0", After: "1", Description: "_initialized (uint8) changed",
			}},
		},
		{
			Address: "0x7bb41c3008b3f03fe483b28b8db90e19cf07595c",
			Changes: []task.Change{
				{Key: slotFour, Before: "0x01", After: "0x02", Description: "Storage slot changed"},
				{Key: "5", Before: "10", After: "11", Description: "nonce (uint256) changed"},
			},
		},
	}, changes)
}

func TestParseTenderlyStateChanges_DashedKeyAndDefaults(t *testing.T) {
	t.Parallel()

	body := `{"transaction":{"transaction-info":{"call_trace":{"state_diff":[{"address":"0xAB"}]}}}}`
	changes, err := ParseTenderlyStateChanges([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, []task.StateChange{{
		Address: "0xab",
		Changes: []task.Change{{Key: "unknown", Before: "0x0", After: "0x0", Description: "Storage slot changed"}},
	}}, changes)
}

func TestParseTenderlyStateChanges_Empty(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`{}`, `{"transaction":{}}`, `{"transaction":{"transaction_info":{}}}`} {
		changes, err := ParseTenderlyStateChanges([]byte(body))
		require.NoError(t, err, body)
		assert.Empty(t, changes, body)
		assert.NotNil(t, changes, body)
	}

	_, err := ParseTenderlyStateChanges([]byte(`not json`))
	require.Error(t, err)
}

func TestStateOverridesFromLink_Empty(t *testing.T) {
	t.Parallel()

	overrides, err := StateOverridesFromLink(extract.SimulationLink{})
	require.NoError(t, err)
	assert.Empty(t, overrides)
}
