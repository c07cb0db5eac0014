package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/base/validation-tool/internal/diff"
	"github.com/base/validation-tool/internal/extract"
	"github.com/base/validation-tool/internal/task"
)

func matchingData() Data {
	overrides := []task.StateOverride{
		{Name: "Safe", Address: safeAddr, Overrides: []task.Override{{Key: slotFour, Value: one, Description: "threshold"}}},
	}
	changes := []task.StateChange{
		{Name: "Proxy", Address: proxyAddr, Changes: []task.Change{{Key: slotZero, Before: slotZero, After: one, Description: "initialized"}}},
	}
	return Data{
		Expected: Dataset{StateOverrides: overrides, StateChanges: changes},
		Actual: Dataset{
			StateOverrides: []task.StateOverride{
				{Name: "Safe", Address: safeAddr, Overrides: []task.Override{{Key: slotFour, Value: one}}},
			},
			StateChanges: []task.StateChange{
				{Address: proxyAddr, Changes: []task.Change{{Key: slotZero, Before: slotZero, After: one}}},
			},
		},
		ExpectedHashes: task.ExpectedHashes{Address: safeAddr, DomainHash: domainHash, MessageHash: messageHash},
		Extracted:      extractedData(),
	}
}

func TestItems(t *testing.T) {
	t.Parallel()

	items := Items(matchingData())
	require.Len(t, items, 3)

	assert.Equal(t, ItemSigningData, items[0].Kind)
	assert.Equal(t, "EIP-712 Signing Data", items[0].ContractName)
	require.NotNil(t, items[0].Actual)
	assert.True(t, items[0].Matches())

	assert.Equal(t, ItemOverride, items[1].Kind)
	assert.Equal(t, "state_overrides[0].overrides[0]", items[1].Path)
	assert.Equal(t, "Safe", items[1].ContractName)
	assert.True(t, items[1].Matches())

	assert.Equal(t, ItemChange, items[2].Kind)
	assert.Equal(t, "state_changes[0].changes[0]", items[2].Path)
	assert.True(t, items[2].Matches())
}

func TestItems_SigningDataFallsBackToBackendHashes(t *testing.T) {
	t.Parallel()

	data := matchingData()
	data.Extracted.SigningData = nil
	data.ActualHashes = &task.ExpectedHashes{DomainHash: domainHash, MessageHash: messageHash}

	items := Items(data)
	require.NotNil(t, items[0].Actual)
	assert.True(t, items[0].Matches())
}

func TestCheckEligibility(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		mutate       func(d *Data)
		wantCanSign  bool
		wantBlocking []string
	}{
		{
			name:        "everything matches",
			mutate:      func(*Data) {},
			wantCanSign: true,
		},
		{
			name:         "value differs",
			mutate:       func(d *Data) { d.Actual.StateOverrides[0].Overrides[0].Value = slotZero },
			wantBlocking: []string{"state_overrides[0].overrides[0]"},
		},
		{
			name: "marked difference is informational",
			mutate: func(d *Data) {
				d.Expected.StateOverrides[0].Overrides[0].Description = "Nonce. This Difference Is Expected on testnets"
				d.Actual.StateOverrides[0].Overrides[0].Value = slotZero
			},
			wantCanSign: true,
		},
		{
			name: "marker applies to changes",
			mutate: func(d *Data) {
				d.Expected.StateChanges[0].Changes[0].Description = "difference is expected"
				d.Actual.StateChanges[0].Changes[0].After = slotFour
			},
			wantCanSign: true,
		},
		{
			name: "missing actual blocks even when marked",
			mutate: func(d *Data) {
				d.Expected.StateChanges[0].Changes[0].Description = "difference is expected"
				d.Actual.StateChanges = nil
			},
			wantBlocking: []string{"state_changes[0].changes[0]"},
		},
		{
			name:         "missing signing data",
			mutate:       func(d *Data) { d.Extracted.SigningData = nil },
			wantBlocking: []string{"signing_data"},
		},
		{
			name:         "signing data differs",
			mutate:       func(d *Data) { d.Extracted.SigningData = &extract.SigningData{DataToSign: "0x1901"} },
			wantBlocking: []string{"signing_data"},
		},
		{
			name:         "key differs",
			mutate:       func(d *Data) { d.Actual.StateChanges[0].Changes[0].Key = slotFour },
			wantBlocking: []string{"state_changes[0].changes[0]"},
		},
		{
			name:   "expected hashes missing",
			mutate: func(d *Data) { d.ExpectedHashes.MessageHash = "" },
			// The expected signing data becomes empty and no longer matches.
			wantBlocking: []string{"signing_data"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data := matchingData()
			tt.mutate(&data)
			got := CheckEligibility(data)

			assert.Equal(t, tt.wantCanSign, got.CanSign)
			var paths []string
			for _, it := range got.Blocking {
				paths = append(paths, it.Path)
			}
			assert.Equal(t, tt.wantBlocking, paths)
			if !tt.wantCanSign {
				assert.NotEmpty(t, got.Reason)
			}
		})
	}
}

func TestCheckEligibility_RequiresExpectedHashes(t *testing.T) {
	t.Parallel()

	data := matchingData()
	data.ExpectedHashes = task.ExpectedHashes{}
	data.Extracted.SigningData = &extract.SigningData{DataToSign: ""}

	got := CheckEligibility(data)
	assert.Empty(t, got.Blocking)
	assert.False(t, got.CanSign)
	assert.Equal(t, "expected domain and message hashes are missing", got.Reason)
}

func TestCompareAll(t *testing.T) {
	t.Parallel()

	data := matchingData()
	results := CompareAll(data)
	require.Len(t, results, 2)
	assert.Equal(t, diff.StatusMatch, results[0].Status)
	assert.Equal(t, diff.StatusMismatch, results[1].Status, "change names differ")

	data.Actual = Dataset{}
	results = CompareAll(data)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, diff.StatusMismatch, r.Status)
		assert.Positive(t, r.Stats.RemovedFields)
	}
}
