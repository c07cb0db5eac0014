package simulate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/base/validation-tool/internal/config"
	"github.com/base/validation-tool/internal/extract"
	"github.com/base/validation-tool/internal/logger"
	"github.com/base/validation-tool/internal/task"
)

const tenderlyGas = 648318

type Tenderly struct {
	lggr    logger.Logger
	cfg     config.TenderlyConfig
	client  *resty.Client
	timeout time.Duration
}

func NewTenderly(lggr logger.Logger, cfg config.TenderlyConfig) *Tenderly {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Tenderly{
		lggr: lggr.Named("tenderly"),
		cfg:  cfg,
		client: resty.New().
			SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
			SetTimeout(timeout).
			SetHeaders(map[string]string{
				"Accept":       "application/json",
				"Content-Type": "application/json",
				"X-Access-Key": cfg.AccessKey,
			}),
		timeout: timeout,
	}
}

func (t *Tenderly) Name() string { return NameTenderly }

func (t *Tenderly) Available(context.Context) bool {
	return t.cfg.AccessKey != ""
}

type tenderlyStorage struct {
	Storage map[string]string `json:"storage"`
}

type tenderlyRequest struct {
	NetworkID      string                     `json:"network_id"`
	From           string                     `json:"from"`
	To             string                     `json:"to"`
	Input          string                     `json:"input"`
	Gas            uint64                     `json:"gas"`
	Value          string                     `json:"value"`
	Save           bool                       `json:"save"`
	SaveIfFails    bool                       `json:"save_if_fails"`
	SimulationType string                     `json:"simulation_type"`
	StateObjects   map[string]tenderlyStorage `json:"state_objects,omitempty"`
}

func (t *Tenderly) Simulate(ctx context.Context, req Request) (Result, error) {
	link := req.Extracted.SimulationLink
	if link == nil {
		return Result{}, fmt.Errorf("%w: no simulation link found in extracted data", ErrIncompleteData)
	}

	linkOverrides, err := extract.DecodeStateOverrides(link.StateOverrides)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrIncompleteData, err)
	}

	body := buildTenderlyRequest(*link, linkOverrides)
	path := fmt.Sprintf("/account/%s/project/%s/simulate", t.cfg.Account, t.cfg.Project)
	t.lggr.Infow("sending simulation request", "contract", link.ContractAddress, "network", link.Network)

	resp, err := t.client.R().SetContext(ctx).SetBody(body).Post(path)
	if err != nil {
		var nerr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
			return Result{}, fmt.Errorf("%w: tenderly API request timed out after %s", ErrTimeout, t.timeout)
		}
		return Result{}, fmt.Errorf("tenderly API request failed: %w", err)
	}
	if resp.IsError() {
		return Result{}, fmt.Errorf("tenderly API error (%d): %s", resp.StatusCode(), resp.String())
	}

	changes, err := ParseTenderlyStateChanges(resp.Body())
	if err != nil {
		return Result{}, err
	}
	overrides := toStateOverrides(linkOverrides)

	t.lggr.Infow("simulation completed", "stateOverrides", len(overrides), "stateChanges", len(changes))
	return Result{
		StateOverrides: overrides,
		StateChanges:   changes,
		Raw:            json.RawMessage(resp.Body()),
	}, nil
}

func buildTenderlyRequest(link extract.SimulationLink, overrides []extract.LinkOverride) tenderlyRequest {
	input := link.RawFunctionInput
	if input == "" {
		input = "0x"
	}
	req := tenderlyRequest{
		NetworkID:      link.Network,
		From:           link.From,
		To:             link.ContractAddress,
		Input:          input,
		Gas:            tenderlyGas,
		Value:          "0",
		Save:           true,
		SaveIfFails:    true,
		SimulationType: "quick",
	}

	if len(overrides) == 0 {
		return req
	}
	req.StateObjects = make(map[string]tenderlyStorage, len(overrides))
	for _, o := range overrides {
		storage := make(map[string]string, len(o.Storage))
		for _, s := range o.Storage {
			storage[s.Key] = s.Value
		}
		req.StateObjects[strings.ToLower(o.ContractAddress)] = tenderlyStorage{Storage: storage}
	}
	return req
}

type tenderlyResponse struct {
	Transaction *struct {
		InfoDashed *tenderlyInfo `json:"transaction-info"`
		Info       *tenderlyInfo `json:"transaction_info"`
	} `json:"transaction"`
}

type tenderlyInfo struct {
	CallTrace *struct {
		StateDiff []tenderlyStateDiff `json:"state_diff"`
	} `json:"call_trace"`
}

type tenderlyStateDiff struct {
	Address string `json:"address"`
	Soltype *struct {
		Name  string          `json:"name"`
		Type  string          `json:"type"`
		Index json.RawMessage `json:"index"`
	} `json:"soltype"`
	Original json.RawMessage `json:"original"`
	Dirty    json.RawMessage `json:"dirty"`
	Raw      []struct {
		Key      string `json:"key"`
		Original string `json:"original"`
		Dirty    string `json:"dirty"`
	} `json:"raw"`
}

// ParseTenderlyStateChanges turns the call trace state diff of a Tenderly
// simulation response into state changes grouped by lower-cased address.
func ParseTenderlyStateChanges(body []byte) ([]task.StateChange, error) {
	var resp tenderlyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding tenderly response: %w", err)
	}

	var diffs []tenderlyStateDiff
	if tx := resp.Transaction; tx != nil {
		for _, info := range []*tenderlyInfo{tx.InfoDashed, tx.Info} {
			if info != nil && info.CallTrace != nil && len(info.CallTrace.StateDiff) > 0 {
				diffs = info.CallTrace.StateDiff
				break
			}
		}
	}

	byAddress := map[string][]task.Change{}
	for _, d := range diffs {
		addr := strings.ToLower(d.Address)
		c := task.Change{
			Key:         "unknown",
			Before:      "0x0",
			After:       "0x0",
			Description: "Storage slot changed",
		}
		var rawKey, rawOriginal, rawDirty string
		if len(d.Raw) > 0 {
			rawKey, rawOriginal, rawDirty = d.Raw[0].Key, d.Raw[0].Original, d.Raw[0].Dirty
		}
		if rawKey != "" {
			c.Key = rawKey
		} else if d.Soltype != nil {
			if idx := rawString(d.Soltype.Index); idx != "" {
				c.Key = idx
			}
		}
		if v := firstNonEmpty(rawString(d.Original), rawOriginal); v != "" {
			c.Before = v
		}
		if v := firstNonEmpty(rawString(d.Dirty), rawDirty); v != "" {
			c.After = v
		}
		if d.Soltype != nil && d.Soltype.Name != "" {
			c.Description = fmt.Sprintf("%s (%s) changed", d.Soltype.Name, d.Soltype.Type)
		}
		byAddress[addr] = append(byAddress[addr], c)
	}

	out := make([]task.StateChange, 0, len(byAddress))
	for addr, changes := range byAddress {
		sort.SliceStable(changes, func(i, j int) bool { return changes[i].Key < changes[j].Key })
		out = append(out, task.StateChange{Address: addr, Changes: changes})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

// StateOverridesFromLink converts the link's state overrides into the
// expected-file shape.
func StateOverridesFromLink(link extract.SimulationLink) ([]task.StateOverride, error) {
	overrides, err := extract.DecodeStateOverrides(link.StateOverrides)
	if err != nil {
		return nil, err
	}
	return toStateOverrides(overrides), nil
}

func toStateOverrides(overrides []extract.LinkOverride) []task.StateOverride {
	out := make([]task.StateOverride, 0, len(overrides))
	for _, o := range overrides {
		items := make([]task.Override, 0, len(o.Storage))
		for _, s := range o.Storage {
			items = append(items, task.Override{
				Key:         s.Key,
				Value:       s.Value,
				Description: "Storage override for slot " + s.Key,
			})
		}
		out = append(out, task.StateOverride{Address: o.ContractAddress, Overrides: items})
	}
	return out
}

// rawString renders a JSON scalar: strings unquoted, anything else verbatim.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
