// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/BoostyLabs/alkamint/bitcoin"
)

// EsploraClient implements Source and Broadcaster over the esplora REST API.
type EsploraClient struct {
	baseURL string
	http    *http.Client
}

// NewEsploraClient is a constructor for EsploraClient.
func NewEsploraClient(baseURL string) *EsploraClient {
	return &EsploraClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// esploraTx mirrors the esplora transaction response subset in use.
type esploraTx struct {
	TxID   string `json:"txid"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
	} `json:"status"`
	Vout []struct {
		ScriptPubKey string `json:"scriptpubkey"`
		Address      string `json:"scriptpubkey_address"`
		Value        int64  `json:"value"`
	} `json:"vout"`
}

// esploraOutspend mirrors the esplora outspend response.
type esploraOutspend struct {
	Spent bool   `json:"spent"`
	TxID  string `json:"txid"`
}

// esploraUtxo mirrors the esplora address utxo response.
type esploraUtxo struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Value  int64  `json:"value"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
	} `json:"status"`
}

// GetTx returns transaction data by id, nil when not observed.
func (c *EsploraClient) GetTx(ctx context.Context, txid string) (*Tx, error) {
	body, found, err := c.get(ctx, "/tx/"+url.PathEscape(txid))
	if err != nil || !found {
		return nil, err
	}

	var raw esploraTx
	if err = json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode tx %s: %w", txid, err)
	}

	tx := &Tx{
		TxID: raw.TxID,
		Status: TxStatus{
			Confirmed:   raw.Status.Confirmed,
			BlockHeight: raw.Status.BlockHeight,
		},
		Vout: make([]TxOut, 0, len(raw.Vout)),
	}
	for _, out := range raw.Vout {
		tx.Vout = append(tx.Vout, TxOut{
			Value:   out.Value,
			Script:  out.ScriptPubKey,
			Address: out.Address,
		})
	}

	return tx, nil
}

// GetTxHex returns raw transaction hex by id, empty when not observed.
func (c *EsploraClient) GetTxHex(ctx context.Context, txid string) (string, error) {
	body, found, err := c.get(ctx, "/tx/"+url.PathEscape(txid)+"/hex")
	if err != nil || !found {
		return "", err
	}

	return strings.TrimSpace(string(body)), nil
}

// GetSpentInfo returns spending state of the output, nil when not observed.
func (c *EsploraClient) GetSpentInfo(ctx context.Context, txid string, vout uint32) (*SpentInfo, error) {
	body, found, err := c.get(ctx, fmt.Sprintf("/tx/%s/outspend/%d", url.PathEscape(txid), vout))
	if err != nil || !found {
		return nil, err
	}

	var raw esploraOutspend
	if err = json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode outspend %s:%d: %w", txid, vout, err)
	}

	return &SpentInfo{Spent: raw.Spent, TxID: raw.TxID}, nil
}

// ListUtxos returns unspent outputs for the address. Esplora returns the
// full set in one response, so only page 0 is populated.
func (c *EsploraClient) ListUtxos(ctx context.Context, address string, page int) ([]bitcoin.UTXO, error) {
	if page > 0 {
		return nil, nil
	}

	body, found, err := c.get(ctx, "/address/"+url.PathEscape(address)+"/utxo")
	if err != nil || !found {
		return nil, err
	}

	var raw []esploraUtxo
	if err = json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode utxos of %s: %w", address, err)
	}

	utxos := make([]bitcoin.UTXO, 0, len(raw))
	for _, u := range raw {
		utxos = append(utxos, bitcoin.UTXO{
			TxID:    u.TxID,
			Index:   u.Vout,
			Value:   u.Value,
			Address: address,
			Height:  u.Status.BlockHeight,
		})
	}

	return utxos, nil
}

// Push submits raw transaction hex, classifying rejection reasons.
func (c *EsploraClient) Push(ctx context.Context, rawTx string) BroadcastOutcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tx", strings.NewReader(rawTx))
	if err != nil {
		return ClassifyRejection(err.Error())
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.http.Do(req)
	if err != nil {
		return ClassifyRejection(err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return ClassifyRejection(err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		return ClassifyRejection(string(bytes.TrimSpace(body)))
	}

	return Accepted(strings.TrimSpace(string(body)))
}

// get performs a GET with bounded retries on transport errors. Returns
// found=false on 404 to model "not yet observed".
func (c *EsploraClient) get(ctx context.Context, path string) (body []byte, found bool, err error) {
	operation := func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if reqErr != nil {
			return backoff.Permanent(reqErr)
		}

		resp, doErr := c.http.Do(req)
		if doErr != nil {
			return doErr
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			found = false
			return nil
		case resp.StatusCode >= 500:
			return fmt.Errorf("esplora %s: status %d", path, resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("esplora %s: status %d", path, resp.StatusCode))
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, 1<<22))
		if err != nil {
			return err
		}

		found = true
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, false, err
	}

	return body, found, nil
}
