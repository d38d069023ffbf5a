// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

// Package mint orchestrates metaprotocol mint orders: quoting, funding
// transaction construction, chained mint batches, broadcasting and
// recovery of interrupted orders.
package mint

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/BoostyLabs/alkamint/alkanes"
	"github.com/BoostyLabs/alkamint/bitcoin"
	"github.com/BoostyLabs/alkamint/bitcoin/chain"
	"github.com/BoostyLabs/alkamint/bitcoin/fees"
	"github.com/BoostyLabs/alkamint/bitcoin/selector"
	"github.com/BoostyLabs/alkamint/bitcoin/signer"
	"github.com/BoostyLabs/alkamint/bitcoin/txbuilder"
)

// Service orchestrates mint orders end to end. All collaborators are
// injected; the service owns no background goroutines of its own — the
// queue, the launch cache and the recovery scanner are run by the caller.
type Service struct {
	log           *slog.Logger
	cfg           *Config
	networkParams *chaincfg.Params
	store         Store
	chain         chain.Source
	broadcaster   chain.Broadcaster
	selector      *selector.Selector
	builder       *txbuilder.Builder
	signer        *signer.Signer
	queue         *BroadcastQueue
	locker        Locker
	launches      *LaunchCache
}

// NewService is a constructor for Service.
func NewService(
	log *slog.Logger,
	cfg *Config,
	store Store,
	source chain.Source,
	broadcaster chain.Broadcaster,
	queue *BroadcastQueue,
	locker Locker,
	launches *LaunchCache,
) *Service {
	networkParams := cfg.NetworkParams()

	return &Service{
		log:           log.With("component", "mint-service"),
		cfg:           cfg,
		networkParams: networkParams,
		store:         store,
		chain:         source,
		broadcaster:   broadcaster,
		selector:      selector.New(source),
		builder:       txbuilder.NewBuilder(networkParams, source),
		signer:        signer.NewSigner(networkParams),
		queue:         queue,
		locker:        locker,
		launches:      launches,
	}
}

// MergeOrderParams define a merge mint order request.
type MergeOrderParams struct {
	AlkaneID       string
	MintAmount     int
	Feerate        float64
	MaxFeerate     float64
	PaymentAddress string
	PaymentPubKey  string
	ReceiveAddress string
}

// MergeOrderQuote is a cost breakdown of a merge order at quote time. The
// prepaid part is the fee margin between the maximum and the requested fee
// rate, held inside batch seeds and refunded as last-hop change when the
// order is not accelerated.
type MergeOrderQuote struct {
	Batches      []int
	BatchSeeds   []int64
	ItemSize     int64
	LastItemSize int64

	NetworkFee int64
	Prepaid    int64
	Postage    int64
	ServiceFee int64
	// Total is the funding amount excluding the funding transaction's own
	// network fee, which depends on the payer's UTXO set.
	Total int64
}

// EstimateMergeOrder quotes a merge order without creating it.
func (s *Service) EstimateMergeOrder(ctx context.Context, params MergeOrderParams) (*MergeOrderQuote, error) {
	launch, err := s.launches.Get(params.AlkaneID)
	if err != nil {
		return nil, err
	}

	if err = s.validateMergeParams(params); err != nil {
		return nil, err
	}

	return s.quote(launch, params.MintAmount, params.Feerate, params.MaxFeerate, params.ReceiveAddress)
}

// quote prices the per-batch chains. Every chain item spends one ephemeral
// P2WPKH input and carries the mint data output plus a P2WPKH carry; the
// terminal item replaces the carry with the postage output to the receiver
// and a change output back to the ephemeral address' payer.
func (s *Service) quote(launch LaunchInfo, mintAmount int, feerate, maxFeerate float64, receiveAddress string) (*MergeOrderQuote, error) {
	stoneScript, err := mintScript(launch)
	if err != nil {
		return nil, err
	}

	ephemeralIn := []fees.InputDescriptor{{Type: bitcoin.P2WPKH}}

	itemSize, err := fees.EstimateSize(ephemeralIn, []fees.OutputDescriptor{
		{Script: stoneScript},
		{Type: bitcoin.P2WPKH},
	})
	if err != nil {
		return nil, err
	}

	lastItemSize, err := fees.EstimateSize(ephemeralIn, []fees.OutputDescriptor{
		{Script: stoneScript},
		{Address: receiveAddress},
		{Type: bitcoin.P2WPKH},
	})
	if err != nil {
		return nil, err
	}

	batches := SplitBatches(mintAmount, s.cfg.BatchSize)

	quote := &MergeOrderQuote{
		Batches:      batches,
		BatchSeeds:   make([]int64, 0, len(batches)),
		ItemSize:     itemSize,
		LastItemSize: lastItemSize,
		Postage:      s.cfg.Postage * int64(len(batches)),
		ServiceFee:   s.cfg.ServiceFee.ForOrder(mintAmount, len(batches)),
	}

	var maxNetworkFee int64
	for _, n := range batches {
		batchFee := batchNetworkFee(itemSize, lastItemSize, n, maxFeerate)
		maxNetworkFee += batchFee
		quote.NetworkFee += batchNetworkFee(itemSize, lastItemSize, n, feerate)
		quote.BatchSeeds = append(quote.BatchSeeds, batchFee+s.cfg.Postage)
	}

	quote.Prepaid = maxNetworkFee - quote.NetworkFee
	quote.Total = maxNetworkFee + quote.Postage + quote.ServiceFee

	return quote, nil
}

// MergeOrderPreview is a created unpaid order together with the funding
// transaction the payer must sign.
type MergeOrderPreview struct {
	Order *Order
	Quote *MergeOrderQuote
	Psbt  *txbuilder.UnsignedPsbtResult
}

// PreCreateMergeOrder creates an unpaid merge order and the unsigned funding
// PSBT. The funding transaction seeds every batch chain on the order's
// ephemeral address, carries the merge-transfer data output and pays the
// service fee to the revenue address; leftover returns to the payer.
func (s *Service) PreCreateMergeOrder(ctx context.Context, params MergeOrderParams) (*MergeOrderPreview, error) {
	launch, err := s.launches.Get(params.AlkaneID)
	if err != nil {
		return nil, err
	}

	if err = s.validateMergeParams(params); err != nil {
		return nil, err
	}
	if _, err = bitcoin.ValidateAddress(params.PaymentAddress, s.networkParams); err != nil {
		return nil, fmt.Errorf("payment address: %w", err)
	}

	quote, err := s.quote(launch, params.MintAmount, params.Feerate, params.MaxFeerate, params.ReceiveAddress)
	if err != nil {
		return nil, err
	}

	orderID, err := newOrderID()
	if err != nil {
		return nil, err
	}

	mintAddress, err := DeriveMintAddress(orderID, s.networkParams)
	if err != nil {
		return nil, err
	}

	outputs, err := s.fundingOutputs(launch, quote, mintAddress)
	if err != nil {
		return nil, err
	}

	inputs, err := s.selectFunding(ctx, params, outputs)
	if err != nil {
		return nil, err
	}

	unsigned, err := s.builder.CreateUnsignedPsbt(ctx, inputs, outputs, params.PaymentAddress, params.Feerate)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := &Order{
		ID:             orderID,
		Model:          ModelMerge,
		AlkaneID:       params.AlkaneID,
		MintAddress:    mintAddress,
		PaymentAddress: params.PaymentAddress,
		PaymentPubKey:  params.PaymentPubKey,
		ReceiveAddress: params.ReceiveAddress,
		Feerate:        params.Feerate,
		LatestFeerate:  params.Feerate,
		MaxFeerate:     params.MaxFeerate,
		Prepaid:        quote.Prepaid,
		Change:         changeHeadroom(quote, s.cfg.Postage, params.Feerate),
		Postage:        s.cfg.Postage,
		ServiceFee:     quote.ServiceFee,
		NetworkFee:     quote.NetworkFee,
		TotalFee:       quote.Total + unsigned.Fee,
		MintAmount:     params.MintAmount,
		Status:         StatusUnpaid,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err = s.store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	s.log.Info("merge order created",
		"order", orderID, "alkane", params.AlkaneID,
		"mints", params.MintAmount, "batches", len(quote.Batches))

	return &MergeOrderPreview{Order: order, Quote: quote, Psbt: unsigned}, nil
}

// fundingOutputs lays out the funding transaction: batch seeds first, then
// the merge-transfer data output pointing at the first seed, then the
// revenue output. Change is appended later by the transaction builder.
func (s *Service) fundingOutputs(launch LaunchInfo, quote *MergeOrderQuote, mintAddress string) ([]bitcoin.Output, error) {
	outputs := make([]bitcoin.Output, 0, len(quote.BatchSeeds)+2)
	for _, seed := range quote.BatchSeeds {
		outputs = append(outputs, bitcoin.Output{Address: mintAddress, Value: seed})
	}

	pointer := uint32(0)
	stone := &alkanes.Protostone{
		Calldata: alkanes.MergeTransferCalldata(launch.AlkaneID),
		Pointer:  &pointer,
	}
	script, err := stone.IntoScript()
	if err != nil {
		return nil, err
	}

	outputs = append(outputs, bitcoin.Output{Script: script})
	if quote.ServiceFee > 0 {
		outputs = append(outputs, bitcoin.Output{Address: s.cfg.RevenueAddress, Value: quote.ServiceFee})
	}

	return outputs, nil
}

// selectFunding picks payer UTXOs covering the outputs plus the inputless
// body fee; the selector prices each accepted input's own fee on top.
func (s *Service) selectFunding(ctx context.Context, params MergeOrderParams, outputs []bitcoin.Output) ([]bitcoin.UTXO, error) {
	var sumOut int64
	outDescriptors := make([]fees.OutputDescriptor, 0, len(outputs)+1)
	for _, out := range outputs {
		sumOut += out.Value
		outDescriptors = append(outDescriptors, fees.OutputDescriptor{Address: out.Address, Script: out.Script})
	}
	outDescriptors = append(outDescriptors, fees.OutputDescriptor{Address: params.PaymentAddress})

	bodySize, err := fees.EstimateSize(nil, outDescriptors)
	if err != nil {
		return nil, err
	}

	minAmount := sumOut + fees.Fee(float64(bodySize), params.Feerate)
	inputs, err := s.selector.SelectByTarget(ctx, params.PaymentAddress, minAmount, params.Feerate, false)
	if err != nil {
		return nil, err
	}

	// taproot and nested-segwit packets need the owner key.
	for i := range inputs {
		inputs[i].PubKey = params.PaymentPubKey
	}

	return inputs, nil
}

// GetOrder returns the order with its items, authorizing by payment address.
func (s *Service) GetOrder(ctx context.Context, orderID, callerAddress string) (*Order, []Item, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if order.PaymentAddress != callerAddress {
		return nil, nil, ErrUnauthorizedOrderAccess
	}

	items, err := s.store.ListItems(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	return order, items, nil
}

// batchNetworkFee prices a chained batch of n items at the fee rate.
func batchNetworkFee(itemSize, lastItemSize int64, n int, feerate float64) int64 {
	fee := fees.Fee(float64(lastItemSize), feerate)
	if n > 1 {
		fee += int64(n-1) * fees.Fee(float64(itemSize), feerate)
	}

	return fee
}

// changeHeadroom sums the terminal change outputs the payer gets back when
// every batch completes at the given fee rate. Acceleration consumes this
// margin, so the field shrinks as the effective rate grows.
func changeHeadroom(quote *MergeOrderQuote, postage int64, feerate float64) int64 {
	var change int64
	for i, n := range quote.Batches {
		c := quote.BatchSeeds[i] - batchNetworkFee(quote.ItemSize, quote.LastItemSize, n, feerate) - postage
		if c > bitcoin.DustLimit {
			change += c
		}
	}

	return change
}

// mintScript builds the per-item mint data script. Unallocated balance,
// the freshly minted tokens included, follows output 1: the carry on inner
// items and the postage output on the terminal one.
func mintScript(launch LaunchInfo) ([]byte, error) {
	calldata := alkanes.MintCalldata(launch.AlkaneID)
	if launch.AuthMint {
		calldata = alkanes.AuthMintCalldata(launch.AlkaneID, launch.AuthToken)
	}

	pointer := uint32(1)
	stone := &alkanes.Protostone{Calldata: calldata, Pointer: &pointer}

	return stone.IntoScript()
}

// validateMergeParams checks request ranges common to quoting and creation.
func (s *Service) validateMergeParams(params MergeOrderParams) error {
	if params.MintAmount < 1 {
		return fmt.Errorf("mint amount %d must be positive: %w", params.MintAmount, ErrInvalidParams)
	}
	if params.Feerate <= 0 || params.MaxFeerate < params.Feerate {
		return ErrFeerateExceedsMax
	}
	if _, err := bitcoin.ValidateAddress(params.ReceiveAddress, s.networkParams); err != nil {
		return fmt.Errorf("receive address: %w", err)
	}

	return nil
}

// newOrderID returns a random 128-bit hex order id.
func newOrderID() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}

	return hex.EncodeToString(raw[:]), nil
}
