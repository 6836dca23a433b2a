package main

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli"

	"github.com/kroma-network/prover-assignment-server/internal/policy"
	"github.com/kroma-network/prover-assignment-server/internal/tier"
)

func loadProverPolicy(ctx *cli.Context, prover common.Address, chainID uint64) (*policy.ProverPolicy, error) {
	taikoL1, err := parseAddress(ctx, TaikoL1Address)
	if err != nil {
		return nil, err
	}
	assignmentHook, err := parseAddress(ctx, AssignmentHookAddress)
	if err != nil {
		return nil, err
	}
	livenessBond, ok := new(big.Int).SetString(ctx.String(LivenessBond.Name), 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s %q", LivenessBond.Name, ctx.String(LivenessBond.Name))
	}

	p := &policy.ProverPolicy{
		MinFees: tier.MinimumFees{
			Optimistic:     ctx.Uint64(MinOptimisticTierFee.Name),
			Sgx:            ctx.Uint64(MinSgxTierFee.Name),
			PseZkevm:       ctx.Uint64(MinPseZkevmTierFee.Name),
			SgxAndPseZkevm: ctx.Uint64(MinSgxAndPseZkevmTierFee.Name),
		},
		MaxExpiry:             ctx.Duration(MaxExpiry.Name),
		ExpiryTolerance:       ctx.Duration(ExpiryTolerance.Name),
		MaxSlippage:           ctx.Uint64(MaxSlippage.Name),
		MaxProposedIn:         ctx.Uint64(MaxProposedIn.Name),
		ProverAddress:         prover,
		IsGuardian:            ctx.Bool(ProverGuardian.Name),
		TaikoL1Address:        taikoL1,
		AssignmentHookAddress: assignmentHook,
		LivenessBond:          livenessBond,
		ChainID:               chainID,
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid prover policy: %w", err)
	}
	return p, nil
}

func parseAddress(ctx *cli.Context, flag cli.StringFlag) (common.Address, error) {
	value := ctx.String(flag.Name)
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", flag.Name, value)
	}
	return common.HexToAddress(value), nil
}
