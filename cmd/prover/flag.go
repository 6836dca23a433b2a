package main

import (
	"time"

	"github.com/urfave/cli"
)

var (
	HttpAddr = cli.StringFlag{
		Name:   "http.addr",
		Usage:  "HTTP server listening address",
		Value:  "0.0.0.0",
		EnvVar: "HTTP_ADDR",
	}
	HttpPort = cli.IntFlag{
		Name:   "http.port",
		Usage:  "HTTP server listening port",
		Value:  3000,
		EnvVar: "PORT",
	}
	L1Endpoint = cli.StringFlag{
		Name:     "l1.endpoint",
		Usage:    "L1 JSON-RPC endpoint used to read the head block",
		EnvVar:   "L1_ENDPOINT",
		Required: true,
	}
	L1Timeout = cli.DurationFlag{
		Name:   "l1.timeout",
		Usage:  "Timeout of a single L1 head query",
		Value:  3 * time.Second,
		EnvVar: "L1_TIMEOUT",
	}
	ProverPrivateKey = cli.StringFlag{
		Name:     "prover.private-key",
		Usage:    "Hex private key the prover signs assignments with",
		EnvVar:   "PROVER_PRIVATE_KEY",
		Required: true,
	}
	ProverGuardian = cli.BoolFlag{
		Name:   "prover.guardian",
		Usage:  "Whether the prover is a guardian prover",
		EnvVar: "PROVER_GUARDIAN",
	}
	MinOptimisticTierFee = cli.Uint64Flag{
		Name:   "min-optimistic-tier-fee",
		Usage:  "Minimum accepted fee for the optimistic tier",
		EnvVar: "MIN_OPTIMISTIC_TIER_FEE",
	}
	MinSgxTierFee = cli.Uint64Flag{
		Name:   "min-sgx-tier-fee",
		Usage:  "Minimum accepted fee for the SGX tier",
		EnvVar: "MIN_SGX_TIER_FEE",
	}
	MinPseZkevmTierFee = cli.Uint64Flag{
		Name:   "min-pse-zkevm-tier-fee",
		Usage:  "Minimum accepted fee for the PSE zkEVM tier",
		EnvVar: "MIN_PSE_ZKEVM_TIER_FEE",
	}
	MinSgxAndPseZkevmTierFee = cli.Uint64Flag{
		Name:   "min-sgx-and-pse-zkevm-tier-fee",
		Usage:  "Minimum accepted fee for the SGX and PSE zkEVM tier",
		EnvVar: "MIN_SGX_AND_PSE_ZKEVM_TIER_FEE",
	}
	MaxExpiry = cli.DurationFlag{
		Name:   "max-expiry",
		Usage:  "Maximum accepted distance between now and an assignment expiry",
		Value:  time.Hour,
		EnvVar: "MAX_EXPIRY",
	}
	ExpiryTolerance = cli.DurationFlag{
		Name:   "expiry-tolerance",
		Usage:  "Extra allowance added to max-expiry for proposer clock skew",
		EnvVar: "EXPIRY_TOLERANCE",
	}
	MaxSlippage = cli.Uint64Flag{
		Name:   "max-slippage",
		Usage:  "Blocks added to the L1 head to derive the max block id",
		Value:  64,
		EnvVar: "MAX_SLIPPAGE",
	}
	MaxProposedIn = cli.Uint64Flag{
		Name:   "max-proposed-in",
		Usage:  "Blocks added to the L1 head within which the block must be proposed",
		Value:  32,
		EnvVar: "MAX_PROPOSED_IN",
	}
	TaikoL1Address = cli.StringFlag{
		Name:     "taiko-l1",
		Usage:    "TaikoL1 contract address",
		EnvVar:   "TAIKO_L1_ADDRESS",
		Required: true,
	}
	AssignmentHookAddress = cli.StringFlag{
		Name:     "assignment-hook",
		Usage:    "AssignmentHook contract address",
		EnvVar:   "ASSIGNMENT_HOOK_ADDRESS",
		Required: true,
	}
	LivenessBond = cli.StringFlag{
		Name:   "liveness-bond",
		Usage:  "Liveness bond in wei",
		Value:  "0",
		EnvVar: "LIVENESS_BOND",
	}
	Capacity = cli.Uint64Flag{
		Name:   "capacity",
		Usage:  "Maximum number of outstanding assignments, 0 for unlimited",
		Value:  1,
		EnvVar: "CAPACITY",
	}
	CapacityRelease = cli.StringFlag{
		Name:   "capacity.release",
		Usage:  `When a signed assignment gives its capacity back: "expiry" or "immediate"`,
		Value:  "expiry",
		EnvVar: "CAPACITY_RELEASE",
	}
	LogLevel = cli.StringFlag{
		Name:   "log.level",
		Value:  "info",
		EnvVar: "LOG_LEVEL",
	}
	LogJson = cli.BoolFlag{
		Name:   "log.json",
		EnvVar: "LOG_JSON",
	}
	LogFile = cli.StringFlag{
		Name:   "log.file",
		Usage:  "Also write logs to this rotating file",
		EnvVar: "LOG_FILE",
	}
	AwsRegion = cli.StringFlag{
		Name:   "aws.region",
		Value:  "ap-northeast-2",
		EnvVar: "AWS_REGION",
	}
	AwsProverInstanceId = cli.StringFlag{
		Name:   "aws.prover-instance-id",
		Usage:  "EC2 instance that generates proofs; started while assignments are outstanding",
		EnvVar: "AWS_PROVER_INSTANCE_ID",
	}
)

func AllFlags() []cli.Flag {
	return []cli.Flag{
		HttpAddr,
		HttpPort,
		L1Endpoint,
		L1Timeout,
		ProverPrivateKey,
		ProverGuardian,
		MinOptimisticTierFee,
		MinSgxTierFee,
		MinPseZkevmTierFee,
		MinSgxAndPseZkevmTierFee,
		MaxExpiry,
		ExpiryTolerance,
		MaxSlippage,
		MaxProposedIn,
		TaikoL1Address,
		AssignmentHookAddress,
		LivenessBond,
		Capacity,
		CapacityRelease,
		LogLevel,
		LogJson,
		LogFile,
		AwsRegion,
		AwsProverInstanceId,
	}
}
