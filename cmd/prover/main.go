package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kroma-network/prover-assignment-server/internal/assignment"
	"github.com/kroma-network/prover-assignment-server/internal/capacity"
	"github.com/kroma-network/prover-assignment-server/internal/chain"
	"github.com/kroma-network/prover-assignment-server/internal/ec2"
	"github.com/kroma-network/prover-assignment-server/internal/logging"
	"github.com/kroma-network/prover-assignment-server/internal/signer"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := cli.NewApp()
	app.Name = "prover-assignment-server"
	app.Usage = "Signs prover assignments for block proposers"
	app.Version = "0.1.0"
	app.Flags = AllFlags()
	app.Action = proverServer
	if err := app.Run(os.Args); err != nil {
		log.Fatalln(fmt.Errorf("failed to run prover assignment server: %w", err))
	}
}

func proverServer(cliCtx *cli.Context) error {
	level, err := logging.ParseLevel(cliCtx.String(LogLevel.Name))
	if err != nil {
		return err
	}
	logger := logging.New(level, cliCtx.String(LogFile.Name), cliCtx.Bool(LogJson.Name))
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()
	ctx = logging.NewContext(ctx, logger)

	s, err := signer.NewFromHex(cliCtx.String(ProverPrivateKey.Name))
	if err != nil {
		return err
	}

	head, err := chain.NewEthereumHeadProvider(ctx, &chain.EthereumHeadProviderConfig{
		RpcUrl:  cliCtx.String(L1Endpoint.Name),
		Timeout: cliCtx.Duration(L1Timeout.Name),
	}, logger.Named("chain"))
	if err != nil {
		return err
	}
	defer head.Close()

	chainID, err := head.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain id: %w", err)
	}

	p, err := loadProverPolicy(cliCtx, s.Address(), chainID)
	if err != nil {
		return err
	}
	release, err := assignment.ParseReleasePolicy(cliCtx.String(CapacityRelease.Name))
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	var (
		controller   *ec2.Controller
		guardOptions []capacity.Option
	)
	if instanceId := cliCtx.String(AwsProverInstanceId.Name); instanceId != "" {
		controller, err = ec2.NewController(cliCtx.String(AwsRegion.Name), instanceId, logger.Named("ec2"))
		if err != nil {
			return err
		}
		guardOptions = append(guardOptions, capacity.WithObserver(controller))
	}
	guard := capacity.New(cliCtx.Uint64(Capacity.Name), guardOptions...)
	if controller != nil {
		if guard.Unlimited() {
			logger.Warn("Capacity is unlimited, the prover instance will never be stopped")
		}
		g.Go(func() error {
			controller.Run(ctx, func() { guard.Outstanding(time.Now()) })
			return nil
		})
	}

	service, err := assignment.NewService(&assignment.Config{
		Policy:        p,
		ReleasePolicy: release,
		HeadTimeout:   cliCtx.Duration(L1Timeout.Name),
	}, guard, head, s, logger.Named("assignment"))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(cliCtx.String(HttpAddr.Name), strconv.Itoa(cliCtx.Int(HttpPort.Name))),
		ReadHeaderTimeout: 10 * time.Second,
		Handler:           assignment.NewServer(service, logger.Named("http")),
	}

	g.Go(func() error {
		logger.Sugar().Infow("Starting prover assignment server",
			"addr", srv.Addr,
			"prover", s.Address().Hex(),
			"chainId", chainID,
			"capacity", guard.Max(),
			"release", release.String(),
			"guardian", p.IsGuardian,
			"livenessBond", p.LivenessBond.String(),
			"maxExpiry", p.MaxExpiry,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down prover assignment server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to shut down http server", zap.Error(err))
		}
		return nil
	})
	return g.Wait()
}
