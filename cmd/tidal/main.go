// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/tidalprotocol/tidal/api"
	"github.com/tidalprotocol/tidal/core"
	"github.com/tidalprotocol/tidal/log"
	"github.com/tidalprotocol/tidal/lvldb"
	"github.com/tidalprotocol/tidal/metrics"
	"github.com/tidalprotocol/tidal/state"
	"github.com/tidalprotocol/tidal/tidal"
)

var (
	version   string
	gitCommit string
	gitTag    string

	logger = log.WithContext("pkg", "main")
)

func fullVersion() string {
	versionMeta := "release"
	if gitTag == "" {
		versionMeta = "dev"
	}
	return fmt.Sprintf("%s-%s-%s", version, gitCommit, versionMeta)
}

func main() {
	app := cli.App{
		Version:   fullVersion(),
		Name:      "Tidal",
		Usage:     "Restaking accounting engine",
		Copyright: "2025 Tidal Protocol",
		Flags: []cli.Flag{
			dataDirFlag,
			apiAddrFlag,
			apiCorsFlag,
			verbosityFlag,
			enableMetricsFlag,
			pprofFlag,
		},
		Action: defaultAction,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultAction(ctx *cli.Context) error {
	defer func() { logger.Info("exited") }()

	initLogger(ctx)
	if ctx.Bool(enableMetricsFlag.Name) {
		metrics.InitializePrometheusMetrics()
	}

	dataDir := ctx.String(dataDirFlag.Name)
	if dataDir == "" {
		return errors.New("data-dir is required")
	}
	config, err := loadConfig(dataDir)
	if err != nil {
		return err
	}
	config.apply()

	db, err := openMainDB(dataDir)
	if err != nil {
		return err
	}
	defer func() { logger.Info("closing main database..."); db.Close() }()

	engine, err := core.New(state.New(db), core.Options{
		Verifier: detachedVerifier{},
		Balances: detachedBalances{},
	})
	if err != nil {
		return err
	}

	handler := api.New(engine, api.Options{
		AllowedOrigins: ctx.String(apiCorsFlag.Name),
		PprofOn:        ctx.Bool(pprofFlag.Name),
		EnableMetrics:  ctx.Bool(enableMetricsFlag.Name),
	})
	srv, apiURL, err := startAPIServer(ctx.String(apiAddrFlag.Name), handler)
	if err != nil {
		return err
	}
	defer func() { logger.Info("stopping API server..."); srv.Shutdown(context.Background()) }()

	logger.Info("accounting API ready", "url", apiURL)
	return handleExitSignal()
}

func initLogger(ctx *cli.Context) {
	level := log.FromLegacyLevel(ctx.Int(verbosityFlag.Name))
	useColor := isatty.IsTerminal(os.Stderr.Fd()) && os.Getenv("TERM") != "dumb"
	log.InitTerminal(level, useColor)
}

func openMainDB(dataDir string) (*lvldb.LevelDB, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, errors.Wrap(err, "failed to create data directory")
	}
	db, err := lvldb.New(dataDir+"/main.db", lvldb.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open main database")
	}
	return db, nil
}

func startAPIServer(addr string, handler http.HandlerFunc) (*http.Server, string, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to listen API addr %q", addr)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: time.Second * 5,
	}
	go func() {
		srv.Serve(listener)
	}()
	return srv, "http://" + listener.Addr().String() + "/", nil
}

func handleExitSignal() error {
	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	sig := <-exit
	logger.Info("exit signal received", "signal", sig)
	return nil
}

// The standalone binary serves the persisted accounting state
// read-only; mutations enter through a host embedding core.Core with
// real collaborators. The detached stubs make that explicit.

type detachedVerifier struct{}

func (detachedVerifier) RootAt(uint64) (tidal.Bytes32, error) {
	return tidal.Bytes32{}, errors.New("no attestation source in read-only mode")
}

func (detachedVerifier) VerifyContainer(tidal.Bytes32, *core.ContainerProof) error {
	return errors.New("no attestation source in read-only mode")
}

func (detachedVerifier) VerifyBalance(tidal.Bytes32, *core.BalanceProof) error {
	return errors.New("no attestation source in read-only mode")
}

func (detachedVerifier) VerifyCredential(tidal.Bytes32, *core.CredentialProof) (*core.Credential, error) {
	return nil, errors.New("no attestation source in read-only mode")
}

type detachedBalances struct{}

func (detachedBalances) PodBalance(tidal.Address) (uint64, error) {
	return 0, errors.New("no balance source in read-only mode")
}
