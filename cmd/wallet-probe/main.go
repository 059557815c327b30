package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/newwallet-io/wallet-sdk/bridge"
	"github.com/newwallet-io/wallet-sdk/internal/config"
	"github.com/newwallet-io/wallet-sdk/internal/logx"
	"github.com/newwallet-io/wallet-sdk/internal/metrics"
	"github.com/newwallet-io/wallet-sdk/popup"
	"github.com/newwallet-io/wallet-sdk/provider/evm"
	"github.com/newwallet-io/wallet-sdk/provider/solana"
	"github.com/newwallet-io/wallet-sdk/wire"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configFile := flag.String("config", "", "path to a YAML config file")
	signMsg := flag.String("sign", "", "message to personal_sign after connecting (EVM only)")
	var cfg config.ProbeConfig
	cfg.BindFlags()
	flag.Parse()
	if *showVersion {
		fmt.Printf("wallet-probe version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}

	if *configFile != "" {
		if err := cfg.LoadFile(*configFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Fatal().Err(err).Str("path", *configFile).Msg("load config")
		}
	}
	cfg.Finish()
	logx.Configure(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics.Register(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			logx.Log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server starting")
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logx.Log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	b, err := bridge.New(bridge.Config{
		WalletURL:      cfg.WalletURL,
		Opener:         popup.WSOpener{},
		ReadyTimeout:   cfg.ReadyTimeout,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		logx.Log.Fatal().Err(err).Str("url", cfg.WalletURL).Msg("bad wallet url")
	}
	defer b.Close()

	evmChains, solChains := splitByNamespace(cfg.Chains)
	logx.Log.Info().Str("wallet", cfg.WalletURL).Strs("chains", cfg.Chains).Msg("probe starting")

	if len(evmChains) > 0 {
		p := evm.New(b, evm.Config{Chains: evmChains})
		accounts, err := p.Connect(ctx)
		if err != nil {
			logx.Log.Fatal().Err(err).Msg("evm connect failed")
		}
		fmt.Printf("evm chain %s accounts: %s\n", p.ChainID(), strings.Join(accounts, ", "))

		if *signMsg != "" && len(accounts) > 0 {
			sig, err := p.PersonalSign(ctx, *signMsg, accounts[0])
			if err != nil {
				logx.Log.Fatal().Err(err).Msg("personal_sign failed")
			}
			fmt.Printf("signature: %s\n", sig)
		}
	}

	if len(solChains) > 0 {
		p := solana.New(b, solana.Config{Chains: solChains})
		pk, err := p.Connect(ctx)
		if err != nil {
			logx.Log.Fatal().Err(err).Msg("solana connect failed")
		}
		fmt.Printf("solana chain %s account: %s\n", p.Chain(), pk)
		p.Disconnect(ctx)
	}
}

func splitByNamespace(chains []string) (evmChains, solChains []string) {
	for _, c := range chains {
		switch {
		case strings.HasPrefix(c, string(wire.NamespaceEVM)+":"):
			evmChains = append(evmChains, c)
		case strings.HasPrefix(c, string(wire.NamespaceSolana)+":"):
			solChains = append(solChains, c)
		default:
			logx.Log.Warn().Str("chain", c).Msg("unknown chain namespace; skipping")
		}
	}
	return evmChains, solChains
}
