package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"settlenet/config"
	"settlenet/core"
	coreevents "settlenet/core/events"
	"settlenet/native/oracle"
	"settlenet/native/venue"
	"settlenet/observability/logging"
	"settlenet/rpc"
	"settlenet/storage"
)

const rpcTokenEnv = "SETTLED_RPC_TOKEN"

func main() {
	configFile := flag.String("config", "./settled.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("SETTLED_ENV"))
	logger := logging.Setup("settled", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	manual := oracle.NewManualFeed()
	aggregator := oracle.NewAggregator(time.Duration(cfg.OracleMaxAgeSeconds)*time.Second, cfg.OracleMinObservations)
	aggregator.Register("manual", manual)
	now := time.Now()
	for _, price := range cfg.Prices {
		if err := manual.SetDecimal(price.Symbol, price.Rate, now); err != nil {
			logger.Error("failed to seed price", slog.String("symbol", price.Symbol), slog.Any("error", err))
			os.Exit(1)
		}
	}

	venues := venue.NewRegistry()
	for _, pool := range cfg.ConstantProductPools {
		venues.Register(venue.NewConstantProductAdapter(pool.ID, logger))
	}
	for _, pool := range cfg.StablePools {
		venues.Register(venue.NewStableAdapter(pool.ID, logger))
	}

	treasury, err := parseAddress(cfg.Treasury)
	if err != nil {
		logger.Error("invalid treasury address", slog.Any("error", err))
		os.Exit(1)
	}
	custody, err := parseAddress(cfg.Custody)
	if err != nil {
		logger.Error("invalid custody address", slog.Any("error", err))
		os.Exit(1)
	}

	node := core.NewNode(core.NodeConfig{
		DB:          db,
		Venues:      venues,
		Oracle:      aggregator,
		Manual:      manual,
		Custody:     custody,
		Treasury:    treasury,
		FeePpm:      cfg.FeePpm,
		HopDeadline: time.Duration(cfg.HopDeadlineSeconds) * time.Second,
		Log:         logger,
		Emitter:     &coreevents.LogEmitter{Logger: logger},
	})

	gen, err := buildGenesis(cfg)
	if err != nil {
		logger.Error("invalid genesis configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if err := node.Seed(gen); err != nil {
		logger.Error("failed to seed state", slog.Any("error", err))
		os.Exit(1)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("starting metrics server", slog.String("addr", cfg.MetricsAddress))
		if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
			logger.Error("metrics server stopped", slog.Any("error", err))
		}
	}()

	token := strings.TrimSpace(os.Getenv(rpcTokenEnv))
	if token == "" {
		token = cfg.RPCAuthToken
	}
	server := rpc.NewServer(node, token, logger)
	if err := server.Start(cfg.ListenAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func parseAddress(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(trimmed), nil
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

func buildGenesis(cfg *config.Config) (*core.Genesis, error) {
	gen := &core.Genesis{}
	for _, token := range cfg.Tokens {
		gen.Tokens = append(gen.Tokens, core.GenesisToken{
			Symbol:   token.Symbol,
			Name:     token.Name,
			Decimals: token.Decimals,
		})
	}
	for _, account := range cfg.Accounts {
		addr, err := parseAddress(account.Address)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount(account.Amount)
		if err != nil {
			return nil, err
		}
		gen.Accounts = append(gen.Accounts, core.GenesisAccount{
			Address: addr,
			Token:   account.Token,
			Amount:  amount,
		})
	}
	for _, seller := range cfg.Sellers {
		addr, err := parseAddress(seller)
		if err != nil {
			return nil, err
		}
		gen.Sellers = append(gen.Sellers, addr)
	}
	for _, pool := range cfg.ConstantProductPools {
		reserveA, err := parseAmount(pool.ReserveA)
		if err != nil {
			return nil, err
		}
		reserveB, err := parseAmount(pool.ReserveB)
		if err != nil {
			return nil, err
		}
		gen.ConstantProductPools = append(gen.ConstantProductPools, &venue.ConstantProductPool{
			ID:             pool.ID,
			TokenA:         pool.TokenA,
			TokenB:         pool.TokenB,
			ReserveA:       reserveA,
			ReserveB:       reserveB,
			FeeNumerator:   pool.FeeNumerator,
			FeeDenominator: pool.FeeDenominator,
		})
	}
	for _, pool := range cfg.StablePools {
		reserves := make([]*big.Int, len(pool.Reserves))
		for i, raw := range pool.Reserves {
			amount, err := parseAmount(raw)
			if err != nil {
				return nil, err
			}
			reserves[i] = amount
		}
		gen.StablePools = append(gen.StablePools, &venue.StablePool{
			ID:             pool.ID,
			Coins:          pool.Coins,
			Reserves:       reserves,
			Amplification:  pool.Amplification,
			FeeNumerator:   pool.FeeNumerator,
			FeeDenominator: pool.FeeDenominator,
		})
	}
	return gen, nil
}
