// Copyright 2025 Certen Protocol
//
// cmd entrypoint for the KERI engine, grounded on the teacher validator
// service's main.go: flag/env-driven bootstrap, a storage backend chosen by
// configuration, a Prometheus metrics listener on its own port, and a
// context cancelled on SIGINT/SIGTERM that every background loop (here, the
// per-identifier agent's mailbox poller) respects. Where the teacher wired
// Accumulate/Ethereum clients and the validator-block pipeline, this
// process wires pkg/codec, pkg/event, pkg/storage, pkg/notify, pkg/escrow,
// pkg/validator, pkg/tel, pkg/reply, pkg/coordinator, pkg/mailbox, and
// pkg/agent -- the KERI core -- behind the same lifecycle shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"syscall"
	"time"

	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/independant-validator/pkg/agent"
	"github.com/certen/independant-validator/pkg/codec"
	"github.com/certen/independant-validator/pkg/codec/keymanager"
	"github.com/certen/independant-validator/pkg/config"
	"github.com/certen/independant-validator/pkg/coordinator"
	"github.com/certen/independant-validator/pkg/escrow"
	"github.com/certen/independant-validator/pkg/event"
	"github.com/certen/independant-validator/pkg/kvdb"
	"github.com/certen/independant-validator/pkg/mailbox"
	"github.com/certen/independant-validator/pkg/metrics"
	"github.com/certen/independant-validator/pkg/notify"
	"github.com/certen/independant-validator/pkg/reply"
	"github.com/certen/independant-validator/pkg/storage"
	"github.com/certen/independant-validator/pkg/storage/memstore"
	"github.com/certen/independant-validator/pkg/storage/sqlstore"
	"github.com/certen/independant-validator/pkg/tel"
	"github.com/certen/independant-validator/pkg/transport"
	"github.com/certen/independant-validator/pkg/transport/httpclient"
	"github.com/certen/independant-validator/pkg/validator"
)

func main() {
	var inceptNew bool
	flag.BoolVar(&inceptNew, "incept", false, "generate keys and incept a new single-signer identifier on startup")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := log.New(os.Stderr, "[keriengine] ", log.LstdFlags)

	kv, closeStore, err := openBackend(cfg)
	if err != nil {
		log.Fatalf("open storage backend: %v", err)
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	metricsReg := metrics.New(reg)

	store := storage.New(kv)
	bus := notify.New()
	escrows := escrow.NewManager(bus, escrow.Config{TTL: cfg.EscrowTTL, MaxSize: escrow.DefaultConfig().MaxSize})
	v := validator.New(validator.DefaultConfig(), store, bus).
		WithPartialSignatureEscrow(escrows.PartiallySigned).
		WithMetrics(metricsReg)
	telEngine := tel.New(store, bus).WithMetrics(metricsReg)
	replies := reply.New(store, bus).WithMetrics(metricsReg)
	_ = coordinator.New(bus, escrows, v, telEngine, replies)
	mb := mailbox.New()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go serveMetrics(ctx, cfg.MetricsAddr, reg, logger)
	go reportEscrowSizes(ctx, escrows, metricsReg)

	keys := keymanager.New(cfg.KeyPath)
	if err := keys.LoadOrGenerate(); err != nil {
		log.Fatalf("load or generate key material: %v", err)
	}

	peers := make(map[string]transport.Transport, len(cfg.Peers))
	for prefixText, url := range cfg.Peers {
		peers[prefixText] = httpclient.New(url, http.DefaultClient)
	}

	hashCode := codec.DigestCode(cfg.HashCode)

	var id codec.Prefix
	if cfg.Prefix != "" {
		id, err = codec.ParsePrefix(cfg.Prefix)
		if err != nil {
			log.Fatalf("invalid KERI_PREFIX %q: %v", cfg.Prefix, err)
		}
	}

	ag := agent.New(
		agent.Config{MailboxPollInterval: cfg.MailboxPollInterval, HashCode: hashCode},
		id, keys, store, v, mb, bus, peers, logger,
	).WithMetrics(metricsReg)

	if inceptNew {
		pub, err := keys.PublicKey()
		if err != nil {
			log.Fatalf("read public key: %v", err)
		}
		nextPub, err := keys.NextPublicKey()
		if err != nil {
			log.Fatalf("read next public key: %v", err)
		}
		ev, sigs, err := ag.BuildInception(event.InceptionParams{
			CurrentKeys:      []codec.Prefix{pub},
			SigningThreshold: codec.Threshold{Simple: 1},
			NextThreshold:    codec.Threshold{Simple: 1},
			NextKeys:         []codec.Prefix{nextPub},
			HashCode:         hashCode,
		})
		if err != nil {
			log.Fatalf("incept identifier: %v", err)
		}
		prefixText, _ := ev.Prefix.Text()
		logger.Printf("incepted identifier %s at sn=0", prefixText)
		if len(peers) > 0 {
			if _, err := ag.BroadcastToWitnesses(ctx, ev, sigs); err != nil {
				logger.Printf("broadcast to witnesses: %v", err)
			}
		}
	}

	logger.Printf("keri engine running as role=%s backend=%s", cfg.Role, cfg.StorageBackend)
	ag.Run(ctx)
	logger.Printf("keri engine shutting down")
}

// openBackend selects the storage.KV implementation named by
// cfg.StorageBackend. "memory" returns a no-op close; "kv" returns a close
// of the LevelDB handle; "sql" returns the sqlstore.Store's Close.
func openBackend(cfg *config.Config) (storage.KV, func(), error) {
	switch cfg.StorageBackend {
	case "sql":
		s, err := sqlstore.Open(context.Background(), sqlstore.Config{
			DatabaseURL:     cfg.DatabaseURL,
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open sql store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	case "kv":
		db, err := dbm.NewGoLevelDB("keri", cfg.KVDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open embedded kv store: %w", err)
		}
		return kvdb.New(db), func() { _ = db.Close() }, nil
	default:
		return memstore.New(), func() {}, nil
	}
}

// reportEscrowSizes polls every escrow's occupancy into the Prometheus
// registry until ctx is cancelled, giving an operator visibility into which
// precondition (out-of-order, partial signatures, missing delegator, ...)
// is backing up without reading logs.
func reportEscrowSizes(ctx context.Context, escrows *escrow.Manager, reg *metrics.Registry) {
	named := map[string]*escrow.Store{
		"out_of_order":         escrows.OutOfOrder,
		"partially_signed":     escrows.PartiallySigned,
		"partially_witnessed":  escrows.PartiallyWitnessed,
		"receipt_out_of_order": escrows.ReceiptOutOfOrder,
		"missing_delegator":    escrows.MissingDelegator,
		"reply":                escrows.Reply,
		"tel_missing_issuer":   escrows.TelMissingIssuer,
		"tel_missing_registry": escrows.TelMissingRegistry,
		"tel_out_of_order":     escrows.TelOutOfOrder,
	}
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, store := range named {
				reg.SetEscrowSize(name, store.Len())
			}
		}
	}
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	logger.Printf("metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Printf("metrics server: %v", err)
	}
}
