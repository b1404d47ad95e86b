// ============================================================================
// Atomic-Ledger Demo
// ============================================================================
//
// Self-contained walkthrough of the engine against the wallet domain:
// credits, a duplicate rejection, a debit, a query, then a full restart
// over the same data directory to show crash recovery.
//
// Run: go run ./cmd/demo
//
// ============================================================================

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/vevoly/atomic-ledger/pkg/config"
	"github.com/vevoly/atomic-ledger/pkg/engine"
	"github.com/vevoly/atomic-ledger/pkg/log"
	"github.com/vevoly/atomic-ledger/pkg/types"
	"github.com/vevoly/atomic-ledger/pkg/wallet"
)

type printPersister struct{}

func (printPersister) Persist(batch []any) error {
	for _, e := range batch {
		if m, ok := e.(*wallet.Movement); ok {
			fmt.Printf("  persisted: account=%s delta=%d balance=%d\n",
				m.Account, m.DeltaMinor, m.BalanceMinor)
		}
	}
	return nil
}

func main() {
	log.Init(log.Config{Level: log.WarnLevel})

	dir, err := os.MkdirTemp("", "ledger-demo-*")
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	cfg := config.Config{
		BaseDir:          dir,
		EngineName:       "demo",
		Partitions:       2,
		SnapshotInterval: 3,
	}
	ctx := context.Background()

	fmt.Println("== first run ==")
	eng := mustBuild(cfg)
	mustStart(ctx, eng)

	fmt.Println("crediting u1 three times, 100 each")
	for i := 0; i < 3; i++ {
		mustWait(ctx, eng, wallet.Credit("u1", 100))
	}

	fmt.Println("replaying the same transaction twice")
	dup := wallet.Credit("u2", 50)
	mustWait(ctx, eng, dup)
	if _, err := eng.SubmitAndWait(ctx, dup); errors.Is(err, types.ErrDuplicate) {
		fmt.Println("  second attempt rejected as duplicate")
	}

	fmt.Println("debiting u1 by 250")
	mustWait(ctx, eng, wallet.Debit("u1", 250))

	printBalance(ctx, eng, "u1")
	printBalance(ctx, eng, "u2")

	if err := eng.Stop(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	fmt.Println("== second run over the same directory (recovery) ==")
	eng = mustBuild(cfg)
	mustStart(ctx, eng)
	printBalance(ctx, eng, "u1")
	printBalance(ctx, eng, "u2")
	if err := eng.Stop(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func mustBuild(cfg config.Config) *engine.Engine {
	eng, err := engine.New(cfg).
		WithProcessor(wallet.Processor{}).
		WithPersister(printPersister{}).
		WithBootstrap(wallet.Bootstrap{}).
		Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	return eng
}

func mustStart(ctx context.Context, eng *engine.Engine) {
	if err := eng.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func mustWait(ctx context.Context, eng *engine.Engine, op *wallet.Op) {
	if _, err := eng.SubmitAndWait(ctx, op); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printBalance(ctx context.Context, eng *engine.Engine, account string) {
	var balance int64
	err := eng.Query(ctx, account, func(s types.State) {
		balance = s.(wallet.Balances)[account]
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	fmt.Printf("  balance %s = %d\n", account, balance)
}
