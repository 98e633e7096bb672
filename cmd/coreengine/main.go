// Command coreengine drives the engine end to end against a disk-backed
// repo: it opens (or initializes) a repo directory, builds a genesis
// state tree, applies one message through the VM, and commits the
// resulting state root, receipts AMT and tipset header into the repo's
// CAR store. It is the minimal runnable wiring of config, ipld (car +
// buffer), state, vm and tipset — the chain-sync and CLI/JSON-RPC
// surfaces that would normally drive these packages are out of scope
// (spec.md §1).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"

	"github.com/filecoin-project/venus-core/amt"
	"github.com/filecoin-project/venus-core/config"
	"github.com/filecoin-project/venus-core/ipld"
	"github.com/filecoin-project/venus-core/ipld/buffer"
	"github.com/filecoin-project/venus-core/ipld/car"
	"github.com/filecoin-project/venus-core/state"
	"github.com/filecoin-project/venus-core/tipset"
	"github.com/filecoin-project/venus-core/vm"
	"github.com/filecoin-project/venus-core/vm/builtin"
)

func main() {
	repoDir := flag.String("repo", "./devnet", "repo directory to initialize and drive")
	flag.Parse()

	if err := run(*repoDir); err != nil {
		log.Fatalf("coreengine: %v", err)
	}
}

func run(repoDir string) error {
	ctx := context.Background()

	if err := os.MkdirAll(repoDir, 0o755); err != nil {
		return fmt.Errorf("creating repo dir: %w", err)
	}

	cfgPath := filepath.Join(repoDir, "config.toml")
	cfg := config.NewDefaultConfig()
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := cfg.WriteFile(cfgPath); err != nil {
			return fmt.Errorf("writing default config: %w", err)
		}
	} else {
		cfg, err = config.ReadFile(cfgPath)
		if err != nil {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	carPath := filepath.Join(repoDir, cfg.Repo.CARPath)
	idxPath := filepath.Join(repoDir, cfg.Repo.IndexPath)
	_ = os.Remove(carPath)
	_ = os.Remove(idxPath)
	durable, err := car.Create(carPath, idxPath, nil)
	if err != nil {
		return fmt.Errorf("creating car store: %w", err)
	}
	defer durable.Close() //nolint:errcheck

	staged := buffer.New(durable)

	tree := state.NewTree(staged)
	if err := seedGenesisActors(ctx, tree); err != nil {
		return fmt.Errorf("seeding genesis actors: %w", err)
	}

	alice, bob, err := fundTestAccounts(ctx, tree)
	if err != nil {
		return fmt.Errorf("funding accounts: %w", err)
	}

	genesisRoot, err := tree.Flush(ctx)
	if err != nil {
		return fmt.Errorf("flushing genesis tree: %w", err)
	}

	env := vm.NewEnv(staged, tree, 1, cfg.Network.NetworkBaseFee(), vm.DefaultRegistry())
	msg := &vm.Message{
		From:       alice,
		To:         bob,
		Nonce:      0,
		Value:      big.NewInt(1000),
		GasLimit:   50_000_000,
		GasFeeCap:  big.NewInt(200),
		GasPremium: big.NewInt(100),
		Method:     builtin.MethodSend,
	}
	ret, err := env.ApplyMessage(ctx, msg, 128)
	if err != nil {
		return fmt.Errorf("applying message: %w", err)
	}

	receiptsRoot, err := commitReceipts(ctx, staged, ret)
	if err != nil {
		return fmt.Errorf("committing receipts: %w", err)
	}

	postRoot, err := tree.Flush(ctx)
	if err != nil {
		return fmt.Errorf("flushing post-message tree: %w", err)
	}

	headerCid, err := writeGenesisHeader(ctx, staged, postRoot, cfg.Network.NetworkBaseFee())
	if err != nil {
		return fmt.Errorf("writing tipset header: %w", err)
	}

	for _, root := range []cid.Cid{genesisRoot, postRoot, receiptsRoot, headerCid} {
		if err := staged.Flush(ctx, root); err != nil {
			return fmt.Errorf("flushing %s to durable store: %w", root, err)
		}
	}
	if err := durable.Flush(ctx); err != nil {
		return fmt.Errorf("flushing car store: %w", err)
	}

	loader, err := tipset.NewLoader(durable, tipset.DefaultCacheSize)
	if err != nil {
		return fmt.Errorf("constructing tipset loader: %w", err)
	}
	ts, err := loader.Load(ctx, tipset.NewTipSetKey(headerCid))
	if err != nil {
		return fmt.Errorf("loading tipset: %w", err)
	}

	if err := recordChainHead(repoDir, cfg, headerCid); err != nil {
		return fmt.Errorf("recording chain head: %w", err)
	}

	fmt.Printf("applied message: exit=%d gasUsed=%d\n", ret.Receipt.ExitCode, ret.Receipt.GasUsed)
	fmt.Printf("genesis state root:    %s\n", genesisRoot)
	fmt.Printf("post-message state root: %s\n", postRoot)
	fmt.Printf("receipts root:          %s\n", receiptsRoot)
	fmt.Printf("tipset height=%d parentStateRoot=%s\n", ts.Height(), ts.ParentStateRoot())
	return nil
}

// seedGenesisActors installs the singleton actors the applier's builtin
// registry depends on: the init actor (empty address map), and the
// reward/burnt-funds actors gas settlement pays into.
func seedGenesisActors(ctx context.Context, tree state.Tree) error {
	initAddr, err := address.NewIDAddress(builtin.InitActorID)
	if err != nil {
		return err
	}
	if err := tree.Set(ctx, initAddr, &state.Actor{Head: cid.Undef}); err != nil {
		return err
	}
	if err := tree.Set(ctx, builtin.RewardActorAddr, &state.Actor{Code: builtin.RewardCode, Balance: big.Zero()}); err != nil {
		return err
	}
	return tree.Set(ctx, builtin.BurntFundsActorAddr, &state.Actor{Code: builtin.BurntFundsCode, Balance: big.Zero()})
}

// fundTestAccounts registers two funded account actors for the demo
// transfer, the way a genesis builder allocates initial balances.
func fundTestAccounts(ctx context.Context, tree state.Tree) (alice, bob address.Address, err error) {
	alicePubkey, err := address.NewActorAddress([]byte("alice"))
	if err != nil {
		return address.Undef, address.Undef, err
	}
	aliceID, err := tree.RegisterNewAddress(ctx, alicePubkey)
	if err != nil {
		return address.Undef, address.Undef, err
	}
	if err := tree.Set(ctx, aliceID, &state.Actor{Code: builtin.AccountCode, Balance: big.NewInt(1_000_000_000_000)}); err != nil {
		return address.Undef, address.Undef, err
	}

	bobPubkey, err := address.NewActorAddress([]byte("bob"))
	if err != nil {
		return address.Undef, address.Undef, err
	}
	bobID, err := tree.RegisterNewAddress(ctx, bobPubkey)
	if err != nil {
		return address.Undef, address.Undef, err
	}
	if err := tree.Set(ctx, bobID, &state.Actor{Code: builtin.AccountCode, Balance: big.Zero()}); err != nil {
		return address.Undef, address.Undef, err
	}
	return aliceID, bobID, nil
}

// receiptRecord is the durable encoding of one message's outcome, stored
// in the block's receipts AMT (spec §4.D: "message lists, receipt lists").
type receiptRecord struct {
	ExitCode uint64
	GasUsed  int64
	Return   []byte
}

// commitReceipts appends ret's receipt to a fresh AMT at index 0, mirroring
// how a block's receipts root is built up one message at a time, and
// flushes it to a CID.
func commitReceipts(ctx context.Context, store ipld.Store, ret *vm.ApplyRet) (cid.Cid, error) {
	receipts := amt.NewAMT()
	rec := receiptRecord{
		ExitCode: uint64(ret.Receipt.ExitCode),
		GasUsed:  ret.Receipt.GasUsed,
		Return:   ret.Receipt.Return,
	}
	if _, err := receipts.Append(ctx, store, rec); err != nil {
		return cid.Undef, err
	}
	return receipts.Flush(ctx, store)
}

// recordChainHead persists the new tipset head's CID into the repo's
// small-records key-value store, the badger-backed DiskStore spec.md §6
// sets aside for durable records that don't belong inside the CAR.
func recordChainHead(repoDir string, cfg *config.Config, headCid cid.Cid) error {
	kvPath := filepath.Join(repoDir, cfg.Repo.KVPath)
	kv, err := ipld.OpenDiskStore(kvPath)
	if err != nil {
		return err
	}
	defer kv.Close() //nolint:errcheck

	ctx := context.Background()
	headRecordCid := ipld.NewRawCid([]byte("chain-head"))
	return kv.Put(ctx, headRecordCid, headCid.Bytes())
}

// writeGenesisHeader encodes and stores a single-block genesis tipset
// header over stateRoot, returning its CID.
func writeGenesisHeader(ctx context.Context, store ipld.Store, stateRoot cid.Cid, baseFee big.Int) (cid.Cid, error) {
	h := tipset.Header{
		Height:          0,
		Parents:         nil,
		ParentStateRoot: stateRoot,
		ParentWeight:    big.Zero(),
		ParentBaseFee:   baseFee,
	}
	data, err := cbor.DumpObject(h)
	if err != nil {
		return cid.Undef, err
	}
	blk := ipld.NewCbBlock(data)
	if err := store.Put(ctx, blk.Cid, blk.Bytes); err != nil {
		return cid.Undef, err
	}
	return blk.Cid, nil
}
