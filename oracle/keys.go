package oracle

import (
	"context"
	"encoding/binary"
	"encoding/hex"

	"github.com/DomeLiquid/riskcore/core"
	"github.com/DomeLiquid/riskcore/solana"
	"github.com/pkg/errors"
)

// FeedIdMap maps a hex feed id to the price account that currently serves it.
type FeedIdMap map[string]solana.PublicKey

func FeedIdToString(feedId solana.PublicKey) string {
	return hex.EncodeToString(feedId.Bytes())
}

func FindPythPushOracleAddress(feedId solana.PublicKey, shardId uint16) (solana.PublicKey, error) {
	shard := make([]byte, 2)
	binary.LittleEndian.PutUint16(shard, shardId)
	addr, _, err := solana.FindProgramAddress([][]byte{shard, feedId.Bytes()}, PYTH_PUSH_ORACLE_ID)
	return addr, err
}

// FindOracleKey returns the account holding the price of a bank. Pyth push banks
// store a feed id in OracleKeys[0], which feedIds resolves to an account.
func FindOracleKey(cfg *core.BankConfig, feedIds FeedIdMap) (solana.PublicKey, error) {
	if len(cfg.OracleKeys) == 0 {
		return solana.PublicKey{}, errors.Wrap(core.ErrInvalidConfig, "bank has no oracle keys")
	}

	key := cfg.OracleKeys[0]
	if !cfg.OracleSetup.IsPythPush() {
		return key, nil
	}

	feedId := FeedIdToString(key)
	addr, ok := feedIds[feedId]
	if !ok {
		return solana.PublicKey{}, errors.Wrapf(ErrMissingFeedId, "feed %s", feedId)
	}
	return addr, nil
}

// BuildFeedIdMap reads both sponsored shards of every feed in one batch and keeps
// the account that exists, or the one published most recently when both do.
func BuildFeedIdMap(ctx context.Context, fetcher solana.AccountFetcher, feedIds []solana.PublicKey) (FeedIdMap, error) {
	out := make(FeedIdMap, len(feedIds))
	if len(feedIds) == 0 {
		return out, nil
	}

	addresses := make([]solana.PublicKey, 0, len(feedIds)*2)
	for _, feedId := range feedIds {
		for _, shard := range []uint16{PYTH_SPONSORED_SHARD_ID, MARGINFI_SPONSORED_SHARD_ID} {
			addr, err := FindPythPushOracleAddress(feedId, shard)
			if err != nil {
				return nil, errors.Wrapf(err, "derive shard %d of feed %s", shard, feedId)
			}
			addresses = append(addresses, addr)
		}
	}

	accounts, err := fetcher.GetMultipleAccounts(ctx, addresses)
	if err != nil {
		return nil, errors.Wrap(err, "fetch pyth push accounts")
	}
	if len(accounts) != len(addresses) {
		return nil, errors.Wrapf(solana.ErrUnexpectedCount, "got %d want %d", len(accounts), len(addresses))
	}

	for i, feedId := range feedIds {
		pythSponsored, mfiSponsored := accounts[2*i], accounts[2*i+1]
		pythAddr, mfiAddr := addresses[2*i], addresses[2*i+1]
		key := FeedIdToString(feedId)

		switch {
		case pythSponsored != nil && mfiSponsored != nil:
			pythTime, err := publishTime(pythSponsored)
			if err != nil {
				return nil, errors.Wrapf(err, "feed %s", key)
			}
			mfiTime, err := publishTime(mfiSponsored)
			if err != nil {
				return nil, errors.Wrapf(err, "feed %s", key)
			}
			if pythTime > mfiTime {
				out[key] = pythAddr
			} else {
				out[key] = mfiAddr
			}
		case pythSponsored != nil:
			out[key] = pythAddr
		case mfiSponsored != nil:
			out[key] = mfiAddr
		default:
			return nil, errors.Wrapf(ErrNoOracleAccount, "feed %s", key)
		}
	}
	return out, nil
}

func publishTime(data []byte) (int64, error) {
	u, err := DecodePriceUpdateV2(data)
	if err != nil {
		return 0, err
	}
	return u.PriceMessage.PublishTime, nil
}
